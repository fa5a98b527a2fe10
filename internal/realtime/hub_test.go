package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-queue/internal/queue"
)

type fakeSource struct {
	snaps map[string]*queue.Snapshot
	err   error
}

func (f *fakeSource) GetClinicSnapshot(ctx context.Context, clinicID string) (*queue.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap, ok := f.snaps[clinicID]
	if !ok {
		return nil, errors.New("unknown clinic")
	}
	return snap, nil
}

func snapshotWithWaiting(n int) *queue.Snapshot {
	return &queue.Snapshot{Queue: []queue.QueueEntry{}, TotalWaiting: n, WaitTime: n * queue.WaitMinutesPerPatient}
}

func TestSubscribeReceivesCatchUpSnapshot(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{"1": snapshotWithWaiting(2)}}
	hub := NewHub(source, nil, nil, nil)

	sub := hub.Subscribe(context.Background(), "1")
	defer hub.Unsubscribe(sub)

	select {
	case msg := <-sub.C():
		assert.Equal(t, TypeQueueUpdate, msg.Type)
		assert.Equal(t, "1", msg.ClinicID)
		require.NotNil(t, msg.Snapshot)
		assert.Equal(t, 2, msg.Snapshot.TotalWaiting)
	default:
		t.Fatal("expected a catch-up message")
	}
}

func TestPublishFansOutToClinicSubscribersOnly(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{
		"1": snapshotWithWaiting(0),
		"2": snapshotWithWaiting(0),
	}}
	hub := NewHub(source, nil, nil, nil)

	subA := hub.Subscribe(context.Background(), "1")
	subB := hub.Subscribe(context.Background(), "2")
	defer hub.Unsubscribe(subA)
	defer hub.Unsubscribe(subB)
	<-subA.C() // drain catch-up
	<-subB.C()

	hub.Publish("1", snapshotWithWaiting(3))

	select {
	case msg := <-subA.C():
		assert.Equal(t, 3, msg.Snapshot.TotalWaiting)
	default:
		t.Fatal("clinic 1 subscriber should have received the snapshot")
	}
	select {
	case msg := <-subB.C():
		t.Fatalf("clinic 2 subscriber should not receive clinic 1 updates, got %+v", msg)
	default:
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{"1": snapshotWithWaiting(0)}}
	hub := NewHub(source, nil, nil, nil)

	sub := hub.Subscribe(context.Background(), "1")
	defer hub.Unsubscribe(sub)
	<-sub.C()

	for i := 1; i <= 5; i++ {
		hub.Publish("1", snapshotWithWaiting(i))
	}
	for i := 1; i <= 5; i++ {
		msg := <-sub.C()
		assert.Equal(t, i, msg.Snapshot.TotalWaiting)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{"1": snapshotWithWaiting(0)}}
	hub := NewHub(source, nil, nil, nil)

	sub := hub.Subscribe(context.Background(), "1")
	defer hub.Unsubscribe(sub)
	<-sub.C()

	// Overflow the buffer; the hub must not block.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish("1", snapshotWithWaiting(i))
	}

	received := 0
	for {
		select {
		case <-sub.C():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestPublishGlobalSignalsWithoutPayload(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)

	sub := hub.SubscribeGlobal()
	defer hub.Unsubscribe(sub)

	hub.PublishGlobal()

	select {
	case msg := <-sub.C():
		assert.Equal(t, TypeQueuesChanged, msg.Type)
		assert.Nil(t, msg.Snapshot)
		assert.Empty(t, msg.ClinicID)
	default:
		t.Fatal("expected a global change signal")
	}
}

func TestUnsubscribeClosesChannelAndIsIdempotent(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{"1": snapshotWithWaiting(0)}}
	hub := NewHub(source, nil, nil, nil)

	sub := hub.Subscribe(context.Background(), "1")
	<-sub.C()

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub) // second call is a no-op

	_, ok := <-sub.C()
	assert.False(t, ok, "channel should be closed")

	// Publishing after unsubscribe reaches nobody and must not panic.
	hub.Publish("1", snapshotWithWaiting(1))
}

func TestSubscribeSourceFailureStillRegisters(t *testing.T) {
	hub := NewHub(&fakeSource{err: errors.New("db down")}, nil, nil, nil)

	sub := hub.Subscribe(context.Background(), "1")
	defer hub.Unsubscribe(sub)

	select {
	case msg := <-sub.C():
		t.Fatalf("expected no catch-up message, got %+v", msg)
	default:
	}

	hub.Publish("1", snapshotWithWaiting(1))
	select {
	case msg := <-sub.C():
		assert.Equal(t, 1, msg.Snapshot.TotalWaiting)
	default:
		t.Fatal("subscriber should still receive later publishes")
	}
}
