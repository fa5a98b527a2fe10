package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-queue/internal/queue"
)

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestWebSocketClinicSubscription(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{"1": snapshotWithWaiting(2)}}
	hub := NewHub(source, nil, nil, nil)
	srv := httptest.NewServer(NewWSHandler(hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?clinic_id=1"
	conn := dialWS(t, wsURL)

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeQueueUpdate, msg.Type)
	require.NotNil(t, msg.Snapshot)
	assert.Equal(t, 2, msg.Snapshot.TotalWaiting)

	hub.Publish("1", snapshotWithWaiting(5))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 5, msg.Snapshot.TotalWaiting)
}

func TestWebSocketSubscribeFrame(t *testing.T) {
	source := &fakeSource{snaps: map[string]*queue.Snapshot{"2": snapshotWithWaiting(1)}}
	hub := NewHub(source, nil, nil, nil)
	srv := httptest.NewServer(NewWSHandler(hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn := dialWS(t, wsURL)

	require.NoError(t, conn.WriteJSON(subscribeFrame{Action: "subscribe", ClinicID: "2"}))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeQueueUpdate, msg.Type)
	assert.Equal(t, "2", msg.ClinicID)
}

func TestWebSocketGlobalSubscription(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	srv := httptest.NewServer(NewWSHandler(hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn := dialWS(t, wsURL)

	require.NoError(t, conn.WriteJSON(subscribeFrame{Action: "subscribe"}))

	// The handler registers after reading the frame; wait for it before
	// publishing.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.global) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.PublishGlobal()

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeQueuesChanged, msg.Type)
	assert.Nil(t, msg.Snapshot)
}
