// Package realtime fans queue snapshots out to connected viewers: clinic
// screens subscribe to one clinic, dashboards subscribe globally and refetch
// on change signals.
package realtime

import (
	"context"
	"sync"

	"github.com/wolfman30/clinic-queue/internal/observability/metrics"
	"github.com/wolfman30/clinic-queue/internal/queue"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

// Message types pushed to subscribers.
const (
	TypeQueueUpdate   = "queue_update"
	TypeQueuesChanged = "queues_changed"
)

// Message is one push to a subscriber. Global signals carry no payload;
// dashboards refetch what they need.
type Message struct {
	Type     string          `json:"type"`
	ClinicID string          `json:"clinic_id,omitempty"`
	Snapshot *queue.Snapshot `json:"snapshot,omitempty"`
}

// SnapshotSource computes the current snapshot for the catch-up push on
// subscribe.
type SnapshotSource interface {
	GetClinicSnapshot(ctx context.Context, clinicID string) (*queue.Snapshot, error)
}

// subscriberBuffer is each subscriber's channel depth. A subscriber that
// falls this far behind starts losing messages rather than stalling the hub.
const subscriberBuffer = 16

// Subscriber is one registered viewer. Receive from C until it is closed.
type Subscriber struct {
	clinicID string // empty means global
	ch       chan Message
	closed   bool
}

// C returns the subscriber's message stream.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Hub keeps clinic-keyed subscriber groups and a global group. Sends never
// block: a full subscriber buffer drops the message for that subscriber only.
type Hub struct {
	source  SnapshotSource
	cache   *SnapshotCache
	logger  *logging.Logger
	metrics *metrics.QueueMetrics

	mu       sync.Mutex
	byClinic map[string]map[*Subscriber]struct{}
	global   map[*Subscriber]struct{}
}

// NewHub creates a hub. cache and queueMetrics may be nil.
func NewHub(source SnapshotSource, cache *SnapshotCache, logger *logging.Logger, queueMetrics *metrics.QueueMetrics) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		source:   source,
		cache:    cache,
		logger:   logger,
		metrics:  queueMetrics,
		byClinic: make(map[string]map[*Subscriber]struct{}),
		global:   make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a viewer for one clinic and immediately pushes a
// catch-up snapshot to it alone, so late joiners do not wait for the next
// mutation.
func (h *Hub) Subscribe(ctx context.Context, clinicID string) *Subscriber {
	sub := &Subscriber{clinicID: clinicID, ch: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	group, ok := h.byClinic[clinicID]
	if !ok {
		group = make(map[*Subscriber]struct{})
		h.byClinic[clinicID] = group
	}
	group[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberConnected()

	if snap := h.catchUpSnapshot(ctx, clinicID); snap != nil {
		sub.ch <- Message{Type: TypeQueueUpdate, ClinicID: clinicID, Snapshot: snap}
	}
	return sub
}

// SubscribeGlobal registers a viewer for cross-clinic change signals.
func (h *Hub) SubscribeGlobal() *Subscriber {
	sub := &Subscriber{ch: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	h.global[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberConnected()
	return sub
}

// Unsubscribe removes the viewer and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	if sub.clinicID != "" {
		if group, ok := h.byClinic[sub.clinicID]; ok {
			delete(group, sub)
			if len(group) == 0 {
				delete(h.byClinic, sub.clinicID)
			}
		}
	} else {
		delete(h.global, sub)
	}
	sub.closed = true
	close(sub.ch)
	h.metrics.SubscriberDisconnected()
}

// Publish fans a snapshot out to the clinic's subscribers, in the order
// publishes arrive. The engine calls this after each committed mutation.
func (h *Hub) Publish(clinicID string, snap *queue.Snapshot) {
	if h.cache != nil {
		h.cache.Store(context.Background(), clinicID, snap)
	}

	msg := Message{Type: TypeQueueUpdate, ClinicID: clinicID, Snapshot: snap}

	h.mu.Lock()
	defer h.mu.Unlock()
	reached := 0
	for sub := range h.byClinic[clinicID] {
		select {
		case sub.ch <- msg:
			reached++
		default:
			h.logger.Warn("dropping snapshot for slow subscriber", "clinic_id", clinicID)
		}
	}
	h.metrics.ObserveBroadcastFanout(reached)
}

// PublishGlobal signals that some clinic's queue changed. No payload.
func (h *Hub) PublishGlobal() {
	msg := Message{Type: TypeQueuesChanged}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.global {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("dropping change signal for slow subscriber")
		}
	}
}

// catchUpSnapshot computes a fresh snapshot, falling back to the cached last
// broadcast when the source fails.
func (h *Hub) catchUpSnapshot(ctx context.Context, clinicID string) *queue.Snapshot {
	if h.source != nil {
		snap, err := h.source.GetClinicSnapshot(ctx, clinicID)
		if err == nil {
			return snap
		}
		h.logger.Warn("catch-up snapshot failed", "error", err, "clinic_id", clinicID)
	}
	if h.cache != nil {
		if snap, err := h.cache.Load(ctx, clinicID); err == nil {
			return snap
		}
	}
	return nil
}
