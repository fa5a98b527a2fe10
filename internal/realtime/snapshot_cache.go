package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-queue/internal/queue"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

const snapshotKeyPrefix = "clinicqueue:snapshot:"

// SnapshotCache keeps the last broadcast snapshot per clinic in Redis so
// catch-up pushes survive when the primary store is briefly unavailable.
type SnapshotCache struct {
	client *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
	logger *logging.Logger
}

// NewSnapshotCache creates a cache. A zero ttl defaults to one hour.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *SnapshotCache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SnapshotCache{
		client: client,
		tracer: otel.Tracer("clinicqueue.internal.realtime.snapshot_cache"),
		ttl:    ttl,
		logger: logger,
	}
}

// Store writes the snapshot. Best-effort: failures are logged, never returned.
func (c *SnapshotCache) Store(ctx context.Context, clinicID string, snap *queue.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("snapshot marshal failed", "error", err, "clinic_id", clinicID)
		return
	}
	ctx, span := c.tracer.Start(ctx, "realtime.snapshot_cache.store")
	defer span.End()
	if err := c.client.Set(ctx, snapshotKeyPrefix+clinicID, payload, c.ttl).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("snapshot cache write failed", "error", err, "clinic_id", clinicID)
	}
}

// Load returns the cached snapshot, or an error when absent or unreadable.
func (c *SnapshotCache) Load(ctx context.Context, clinicID string) (*queue.Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, "realtime.snapshot_cache.load")
	defer span.End()
	payload, err := c.client.Get(ctx, snapshotKeyPrefix+clinicID).Bytes()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("realtime: snapshot cache read: %w", err)
	}
	var snap queue.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("realtime: snapshot cache decode: %w", err)
	}
	return &snap, nil
}
