package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// SnapshotRecorder upserts full state snapshots into the entity_states
// latest-state table. The poller hands it the complete entity list after
// each REST poll; rows are written in batches of the configured size.
type SnapshotRecorder struct {
	cfg    Config
	logger *slog.Logger
	db     *pgxpool.Pool

	mu      sync.Mutex
	metrics Metrics
}

// NewSnapshotRecorder creates a new SnapshotRecorder.
func NewSnapshotRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *SnapshotRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &SnapshotRecorder{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
}

// HandleSnapshot upserts one snapshot's entities. It satisfies the poller's
// snapshot handler.
func (r *SnapshotRecorder) HandleSnapshot(ctx context.Context, states []model.EntityState) error {
	if len(states) == 0 {
		return nil
	}

	start := time.Now()
	capturedAt := start.UTC()

	for offset := 0; offset < len(states); offset += r.cfg.BatchSize {
		end := offset + r.cfg.BatchSize
		if end > len(states) {
			end = len(states)
		}
		if err := r.batchUpsert(ctx, states[offset:end], capturedAt); err != nil {
			r.mu.Lock()
			r.metrics.Errors++
			r.mu.Unlock()
			return fmt.Errorf("upsert entity states: %w", err)
		}
	}

	r.mu.Lock()
	r.metrics.Inserts += int64(len(states))
	r.metrics.Flushes++
	r.mu.Unlock()

	r.logger.Info("recorded state snapshot",
		"entities", len(states),
		"duration", time.Since(start),
	)
	return nil
}

// Stats returns current metrics.
func (r *SnapshotRecorder) Stats() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// batchUpsert writes rows using pgx.Batch, updating on conflict so the table
// always holds the latest observed state per entity.
func (r *SnapshotRecorder) batchUpsert(ctx context.Context, states []model.EntityState, capturedAt time.Time) error {
	batch := &pgx.Batch{}
	for i := range states {
		row := snapshotRowFrom(&states[i], capturedAt)
		batch.Queue(`
			INSERT INTO entity_states (entity_id, domain, state, attributes, last_changed, last_updated, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (entity_id) DO UPDATE SET
				domain = EXCLUDED.domain,
				state = EXCLUDED.state,
				attributes = EXCLUDED.attributes,
				last_changed = EXCLUDED.last_changed,
				last_updated = EXCLUDED.last_updated,
				captured_at = EXCLUDED.captured_at
		`, row.EntityID, row.Domain, row.State, row.Attributes, row.LastChanged, row.LastUpdated, row.CapturedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range states {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// snapshotRowFrom converts an EntityState to a snapshotRow.
func snapshotRowFrom(st *model.EntityState, capturedAt time.Time) snapshotRow {
	return snapshotRow{
		EntityID:    st.EntityID,
		Domain:      st.Domain(),
		State:       st.State,
		Attributes:  attributesJSON(st.Attributes),
		LastChanged: st.LastChanged,
		LastUpdated: st.LastUpdated,
		CapturedAt:  capturedAt,
	}
}
