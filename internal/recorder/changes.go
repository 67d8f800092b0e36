package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// ChangeRecorder consumes state_changed events and batch-inserts them into
// the state_changes history table.
type ChangeRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Intake from the WebSocket event stream
	input *Buffer[model.StateChange]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []changeRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewChangeRecorder creates a new ChangeRecorder.
func NewChangeRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *ChangeRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	initial := 256
	if cfg.BufferSize > 0 && cfg.BufferSize < initial {
		initial = cfg.BufferSize
	}
	return &ChangeRecorder{
		cfg:    cfg,
		logger: logger,
		input:  NewBuffer[model.StateChange](initial, cfg.BufferSize),
		db:     db,
		batch:  make([]changeRow, 0, cfg.BatchSize),
	}
}

// HandleEvent is the event-stream bridge. It parses state_changed payloads
// and queues them for the flush loop, so the WebSocket read loop never waits
// on the database.
func (r *ChangeRecorder) HandleEvent(ev model.Event) {
	change, err := model.ParseStateChange(ev)
	if err != nil {
		r.logger.Warn("failed to parse state change", "error", err)
		return
	}
	if change.NewState == nil {
		// Entity removal, nothing to record.
		return
	}
	r.input.Append(change)
}

// Start begins consuming queued changes and writing to the database.
func (r *ChangeRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	// Consumer goroutine
	r.wg.Add(1)
	go r.consumeLoop()

	// Flush ticker goroutine
	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("change recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, draining and flushing whatever
// is still queued.
func (r *ChangeRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping change recorder")

	if r.cancel != nil {
		r.cancel()
	}

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("change recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("change recorder stop timed out")
	}

	// Drain the intake, then final flush against the caller's context.
	r.input.Close()
	for {
		change, ok := r.input.TryNext()
		if !ok {
			break
		}
		r.batchMu.Lock()
		r.batch = append(r.batch, r.transform(change))
		r.batchMu.Unlock()
	}
	r.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (r *ChangeRecorder) Stats() Metrics {
	r.batchMu.Lock()
	m := r.metrics
	r.batchMu.Unlock()
	m.Dropped = r.input.Stats().Dropped
	return m
}

// consumeLoop reads from the intake buffer and accumulates batches.
func (r *ChangeRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			change, ok := r.input.TryNext()
			if !ok {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			r.handleChange(change)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *ChangeRecorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

// handleChange transforms and adds a change to the batch.
func (r *ChangeRecorder) handleChange(change model.StateChange) {
	row := r.transform(change)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// transform converts a StateChange to a changeRow.
func (r *ChangeRecorder) transform(change model.StateChange) changeRow {
	st := change.NewState

	var oldState *string
	if change.OldState != nil {
		s := change.OldState.State
		oldState = &s
	}

	// Prefer last_updated: it also moves on attribute-only changes.
	changedAt := st.LastUpdated
	if changedAt.IsZero() {
		changedAt = st.LastChanged
	}
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}

	return changeRow{
		EntityID:   st.EntityID,
		Domain:     st.Domain(),
		State:      st.State,
		OldState:   oldState,
		Attributes: attributesJSON(st.Attributes),
		ChangedAt:  changedAt,
		RecordedAt: time.Now().UTC(),
	}
}

// flush writes the current batch to the database.
func (r *ChangeRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]changeRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed state changes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING, so
// replayed events after a reconnect and resubscribe are harmless.
func (r *ChangeRecorder) batchInsert(ctx context.Context, rows []changeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO state_changes (entity_id, domain, state, old_state, attributes, changed_at, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (entity_id, changed_at) DO NOTHING
		`, row.EntityID, row.Domain, row.State, row.OldState, row.Attributes, row.ChangedAt, row.RecordedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
