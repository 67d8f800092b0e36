package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shbatm/ha-mcp-sub001/internal/api"
	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// SnapshotHandler receives fetched state snapshots.
type SnapshotHandler interface {
	HandleSnapshot(ctx context.Context, states []model.EntityState) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(ctx context.Context, states []model.EntityState) error

func (f SnapshotHandlerFunc) HandleSnapshot(ctx context.Context, states []model.EntityState) error {
	return f(ctx, states)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 15m)
	Timeout  time.Duration // Per-cycle timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Poller periodically fetches the full entity state list via the REST API.
type Poller struct {
	cfg     Config
	client  *api.Client
	handler SnapshotHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *api.Client, handler SnapshotHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started", "interval", p.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll fetches the current state list and hands it to the handler.
func (p *Poller) poll() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	states, err := p.client.GetStates(ctx)
	if err != nil {
		p.logger.Warn("failed to fetch states", "err", err)
		return
	}

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(ctx, states); err != nil {
			p.logger.Warn("snapshot handler failed", "err", err)
			return
		}
	}

	p.logger.Info("poll cycle complete",
		"entities", len(states),
		"duration", time.Since(start),
	)
}
