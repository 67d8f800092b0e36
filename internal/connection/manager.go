package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Factory builds connections. The Manager uses it so tests can substitute a
// fake transport.
type Factory func(cfg ClientConfig, logger *slog.Logger) Conn

// Manager caches at most one live connection together with the generation it
// was created under. Locks and in-flight completions are bound to the runtime
// context that created them, so a generation bump (Invalidate) discards the
// cached connection instead of reusing it. Construct one Manager per process
// and pass it by reference; there is no package-level instance.
type Manager struct {
	mu      sync.Mutex
	cfg     ClientConfig
	logger  *slog.Logger
	factory Factory

	cached     Conn
	cachedGen  uint64
	generation uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFactory overrides the connection factory.
func WithFactory(f Factory) ManagerOption {
	return func(m *Manager) {
		m.factory = f
	}
}

// NewManager creates a Manager producing clients from cfg. A nil logger uses
// slog.Default().
func NewManager(cfg ClientConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		factory: func(cfg ClientConfig, logger *slog.Logger) Conn {
			return NewClient(cfg, logger)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetClient returns the cached connection if it is current and authenticated,
// otherwise builds and connects a new one. A connection cached under an older
// generation is disconnected and discarded first.
func (m *Manager) GetClient(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.cachedGen != m.generation {
		m.logger.Debug("runtime context changed, discarding cached client")
		m.cached.Disconnect()
		m.cached = nil
	}

	if m.cached != nil {
		if m.cached.IsAuthenticated() {
			return m.cached, nil
		}
		// The link died; reap the old connection before dialing anew.
		m.cached.Disconnect()
		m.cached = nil
	}

	conn := m.factory(m.cfg, m.logger)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect home assistant websocket: %w", err)
	}

	m.cached = conn
	m.cachedGen = m.generation
	return conn, nil
}

// Invalidate marks the current generation stale. The next GetClient discards
// any cached connection and builds a fresh one. Call it when the runtime
// context the connection was created under is torn down.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
}

// Disconnect tears down and drops the cached connection unconditionally.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		m.cached.Disconnect()
		m.cached = nil
	}
}
