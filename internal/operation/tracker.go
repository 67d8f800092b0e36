package operation

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// Status of a tracked device operation.
type Status int

const (
	StatusPending Status = iota
	StatusCompleted
	StatusFailed
	StatusTimedOut
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Defaults for tracker construction and operation timeouts.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxOperations   = 1000
	DefaultCleanupInterval = 5 * time.Minute

	completedMaxAge = 5 * time.Minute
	failedMaxAge    = 1 * time.Minute
)

// Operation is one device command awaiting confirmation from the state
// stream. A command is not done when the service call returns; it is done
// when the entity reports the expected state.
type Operation struct {
	ID          uuid.UUID
	EntityID    string
	Action      string
	Domain      string
	Service     string
	Data        map[string]any
	Expected    map[string]any // nil: any non-unavailable state confirms
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time // zero until the operation reaches a terminal status
	Result      *model.EntityState
	Reason      string
	Timeout     time.Duration
}

// Elapsed returns the time since the operation started.
func (o *Operation) Elapsed() time.Duration {
	return time.Since(o.StartedAt)
}

// Expired reports whether a pending operation has outlived its timeout.
func (o *Operation) Expired() bool {
	return o.Status == StatusPending && o.Elapsed() > o.Timeout
}

// Duration returns how long the operation ran, once it is terminal.
func (o *Operation) Duration() (time.Duration, bool) {
	if o.CompletedAt.IsZero() {
		return 0, false
	}
	return o.CompletedAt.Sub(o.StartedAt), true
}

// Request describes a device operation to track.
type Request struct {
	EntityID string
	Action   string
	Domain   string
	Service  string
	Data     map[string]any
	Expected map[string]any
	Timeout  time.Duration
}

// Summary aggregates tracker contents by status.
type Summary struct {
	Total          int
	ByStatus       map[Status]int
	ExpiredPending int
}

// Tracker stores operations in memory and resolves them against incoming
// state changes. All methods are safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	ops         map[uuid.UUID]*Operation
	lastCleanup time.Time

	logger       *slog.Logger
	maxOps       int
	cleanupEvery time.Duration
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMaxOperations caps how many operations are kept in memory.
func WithMaxOperations(n int) TrackerOption {
	return func(t *Tracker) {
		t.maxOps = n
	}
}

// WithCleanupInterval sets how often opportunistic cleanup may run.
func WithCleanupInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.cleanupEvery = d
	}
}

// NewTracker creates an operation tracker. A nil logger uses slog.Default().
func NewTracker(logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		ops:          make(map[uuid.UUID]*Operation),
		lastCleanup:  time.Now(),
		logger:       logger,
		maxOps:       DefaultMaxOperations,
		cleanupEvery: DefaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create registers a new pending operation and returns its id. A zero
// timeout uses DefaultTimeout.
func (t *Tracker) Create(req Request) uuid.UUID {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	op := &Operation{
		ID:        uuid.New(),
		EntityID:  req.EntityID,
		Action:    req.Action,
		Domain:    req.Domain,
		Service:   req.Service,
		Data:      req.Data,
		Expected:  req.Expected,
		Status:    StatusPending,
		StartedAt: time.Now(),
		Timeout:   timeout,
	}

	t.mu.Lock()
	t.ops[op.ID] = op
	over := len(t.ops) > t.maxOps*8/10
	t.mu.Unlock()

	if over {
		t.Cleanup(false)
	}

	t.logger.Info("created operation", "id", op.ID, "entity_id", op.EntityID, "action", op.Action)
	return op.ID
}

// Get returns a snapshot of the operation. A pending operation past its
// timeout is marked timed out on the way through.
func (t *Tracker) Get(id uuid.UUID) (Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return Operation{}, false
	}

	if op.Expired() {
		op.Status = StatusTimedOut
		op.CompletedAt = time.Now()
		op.Reason = "operation timed out after " + op.Timeout.String()
		t.logger.Warn("operation timed out", "id", op.ID, "entity_id", op.EntityID)
	}

	return *op, true
}

// Update moves an operation to a new status. Returns false if the id is
// unknown.
func (t *Tracker) Update(id uuid.UUID, status Status, result *model.EntityState, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(id, status, result, reason)
}

func (t *Tracker) updateLocked(id uuid.UUID, status Status, result *model.EntityState, reason string) bool {
	op, ok := t.ops[id]
	if !ok {
		return false
	}

	op.Status = status
	op.CompletedAt = time.Now()
	if result != nil {
		op.Result = result
	}
	if reason != "" {
		op.Reason = reason
	}

	t.logger.Info("updated operation", "id", id, "status", status.String())
	return true
}

// PendingFor returns snapshots of the live pending operations for an entity.
func (t *Tracker) PendingFor(entityID string) []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []Operation
	for _, op := range t.ops {
		if op.EntityID == entityID && op.Status == StatusPending && !op.Expired() {
			pending = append(pending, *op)
		}
	}
	return pending
}

// ProcessStateChange resolves pending operations for the entity against its
// new state: a matching state completes the operation, an unavailable state
// fails it, anything else leaves it pending. Returns the ids it updated.
func (t *Tracker) ProcessStateChange(entityID string, newState *model.EntityState) []uuid.UUID {
	if newState == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var updated []uuid.UUID
	for _, op := range t.ops {
		if op.EntityID != entityID || op.Status != StatusPending || op.Expired() {
			continue
		}

		switch {
		case matchesExpected(op, newState):
			t.updateLocked(op.ID, StatusCompleted, newState, "")
			updated = append(updated, op.ID)

		case newState.State == "unavailable":
			t.updateLocked(op.ID, StatusFailed, nil, "device became unavailable")
			updated = append(updated, op.ID)
		}
	}
	return updated
}

// HandleEvent is an event-stream bridge: it parses state_changed events and
// feeds them through ProcessStateChange.
func (t *Tracker) HandleEvent(ev model.Event) {
	change, err := model.ParseStateChange(ev)
	if err != nil {
		t.logger.Debug("skipping unparseable state change", "error", err)
		return
	}
	if change.NewState == nil {
		return
	}
	t.ProcessStateChange(change.EntityID, change.NewState)
}

// matchesExpected checks the new state against the operation's expectation.
// Without an expectation, any non-unavailable state counts as success.
func matchesExpected(op *Operation, state *model.EntityState) bool {
	if len(op.Expected) == 0 {
		return state.State != "unavailable"
	}

	for key, want := range op.Expected {
		if key == "state" {
			got, ok := want.(string)
			if !ok || state.State != got {
				return false
			}
			continue
		}

		got, ok := state.Attributes[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares attribute values across JSON decoding: numbers decode
// as float64 while expectations are often typed ints.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Cancel marks a pending operation cancelled.
func (t *Tracker) Cancel(id uuid.UUID) bool {
	return t.Update(id, StatusCancelled, nil, "operation cancelled")
}

// Summarize reports tracker contents grouped by status.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Total:    len(t.ops),
		ByStatus: make(map[Status]int),
	}
	for _, op := range t.ops {
		s.ByStatus[op.Status]++
		if op.Expired() {
			s.ExpiredPending++
		}
	}
	return s
}

// Cleanup removes finished operations past their retention age and expired
// pending operations. Unless forced it runs at most once per cleanup
// interval. When the tracker is still over its cap afterwards, the oldest
// completed operations are evicted. Returns how many entries were removed.
func (t *Tracker) Cleanup(force bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if !force && now.Sub(t.lastCleanup) < t.cleanupEvery {
		return 0
	}
	t.lastCleanup = now

	initial := len(t.ops)

	for id, op := range t.ops {
		age := now.Sub(op.StartedAt)
		switch {
		case op.Status == StatusCompleted && age > completedMaxAge:
			delete(t.ops, id)
		case (op.Status == StatusFailed || op.Status == StatusCancelled) && age > failedMaxAge:
			delete(t.ops, id)
		case op.Expired():
			op.Status = StatusTimedOut
			op.CompletedAt = now
			delete(t.ops, id)
		}
	}

	if excess := len(t.ops) - t.maxOps; excess > 0 {
		completed := make([]*Operation, 0, len(t.ops))
		for _, op := range t.ops {
			if op.Status == StatusCompleted {
				completed = append(completed, op)
			}
		}
		sort.Slice(completed, func(i, j int) bool {
			return completed[i].CompletedAt.Before(completed[j].CompletedAt)
		})
		if excess > len(completed) {
			excess = len(completed)
		}
		for _, op := range completed[:excess] {
			delete(t.ops, op.ID)
		}
	}

	removed := initial - len(t.ops)
	if removed > 0 {
		t.logger.Info("cleaned up operations", "removed", removed, "remaining", len(t.ops))
	}
	return removed
}
