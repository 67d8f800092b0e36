package connection

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Phase is the connection lifecycle phase. Authenticated implies Connected.
type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// State holds all mutable per-connection bookkeeping: the correlation id
// counter, the pending-request and render-slot tables, the handshake mailbox,
// and the event-handler registry. It performs no I/O.
//
// Completion values are one-shot channels with capacity 1. Resolving delivers
// the message and removes the entry; cancelling closes the channel and removes
// the entry. A waiter therefore sees either the response or a closed channel,
// never both.
type State struct {
	phase  atomic.Int32
	nextID atomic.Int64

	mu          sync.Mutex
	pending     map[int64]chan Message
	renderSlots map[int64]chan Message
	handshake   map[string]Message
	handlers    map[string]map[HandlerID]EventHandler
	handlerSeq  HandlerID
}

// NewState returns an empty State in phase Disconnected.
func NewState() *State {
	return &State{
		pending:     make(map[int64]chan Message),
		renderSlots: make(map[int64]chan Message),
		handshake:   make(map[string]Message),
		handlers:    make(map[string]map[HandlerID]EventHandler),
	}
}

// Phase returns the current connection phase.
func (s *State) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *State) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// NextID returns the next correlation id. Ids are strictly increasing while
// the connection lives, starting at 1, and reset only by Reset.
func (s *State) NextID() int64 {
	return s.nextID.Add(1)
}

// RegisterPending creates a completion value for id. It fails if the id is
// already held by either correlation table: a given id must never be
// registered in both at once.
func (s *State) RegisterPending(id int64) (chan Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; ok {
		return nil, fmt.Errorf("%w: pending request %d", ErrPendingExists, id)
	}
	if _, ok := s.renderSlots[id]; ok {
		return nil, fmt.Errorf("%w: id %d held by render slot", ErrPendingExists, id)
	}

	ch := make(chan Message, 1)
	s.pending[id] = ch
	return ch, nil
}

// ResolvePending delivers msg to the waiter for id and removes the entry.
// Returns false if no entry exists; callers race timeouts against resolution,
// so an absent id is not an error.
func (s *State) ResolvePending(id int64, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)

	select {
	case ch <- msg:
	default:
	}
	return true
}

// CancelPending removes the entry for id and wakes its waiter with
// cancellation. No-op if absent.
func (s *State) CancelPending(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	close(ch)
}

// RegisterRenderSlot creates a completion value in the render-slot table,
// used for follow-up events that reuse the subscribing command's id. Same
// contract as RegisterPending, including the cross-table check.
func (s *State) RegisterRenderSlot(id int64) (chan Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.renderSlots[id]; ok {
		return nil, fmt.Errorf("%w: render slot %d", ErrPendingExists, id)
	}
	if _, ok := s.pending[id]; ok {
		return nil, fmt.Errorf("%w: id %d held by pending request", ErrPendingExists, id)
	}

	ch := make(chan Message, 1)
	s.renderSlots[id] = ch
	return ch, nil
}

// ResolveRenderSlot delivers msg to the render-slot waiter for id.
func (s *State) ResolveRenderSlot(id int64, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.renderSlots[id]
	if !ok {
		return false
	}
	delete(s.renderSlots, id)

	select {
	case ch <- msg:
	default:
	}
	return true
}

// CancelRenderSlot removes the render-slot entry for id. No-op if absent.
func (s *State) CancelRenderSlot(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.renderSlots[id]
	if !ok {
		return
	}
	delete(s.renderSlots, id)
	close(ch)
}

// StoreHandshake stores a handshake message, keyed by type. The last message
// of each type wins until consumed.
func (s *State) StoreHandshake(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handshake[msg.Type] = msg
}

// ConsumeHandshake retrieves and removes a stored handshake message.
func (s *State) ConsumeHandshake(msgType string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.handshake[msgType]
	if ok {
		delete(s.handshake, msgType)
	}
	return msg, ok
}

// AddEventHandler registers h for eventType and returns an id for removal.
// A handler may be registered for multiple event types (one id each).
func (s *State) AddEventHandler(eventType string, h EventHandler) HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlerSeq++
	id := s.handlerSeq

	m, ok := s.handlers[eventType]
	if !ok {
		m = make(map[HandlerID]EventHandler)
		s.handlers[eventType] = m
	}
	m[id] = h
	return id
}

// RemoveEventHandler removes the handler registered under id for eventType.
// Removing the last handler for a type removes the type entry.
func (s *State) RemoveEventHandler(eventType string, id HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.handlers[eventType]
	if !ok {
		return
	}
	delete(m, id)
	if len(m) == 0 {
		delete(s.handlers, eventType)
	}
}

// Handlers returns a frozen snapshot of the handlers for eventType in
// registration order. Handlers added or removed during an in-progress
// fan-out never affect that fan-out.
func (s *State) Handlers(eventType string) []EventHandler {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.handlers[eventType]
	if len(m) == 0 {
		return nil
	}

	ids := make([]HandlerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]EventHandler, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

// Reset clears all connection-scoped state: every outstanding pending request
// and render slot is cancelled, the handshake mailbox is emptied, the id
// counter restarts, and the phase drops to Disconnected. Event handlers are
// preserved so callers keep their registrations across reconnects.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
	for id, ch := range s.renderSlots {
		delete(s.renderSlots, id)
		close(ch)
	}
	clear(s.handshake)

	s.nextID.Store(0)
	s.phase.Store(int32(PhaseDisconnected))
}
