// Package operation tracks in-flight device commands until the entity
// confirms them through the state stream.
//
// Calling a Home Assistant service only queues work; the authoritative
// signal that a light actually turned on is the state_changed event that
// follows. The Tracker bridges that gap: callers register an operation
// with an optional expected state, feed state changes in (directly or via
// HandleEvent on a WebSocket subscription), and poll or inspect the
// operation until it completes, fails, times out, or is cancelled.
//
// The tracker is bounded: finished operations age out and the oldest
// completed ones are evicted when the in-memory cap is exceeded.
package operation
