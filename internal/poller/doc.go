// Package poller periodically fetches the full entity state list over REST.
//
// WebSocket subscriptions only deliver deltas, and events fired while a
// connection is down are gone for good. Periodic full snapshots reconcile
// the recorded state with reality.
package poller
