// Package connection implements the persistent WebSocket client for the
// Home Assistant API.
//
// Three collaborating pieces, leaf to root:
//   - State: per-connection bookkeeping (correlation tables, handshake
//     mailbox, event-handler registry). No I/O.
//   - Client: owns the transport and the single receive goroutine, runs the
//     token handshake, multiplexes concurrent commands and pushed events.
//   - Manager: hands out one cached live client per generation, rebuilding
//     it on invalidation or connection loss.
package connection
