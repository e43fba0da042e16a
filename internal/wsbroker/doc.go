// Package wsbroker implements the single /ws endpoint that multiplexes
// the debug broker's live-control surface to a browser debugger UI
// (spec.md §4.11): typed JSON channel subscriptions, per-connection
// binary-framed memory/screenshot streaming, and memory-watch polling
// with snapshot-load invalidation.
//
// Grounded on the teacher's internal/websocket package (server.go's
// gorilla/websocket upgrade and per-client goroutine pattern, events.go's
// topic subscription sets) with the wire protocol replaced wholesale:
// this broker is not JSON-RPC 2.0, it is the typed {"type": ...}
// envelope spec.md §4.11 defines, with an explicit binary-frame
// follow-up convention instead of JSON-RPC request/response framing.
package wsbroker
