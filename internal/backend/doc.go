// Package backend defines the common contract both emulator backends
// implement, and provides the two concrete backends (qemuBackend,
// dosboxBackend), the single-lane executor each backend runs its
// primitives through, and the process-wide holder/factory pair that
// lets HTTP and WebSocket handlers reseat the active backend.
//
// Each backend composes a protocol client, optional child process, and
// supporting helpers behind one typed contract, with RWMutex-guarded
// state, a typed lifecycle, and event emission to subscribers.
package backend
