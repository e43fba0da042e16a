// Package apiserver implements the debug broker's REST control surface
// (spec.md §6): backend selection, launch/shutdown, register and memory
// access, breakpoint CRUD, execution control, snapshot management, and
// the capture/golden-file endpoints.
//
// Grounded on the teacher's internal/health http_health_server.go (thin
// handler-to-domain delegation, JSON envelope helpers) and
// internal/security middleware (bearer-JWT gate on mutating routes),
// with gorilla/mux's role played by the standard library's Go 1.22+
// method-and-wildcard ServeMux patterns — the teacher itself never pulls
// in a router library for its HTTP surfaces, only for its WebSocket
// upgrade path, so this keeps the same ambient choice.
package apiserver
