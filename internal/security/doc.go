// Package security gates the debug broker's HTTP management endpoints
// (backend select, launch, execution control) behind a bearer JWT,
// following the teacher's JWT handler pattern scoped down to a single
// operator role. Read-only endpoints and the WebSocket broker's
// one-shot reads stay open, matching the teacher's split between
// authenticated mutations and open health/status checks.
package security
