// Package qemuctl implements the machine-control client: a
// newline-delimited JSON request/response protocol over a local
// stream socket, used by the socket-based backend to issue monitor
// commands (key injection, snapshots, screendumps, physical-memory
// dumps) against a running emulator. It follows the teacher's
// client.go request/response shape, adapted from HTTP to a raw
// net.Conn transport.
package qemuctl
