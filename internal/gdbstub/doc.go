// Package gdbstub implements the remote-debug client: the classic
// remote-serial-debug packet protocol ($payload#checksum, acked with
// "+") used for live register and memory access, breakpoint
// management, and execution control against the socket-based
// backend. There is no teacher file wrapping this exact protocol; it
// is grounded on the teacher's low-level persistent-connection
// pattern in rtsp_connection_manager.go/rtsp_keepalive_reader.go
// (manual framing over a raw net.Conn, explicit read deadlines, typed
// connection/timeout errors), generalized from RTSP interleaved
// framing to packet/ack framing.
package gdbstub
