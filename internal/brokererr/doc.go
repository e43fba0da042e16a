// Package brokererr defines the structured error taxonomy shared by
// every backend, client, and API-facing package in this module:
// ConnectionError, ProtocolError, TimeoutError, NotSupported, and
// ArgumentError. Each error carries a kind, message, optional details,
// an originating operation tag, and a timestamp; it is JSON-marshalable
// and participates in errors.Is.
package brokererr
