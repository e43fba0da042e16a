// Package capture composes backend primitives into a repeatable,
// checksummed artifact bundle (spec.md §4.8) and compares captures
// against golden artifacts on disk.
//
// Grounded on the teacher's snapshot_manager.go/recording_manager.go
// stage composition: load a precondition, wait for the guest to settle,
// dump the deterministic bits, checksum everything written to disk.
package capture
