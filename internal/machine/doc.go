// Package machine holds the emulator-facing value types shared by
// every backend: register files, breakpoints, snapshot handles,
// backend status, and memory-watch registrations. Apart from Watch's
// poll guard, last-hash and suspend state, it has no behavior of its
// own — backends and the capture pipeline build and
// interpret these values; this package just gives them one shared,
// serializable shape.
package machine
