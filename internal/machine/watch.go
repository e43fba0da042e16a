package machine

import (
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/addr"
)

// MinPollInterval is the floor every memory-watch poll interval is
// clamped to.
const MinPollInterval = 200 * time.Millisecond

// Watch is a client-registered memory-watch. It is owned by the
// WebSocket connection that created it, torn down on disconnect,
// snapshot-load, or explicit unsubscribe.
type Watch struct {
	ID       string
	Address  addr.Address
	Size     int
	Interval time.Duration

	mu        sync.Mutex
	inFlight  bool
	lastHash  string
	suspended bool
}

// NewWatch creates a watch, clamping the poll interval to
// MinPollInterval.
func NewWatch(id string, address addr.Address, size int, interval time.Duration) *Watch {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &Watch{ID: id, Address: address, Size: size, Interval: interval}
}

// TryBeginPoll marks the watch in-flight and reports whether the
// caller won the race; a watch already in flight is skipped by the
// next poll tick rather than queued.
func (w *Watch) TryBeginPoll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight {
		return false
	}
	w.inFlight = true
	return true
}

// EndPoll clears the in-flight flag.
func (w *Watch) EndPoll() {
	w.mu.Lock()
	w.inFlight = false
	w.mu.Unlock()
}

// ShouldEmit reports whether hash differs from the last observed
// hash, updating the stored hash as a side effect when it does.
func (w *Watch) ShouldEmit(hash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if hash == w.lastHash {
		return false
	}
	w.lastHash = hash
	return true
}

// Invalidate clears the last observed hash, forcing the next poll to
// emit even if the bytes are unchanged. Used after a snapshot load.
func (w *Watch) Invalidate() {
	w.mu.Lock()
	w.lastHash = ""
	w.mu.Unlock()
}

// Suspend marks the watch suspended: its poll timer keeps firing but
// each tick short-circuits before issuing a wire read, per the
// snapshot-load coupling in spec.md §4.11.
func (w *Watch) Suspend() {
	w.mu.Lock()
	w.suspended = true
	w.mu.Unlock()
}

// Resume clears the suspended flag, letting the next poll tick read
// memory again.
func (w *Watch) Resume() {
	w.mu.Lock()
	w.suspended = false
	w.mu.Unlock()
}

// IsSuspended reports whether the watch is currently suspended.
func (w *Watch) IsSuspended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suspended
}
