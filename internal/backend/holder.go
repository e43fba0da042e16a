package backend

import (
	"context"
	"sync"

	"github.com/dosdebug/broker/internal/brokererr"
)

// Holder is the process-wide single-slot reference to the currently
// selected backend. HTTP and WebSocket handlers always read through
// Get so they pick up reseats performed by Reselect.
//
// Grounded on controller.go's single-owner-with-mutex pattern and
// ConfigManager's atomic swap-gate idiom (here expressed with a plain
// RWMutex since the slot itself, not a bool flag, is what's guarded).
type Holder struct {
	mu      sync.RWMutex
	current Backend
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Get returns the current backend, or an error if none is attached.
func (h *Holder) Get() (Backend, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, brokererr.Connection("backend.get", "no backend attached", nil)
	}
	return h.current, nil
}

// Peek returns the current backend and whether one is attached,
// without raising an error; useful for status reporting.
func (h *Holder) Peek() (Backend, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.current != nil
}

// Set reseats the holder with a new backend, returning the previous
// one (nil if none) so the caller can shut it down.
func (h *Holder) Set(next Backend) Backend {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

// Clear empties the holder, returning the previous backend.
func (h *Holder) Clear() Backend {
	return h.Set(nil)
}

// BackendKind reports the kind of the currently attached backend, or
// "none" when the holder is empty. Satisfies health.BackendStatusProvider.
func (h *Holder) BackendKind() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return "none"
	}
	return h.current.Kind()
}

// Reselect best-effort shuts down the current backend, then installs
// next. Shutdown errors are returned but next is installed regardless,
// matching spec.md §4.9's "shuts down best-effort, then reseats".
func (h *Holder) Reselect(ctx context.Context, next Backend) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	if h.current != nil {
		err = h.current.Shutdown(ctx)
	}
	h.current = next
	return err
}
