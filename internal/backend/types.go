package backend

import (
	"context"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/launcher"
	"github.com/dosdebug/broker/internal/machine"
)

// Event is emitted on a Backend's event channel. Channel is one of the
// WebSocket broker's channel names (the backends emit on "status" and
// "debug"); Type is an event name such as "snapshot:loading" or
// "breakpoint:hit".
type Event struct {
	Channel string
	Type    string
	Payload interface{}
}

// Backend is the common contract both the socket-based (qemu) and
// session-based (dosbox) backends implement. Operations a backend
// cannot serve return a brokererr.NotSupported error rather than a
// zero value.
type Backend interface {
	Kind() string
	StatusRecord() machine.StatusRecord

	// Connect attaches to an already-running child without owning it.
	Connect(ctx context.Context) error
	// Launch spawns a child and brings the backend to running status.
	Launch(ctx context.Context, cfg launcher.Config) error
	// Disconnect closes protocol clients but leaves any owned child alive.
	Disconnect(ctx context.Context) error
	// Shutdown best-effort quits the guest, disconnects, then kills any owned child.
	Shutdown(ctx context.Context) error

	ReadMemory(ctx context.Context, address addr.Address, size int) ([]byte, error)
	WriteMemory(ctx context.Context, address addr.Address, data []byte) error
	ReadRegisters(ctx context.Context) (machine.RegisterFile, error)

	SendKeys(ctx context.Context, keys []string, delayMs int) error
	// Screenshot returns the image bytes and a format tag (ppm|bmp|png).
	Screenshot(ctx context.Context) ([]byte, string, error)

	SetBreakpoint(ctx context.Context, bp machine.Breakpoint) (machine.Breakpoint, error)
	RemoveBreakpoint(ctx context.Context, id string) error
	ListBreakpoints(ctx context.Context) ([]machine.Breakpoint, error)

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Step(ctx context.Context) (machine.RegisterFile, error)

	SaveSnapshot(ctx context.Context, name string) (machine.SnapshotHandle, error)
	LoadSnapshot(ctx context.Context, name string) error
	ListSnapshots(ctx context.Context) ([]machine.SnapshotHandle, error)

	Events() <-chan Event
}

// StopWaiter is implemented by backends that expose a live stop-event
// channel the capture pipeline can block on instead of sleeping. Only
// the socket-based backend satisfies it; the session-based backend's
// absence routes capture to the sleep-fallback (spec's Open Question
// on the breakpoint-branch capability sniff).
type StopWaiter interface {
	WaitForStop(ctx context.Context, timeout time.Duration) (machine.RegisterFile, error)
}

// SessionCapturer is implemented by backends that cannot serve
// internal/capture's generic primitive-composed pipeline (no live
// connection to hold open across steps) and instead perform an
// entire capture in one spawn. Only the session-based backend
// satisfies it; the socket-based backend is captured via the
// generic pipeline instead.
type SessionCapturer interface {
	Capture(ctx context.Context, req machine.CaptureRequest) (machine.CaptureResult, error)
}
