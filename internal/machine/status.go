package machine

// Status is the backend lifecycle state. A backend is either fully
// connected or fully disconnected; partial states surface as
// StatusError rather than as a new enum value.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusLaunching    Status = "launching"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusError        Status = "error"
)

// StatusRecord is the companion record reported alongside Status:
// which backend tag is active, its process id if spawned, and, for
// the socket-based backend, whether each of its two connections is
// currently alive.
type StatusRecord struct {
	Backend               string
	Status                Status
	PID                    *int
	MachineControlAlive   bool
	RemoteDebugAlive      bool
}
