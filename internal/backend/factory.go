package backend

import (
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/logging"
)

// Kind names a backend implementation.
type Kind string

const (
	KindQEMU   Kind = "qemu"
	KindDOSBox Kind = "dosbox"
)

// Paths resolves the on-disk locations a backend needs: the emulator
// binary, the machine-control socket path (qemu only), the remote-debug
// host:port (qemu only), and the directory the session-based backend
// writes per-operation config/script/artifact files under.
type Paths struct {
	BinaryPath        string
	MonitorSocketPath string
	RemoteDebugHost   string
	RemoteDebugPort   int
	WorkDir           string
}

// Factory constructs a disconnected backend of the requested kind.
//
// Grounded on spec.md §4.10: "The factory receives a backend kind ...
// and resolved paths, constructs a backend in the disconnected state,
// and hands it back."
type Factory struct {
	logger *logging.Logger
}

// NewFactory creates a Factory.
func NewFactory(logger *logging.Logger) *Factory {
	if logger == nil {
		logger = logging.GetLogger("backend-factory")
	}
	return &Factory{logger: logger}
}

// Build constructs a backend of the given kind in the disconnected
// state. Unknown kinds raise brokererr.Argument.
func (f *Factory) Build(kind Kind, paths Paths) (Backend, error) {
	switch kind {
	case KindQEMU:
		return newQEMUBackend(paths, f.logger), nil
	case KindDOSBox:
		return newDOSBoxBackend(paths, f.logger), nil
	default:
		return nil, brokererr.Argument("backend.build", "unknown backend kind: "+string(kind))
	}
}
