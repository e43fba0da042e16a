package launcher

// Mode names the recording posture the child is launched under.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeRecord      Mode = "record"
	ModeReplay      Mode = "replay"
)

// Config describes everything needed to build an emulator child's
// argument vector. It covers only the socket-based backend's launch
// path; the session-based backend builds its own per-operation argv
// in internal/backend/dosbox.go from the config and script files
// internal/dosboxcfg writes.
type Config struct {
	BinaryPath string `json:"binaryPath,omitempty"`

	HDImage       string `json:"hdImage,omitempty"`
	OpticalShared string `json:"opticalShared,omitempty"`
	OpticalGame   string `json:"opticalGame,omitempty"`

	Headless        bool   `json:"headless,omitempty"`
	VNCPort         int    `json:"vncPort,omitempty"`
	WindowedDisplay string `json:"windowedDisplay,omitempty"`

	AudioBackend string `json:"audioBackend,omitempty"`

	RemoteDebugHost string `json:"remoteDebugHost,omitempty"`
	RemoteDebugPort int    `json:"remoteDebugPort,omitempty"`

	MonitorSocketPath string `json:"monitorSocketPath,omitempty"`

	Interactive bool   `json:"interactive,omitempty"`
	Mode        Mode   `json:"mode,omitempty"`
	ReplayFile  string `json:"replayFile,omitempty"`

	InitialSnapshot string `json:"initialSnapshot,omitempty"`

	ExtraArgs []string `json:"extraArgs,omitempty"`
}
