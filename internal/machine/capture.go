package machine

import (
	"time"

	"github.com/dosdebug/broker/internal/addr"
)

// ExtraRange names one additional memory range the capture pipeline
// should dump alongside the framebuffer and registers.
type ExtraRange struct {
	Address  addr.Address
	Size     int
	Filename string
}

// CaptureRequest describes one capture-pipeline invocation.
type CaptureRequest struct {
	Prefix string

	Snapshot       string       // optional: load before capturing
	Breakpoint     *addr.Address // optional: run-to-breakpoint before capturing
	Keys           []string      // optional: inject before capturing
	KeyDelayMs     int
	PostKeysWaitMs int // default 2000
	BreakpointTimeoutMs int // default 30000
	ExtraRanges    []ExtraRange

	SkipFramebuffer bool
	SkipRegisters   bool
	SkipScreenshot  bool
}

// CaptureResult is the artifact bundle a capture produces.
type CaptureResult struct {
	Prefix string

	Framebuffer      []byte
	Screenshot       []byte
	ScreenshotFormat string
	Registers        *RegisterFile

	Extras map[string][]byte
	Hashes map[string]string

	CreatedAt time.Time
}
