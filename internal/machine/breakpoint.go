package machine

import "github.com/dosdebug/broker/internal/addr"

// BreakpointKind distinguishes the three kinds of breakpoint the data
// model recognizes. The socket-based backend supports only
// BreakpointExecution; the session-based backend exposes no live
// breakpoints at all (kinds are scripted inside generated debug
// files instead).
type BreakpointKind string

const (
	BreakpointExecution BreakpointKind = "execution"
	BreakpointMemory    BreakpointKind = "memory"
	BreakpointInterrupt BreakpointKind = "interrupt"
)

// Breakpoint is a single registered breakpoint. Address is only
// meaningful for execution and memory kinds; Interrupt/SubFunction
// are only meaningful for the interrupt kind.
type Breakpoint struct {
	ID          string
	Kind        BreakpointKind
	Address     *addr.Address
	Interrupt   *uint8
	SubFunction *uint8
	Enabled     bool
}
