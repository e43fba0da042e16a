package dosboxcfg

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dosdebug/broker/internal/brokererr"
)

// ScriptBuilder accumulates debug-command lines for the emulator's
// built-in debugger to execute on startup, then writes them to a file.
type ScriptBuilder struct {
	lines []string
}

// NewScriptBuilder creates an empty builder.
func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{}
}

// BreakpointAt sets a breakpoint at segment:offset.
func (s *ScriptBuilder) BreakpointAt(segment, offset uint16) *ScriptBuilder {
	s.lines = append(s.lines, fmt.Sprintf("BP %04X:%04X", segment, offset))
	return s
}

// BreakpointInterrupt sets a breakpoint on an interrupt, optionally
// restricted to a sub-function (AH value).
func (s *ScriptBuilder) BreakpointInterrupt(vector uint8, subFunction *uint8) *ScriptBuilder {
	if subFunction != nil {
		s.lines = append(s.lines, fmt.Sprintf("BPINT %02X %02X", vector, *subFunction))
	} else {
		s.lines = append(s.lines, fmt.Sprintf("BPINT %02X", vector))
	}
	return s
}

// BreakpointMemoryWrite sets a breakpoint that fires on a write to
// segment:offset.
func (s *ScriptBuilder) BreakpointMemoryWrite(segment, offset uint16) *ScriptBuilder {
	s.lines = append(s.lines, fmt.Sprintf("BPM %04X:%04X", segment, offset))
	return s
}

// Continue resumes execution until the next breakpoint.
func (s *ScriptBuilder) Continue() *ScriptBuilder {
	s.lines = append(s.lines, "RUN")
	return s
}

// Step single-steps n instructions.
func (s *ScriptBuilder) Step(n int) *ScriptBuilder {
	s.lines = append(s.lines, fmt.Sprintf("STEP %d", n))
	return s
}

// ShowRegisters writes the current register file to the log.
func (s *ScriptBuilder) ShowRegisters() *ScriptBuilder {
	s.lines = append(s.lines, "REGS")
	return s
}

// HexDumpToLog hex-dumps length bytes at segment:offset to the log.
func (s *ScriptBuilder) HexDumpToLog(segment, offset uint16, length int) *ScriptBuilder {
	s.lines = append(s.lines, fmt.Sprintf("DUMP %04X:%04X %d", segment, offset, length))
	return s
}

// BinaryDumpToFile writes length bytes at segment:offset to path.
func (s *ScriptBuilder) BinaryDumpToFile(segment, offset uint16, length int, path string) *ScriptBuilder {
	s.lines = append(s.lines, fmt.Sprintf("SAVEMEM %04X:%04X %d %s", segment, offset, length, path))
	return s
}

// TraceLog enables instruction tracing for n instructions.
func (s *ScriptBuilder) TraceLog(n int) *ScriptBuilder {
	s.lines = append(s.lines, fmt.Sprintf("TRACE %d", n))
	return s
}

// Raw appends an unescaped debugger command verbatim.
func (s *ScriptBuilder) Raw(command string) *ScriptBuilder {
	s.lines = append(s.lines, command)
	return s
}

// Write renders the accumulated commands under dir and returns the
// script's path.
func (s *ScriptBuilder) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", brokererr.Connection("write_script", "failed to create session directory", err)
	}

	var buf bytes.Buffer
	for _, line := range s.lines {
		buf.WriteString(line)
		buf.WriteString("\n")
	}

	path := filepath.Join(dir, "debug.script")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", brokererr.Connection("write_script", "failed to write debug script", err)
	}
	return path, nil
}
