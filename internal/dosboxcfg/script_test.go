package dosboxcfg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptBuilder_BuildsExpectedCommandSequence(t *testing.T) {
	sub := uint8(0x4C)
	dir := t.TempDir()

	path, err := NewScriptBuilder().
		BreakpointAt(0x1000, 0x0100).
		BreakpointInterrupt(0x21, &sub).
		BreakpointMemoryWrite(0x2000, 0x0000).
		Continue().
		Step(5).
		ShowRegisters().
		HexDumpToLog(0x0000, 0xA000, 64000).
		BinaryDumpToFile(0x0000, 0xA000, 64000, "/tmp/fb.bin").
		TraceLog(100).
		Raw("QUIT").
		Write(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "BP 1000:0100")
	assert.Contains(t, text, "BPINT 21 4C")
	assert.Contains(t, text, "BPM 2000:0000")
	assert.Contains(t, text, "RUN")
	assert.Contains(t, text, "STEP 5")
	assert.Contains(t, text, "REGS")
	assert.Contains(t, text, "DUMP 0000:A000 64000")
	assert.Contains(t, text, "SAVEMEM 0000:A000 64000 /tmp/fb.bin")
	assert.Contains(t, text, "TRACE 100")
	assert.Contains(t, text, "QUIT")
}

func TestScriptBuilder_InterruptWithoutSubFunction(t *testing.T) {
	dir := t.TempDir()
	path, err := NewScriptBuilder().BreakpointInterrupt(0x10, nil).Write(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "BPINT 10\n", string(data))
}
