package dosboxcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, text string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.log")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestParseRegisterDump_ParsesFinalBlock(t *testing.T) {
	log := `stale dump
EAX=00000001 EBX=00000002 ECX=00000003 EDX=00000004
ESP=00001000 EBP=00001010 ESI=00000005 EDI=00000006
EIP=00002000 EFLAGS=00000202
CS=0008 SS=0010 DS=0010 ES=0010 FS=0000 GS=0000

EAX=FFFFFFFF EBX=00000022 ECX=00000033 EDX=00000044
ESP=00002000 EBP=00002010 ESI=00000055 EDI=00000066
EIP=00003000 EFLAGS=00000246
CS=0018 SS=0020 DS=0020 ES=0020 FS=0000 GS=0000
`
	path := writeLog(t, log)

	regs, err := ParseRegisterDump(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), regs.EAX)
	assert.Equal(t, uint32(0x22), regs.EBX)
	assert.Equal(t, uint32(0x3000), regs.EIP)
	assert.Equal(t, uint16(0x18), regs.CS)
	assert.Equal(t, uint16(0x20), regs.SS)
}

func TestParseRegisterDump_NoMatchYieldsEmptyResult(t *testing.T) {
	path := writeLog(t, "nothing interesting here\n")
	regs, err := ParseRegisterDump(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), regs.EAX)
	assert.Equal(t, uint16(0), regs.CS)
}
