package dosboxcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteConfig_AppliesDefaultsAndSections(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteConfig(dir, SessionConfig{MountDir: "/host/game"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "[sdl]")
	assert.Contains(t, text, "machine=svga_s3")
	assert.Contains(t, text, "cycles=auto")
	assert.Contains(t, text, "memsize=16")
	assert.Contains(t, text, "sbbase=220")
	assert.Contains(t, text, "irq=7")
	assert.Contains(t, text, "mount c /host/game")
	assert.Contains(t, text, "c:\n")
}

func TestWriteConfig_WritesLogAndDebugPaths(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteConfig(dir, SessionConfig{
		LogPath:          "/tmp/session.log",
		DebugRunFilePath: "/tmp/session.dbg",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "logfile=/tmp/session.log")
	assert.Contains(t, text, "debugrunfile=/tmp/session.dbg")
}

func TestWriteConfig_AutoexecExtraAppended(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteConfig(dir, SessionConfig{
		MountDir:      "/host/game",
		AutoexecExtra: []string{"GAME.EXE"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GAME.EXE")
}

func TestWriteConfig_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "session")
	_, err := WriteConfig(dir, SessionConfig{})
	require.NoError(t, err)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}
