package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLauncher_Launch_Success(t *testing.T) {
	l := New(nil)
	p, err := launchShell(t, l, "sleep 5")
	require.NoError(t, err)
	defer p.Stop(time.Second)

	assert.True(t, p.Alive())
	assert.Greater(t, p.PID, 0)
}

func TestLauncher_Launch_EarlyExitReturnsError(t *testing.T) {
	l := New(nil)
	_, err := launchShell(t, l, "echo boom >&2; exit 1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestProcess_Stop_Graceful(t *testing.T) {
	l := New(nil)
	p, err := launchShell(t, l, "trap 'exit 0' TERM; sleep 5")
	require.NoError(t, err)

	require.NoError(t, p.Stop(time.Second))
	assert.False(t, p.Alive())
}

func launchShell(t *testing.T, l *Launcher, script string) (*Process, error) {
	t.Helper()
	return l.launchRaw(context.Background(), "/bin/sh", []string{"-c", script})
}
