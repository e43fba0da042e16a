package machine

import (
	"testing"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/stretchr/testify/assert"
)

func TestNewWatch_ClampsPollInterval(t *testing.T) {
	w := NewWatch("w1", addr.FromLinear(0xB8000), 4, 50*time.Millisecond)
	assert.Equal(t, MinPollInterval, w.Interval)
}

func TestNewWatch_KeepsLongerInterval(t *testing.T) {
	w := NewWatch("w1", addr.FromLinear(0xB8000), 4, 500*time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, w.Interval)
}

func TestWatch_ShouldEmit_OnlyOnHashChange(t *testing.T) {
	w := NewWatch("w1", addr.FromLinear(0xB8000), 4, time.Second)

	assert.True(t, w.ShouldEmit("hash-a"))
	assert.False(t, w.ShouldEmit("hash-a"))
	assert.True(t, w.ShouldEmit("hash-b"))
}

func TestWatch_Invalidate_ForcesNextEmit(t *testing.T) {
	w := NewWatch("w1", addr.FromLinear(0xB8000), 4, time.Second)
	assert.True(t, w.ShouldEmit("hash-a"))
	assert.False(t, w.ShouldEmit("hash-a"))

	w.Invalidate()
	assert.True(t, w.ShouldEmit("hash-a"))
}

func TestWatch_TryBeginPoll_SkipsWhenInFlight(t *testing.T) {
	w := NewWatch("w1", addr.FromLinear(0xB8000), 4, time.Second)
	assert.True(t, w.TryBeginPoll())
	assert.False(t, w.TryBeginPoll())

	w.EndPoll()
	assert.True(t, w.TryBeginPoll())
}

func TestWatch_SuspendResume(t *testing.T) {
	w := NewWatch("w1", addr.FromLinear(0xB8000), 4, time.Second)
	assert.False(t, w.IsSuspended())

	w.Suspend()
	assert.True(t, w.IsSuspended())

	w.Resume()
	assert.False(t, w.IsSuspended())
}
