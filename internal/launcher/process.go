package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/logging"
)

// earlyExitWindow is how long the launcher waits after spawn before
// declaring the child alive.
const earlyExitWindow = 500 * time.Millisecond

// Process is a spawned emulator child.
type Process struct {
	PID    int
	cmd    *exec.Cmd
	stderr *bytes.Buffer

	mu      sync.Mutex
	exited  bool
	waitErr error
}

// Launcher spawns emulator children and builds their argv.
type Launcher struct {
	logger *logging.Logger
}

// New creates a Launcher.
func New(logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.GetLogger("launcher")
	}
	return &Launcher{logger: logger}
}

// Launch builds argv from cfg, spawns the child, waits briefly for an
// early exit, and returns a Process handle on success.
func (l *Launcher) Launch(ctx context.Context, cfg Config) (*Process, error) {
	args := BuildArgs(cfg)
	return l.launchRaw(ctx, cfg.BinaryPath, args)
}

// launchRaw spawns binary with args directly, bypassing argv synthesis.
// Launch uses it after calling BuildArgs; tests use it to exercise the
// spawn/early-exit/stop lifecycle against a plain shell instead of a
// real emulator binary.
func (l *Launcher) launchRaw(ctx context.Context, binary string, args []string) (*Process, error) {
	l.logger.WithFields(logging.Fields{"binary": binary, "args": args}).Info("launching emulator")

	cmd := exec.CommandContext(ctx, binary, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, brokererr.Connection("launch", "failed to start emulator process", err)
	}

	p := &Process{PID: cmd.Process.Pid, cmd: cmd, stderr: stderr}
	go p.monitor()

	select {
	case <-time.After(earlyExitWindow):
	case <-p.waitExited():
	}

	if p.hasExited() {
		return nil, brokererr.Connection("launch", fmt.Sprintf("emulator exited immediately: %s", stderr.String()), p.exitError())
	}

	l.logger.WithFields(logging.Fields{"pid": p.PID}).Info("emulator launched successfully")
	return p, nil
}

func (p *Process) monitor() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	p.waitErr = err
	p.mu.Unlock()
}

func (p *Process) hasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *Process) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// waitExited returns a channel closed when the process has exited,
// used only to race against the early-exit window; callers should
// prefer hasExited for a non-blocking check afterward.
func (p *Process) waitExited() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for !p.hasExited() {
			time.Sleep(10 * time.Millisecond)
		}
		close(ch)
	}()
	return ch
}

// Stop terminates the process gracefully (SIGTERM), escalating to
// SIGKILL if it does not exit within gracePeriod.
func (p *Process) Stop(gracePeriod time.Duration) error {
	if p.hasExited() {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err == nil {
		deadline := time.Now().Add(gracePeriod)
		for time.Now().Before(deadline) {
			if p.hasExited() {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if p.hasExited() {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Alive reports whether the process has not yet exited.
func (p *Process) Alive() bool {
	return !p.hasExited()
}
