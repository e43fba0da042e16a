package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/dosboxcfg"
	"github.com/dosdebug/broker/internal/launcher"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/machine"
	"github.com/google/uuid"
)

const (
	defaultSessionTimeout = 10 * time.Second
	startDebuggerSwitch   = "-starter-debug"
)

// dosboxBackend is the session-based backend: each operation spawns a
// fresh emulator child, harvests its output files, and reports the
// subset of primitives it can serve. It never owns a long-lived
// connection, so StatusRecord is always StatusDisconnected at rest.
type dosboxBackend struct {
	paths  Paths
	logger *logging.Logger
	lane   *laneExecutor

	mu     sync.Mutex
	closed bool
	events chan Event
}

func newDOSBoxBackend(paths Paths, logger *logging.Logger) *dosboxBackend {
	return &dosboxBackend{
		paths:  paths,
		logger: logger,
		lane:   newLaneExecutor(),
		events: make(chan Event, 16),
	}
}

func (b *dosboxBackend) Kind() string { return string(KindDOSBox) }

func (b *dosboxBackend) StatusRecord() machine.StatusRecord {
	return machine.StatusRecord{Backend: b.Kind(), Status: machine.StatusDisconnected}
}

func (b *dosboxBackend) Events() <-chan Event { return b.events }

// The session-based backend has no persistent connection to attach
// to, launch, or tear down; Connect/Disconnect are no-ops reporting
// its permanent disconnected status, matching scenario S6 ("status
// that remains disconnected").
func (b *dosboxBackend) Connect(ctx context.Context) error    { return nil }
func (b *dosboxBackend) Disconnect(ctx context.Context) error { return nil }

// Shutdown closes the event stream so AttachBackend's forwarding
// goroutine exits instead of leaking when this backend is displaced
// by a reselect; idempotent since nothing else ever sends on events.
func (b *dosboxBackend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

func (b *dosboxBackend) Launch(ctx context.Context, cfg launcher.Config) error { return nil }

// sessionDir creates a fresh per-operation working directory.
func (b *dosboxBackend) sessionDir() (string, error) {
	dir := filepath.Join(b.paths.WorkDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", brokererr.Connection("session", "failed to create session directory", err)
	}
	return dir, nil
}

// runSession synthesizes cfg and script, spawns the binary with the
// start-debugger switch, and waits for it to exit bounded by timeout,
// killing the child on expiry.
func (b *dosboxBackend) runSession(ctx context.Context, dir string, cfg dosboxcfg.SessionConfig, script *dosboxcfg.ScriptBuilder, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}

	confPath, err := dosboxcfg.WriteConfig(dir, cfg)
	if err != nil {
		return err
	}
	scriptPath, err := script.Write(dir)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.paths.BinaryPath, "-conf", confPath, startDebuggerSwitch, scriptPath)
	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return brokererr.Timeout("session", "emulator did not exit before timeout")
		}
		if _, ok := err.(*exec.ExitError); !ok {
			return brokererr.Connection("session", "failed to run emulator session", err)
		}
	}
	return nil
}

// ReadMemory runs one emulator session whose debug script dumps size
// bytes at address to a file and quits, then returns that file's
// contents. Every call starts a fresh session, so the bytes show the
// guest as it stands when that session's script runs: no state from
// an earlier call carries over, and how far the guest has progressed
// by then is not controlled here.
func (b *dosboxBackend) ReadMemory(ctx context.Context, address addr.Address, size int) ([]byte, error) {
	var out []byte
	err := b.lane.run(ctx, func() error {
		if size == 0 {
			out = []byte{}
			return nil
		}
		dir, err := b.sessionDir()
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		dumpPath := filepath.Join(dir, "memory.bin")
		script := dosboxcfg.NewScriptBuilder().
			BinaryDumpToFile(address.Segment, address.Offset, size, dumpPath).
			Raw("QUIT")

		if err := b.runSession(ctx, dir, dosboxcfg.SessionConfig{}, script, 0); err != nil {
			return err
		}
		out, err = os.ReadFile(dumpPath)
		if err != nil {
			return brokererr.Connection("read_memory", "session produced no memory dump", err)
		}
		return nil
	})
	return out, err
}

func (b *dosboxBackend) WriteMemory(ctx context.Context, address addr.Address, data []byte) error {
	return brokererr.NotSupported("write_memory", "live memory write is not supported by the session-based backend")
}

func (b *dosboxBackend) ReadRegisters(ctx context.Context) (machine.RegisterFile, error) {
	var regs machine.RegisterFile
	err := b.lane.run(ctx, func() error {
		dir, err := b.sessionDir()
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		logPath := filepath.Join(dir, "session.log")
		script := dosboxcfg.NewScriptBuilder().ShowRegisters().Raw("QUIT")

		if err := b.runSession(ctx, dir, dosboxcfg.SessionConfig{LogPath: logPath}, script, 0); err != nil {
			return err
		}
		regs, err = dosboxcfg.ParseRegisterDump(logPath)
		return err
	})
	return regs, err
}

func (b *dosboxBackend) SendKeys(ctx context.Context, keys []string, delayMs int) error {
	return b.lane.run(ctx, func() error {
		dir, err := b.sessionDir()
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		script := dosboxcfg.NewScriptBuilder().Continue().Raw("QUIT")
		cfg := dosboxcfg.SessionConfig{AutoexecExtra: autoTypeLines(keys, delayMs)}
		return b.runSession(ctx, dir, cfg, script, 0)
	})
}

// autoTypeLines renders the auto-typing preamble spec.md §4.7 step 3
// describes: a pre-wait, then the key sequence at a per-key period.
func autoTypeLines(keys []string, delayMs int) []string {
	if len(keys) == 0 {
		return nil
	}
	lines := []string{"WAIT 1000"}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("TYPE %s PERIOD=%d", k, delayMs))
	}
	return lines
}

func (b *dosboxBackend) Screenshot(ctx context.Context) ([]byte, string, error) {
	return nil, "", brokererr.NotSupported("screenshot", "live screenshot is not supported by the session-based backend")
}

func (b *dosboxBackend) SetBreakpoint(ctx context.Context, bp machine.Breakpoint) (machine.Breakpoint, error) {
	return machine.Breakpoint{}, brokererr.NotSupported("set_breakpoint", "live breakpoint management is not supported by the session-based backend; breakpoints are scripted per session")
}

func (b *dosboxBackend) RemoveBreakpoint(ctx context.Context, id string) error {
	return brokererr.NotSupported("remove_breakpoint", "live breakpoint management is not supported by the session-based backend")
}

func (b *dosboxBackend) ListBreakpoints(ctx context.Context) ([]machine.Breakpoint, error) {
	return nil, brokererr.NotSupported("list_breakpoints", "live breakpoint management is not supported by the session-based backend")
}

func (b *dosboxBackend) Pause(ctx context.Context) error {
	return brokererr.NotSupported("pause", "pause/resume is not supported by the session-based backend")
}

func (b *dosboxBackend) Resume(ctx context.Context) error {
	return brokererr.NotSupported("resume", "pause/resume is not supported by the session-based backend")
}

func (b *dosboxBackend) Step(ctx context.Context) (machine.RegisterFile, error) {
	return machine.RegisterFile{}, brokererr.NotSupported("step", "live step is not supported by the session-based backend")
}

func (b *dosboxBackend) SaveSnapshot(ctx context.Context, name string) (machine.SnapshotHandle, error) {
	return machine.SnapshotHandle{}, brokererr.NotSupported("save_snapshot", "snapshots are not supported by the session-based backend")
}

func (b *dosboxBackend) LoadSnapshot(ctx context.Context, name string) error {
	return brokererr.NotSupported("load_snapshot", "snapshots are not supported by the session-based backend")
}

func (b *dosboxBackend) ListSnapshots(ctx context.Context) ([]machine.SnapshotHandle, error) {
	return nil, brokererr.NotSupported("list_snapshots", "snapshots are not supported by the session-based backend")
}

// Capture performs an entire capture in a single spawn, since the
// session-based backend cannot serve the generic primitive-composed
// pipeline (internal/capture) through separate live calls. It
// implements the SessionCapturer capability interface that package
// sniffs for.
func (b *dosboxBackend) Capture(ctx context.Context, req machine.CaptureRequest) (machine.CaptureResult, error) {
	var result machine.CaptureResult
	err := b.lane.run(ctx, func() error {
		dir, err := b.sessionDir()
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		logPath := filepath.Join(dir, "session.log")
		fbPath := filepath.Join(dir, "framebuffer.bin")
		shotPath := filepath.Join(dir, "screenshot.bmp")

		script := dosboxcfg.NewScriptBuilder()
		if len(req.Keys) > 0 {
			script.Continue()
		}
		if !req.SkipFramebuffer {
			script.BinaryDumpToFile(0xA000, 0x0000, 64000, fbPath)
		}
		if !req.SkipScreenshot {
			script.Raw(fmt.Sprintf("SCREENSHOT %s", shotPath))
		}
		if !req.SkipRegisters {
			script.ShowRegisters()
		}
		extraPaths := make(map[string]string, len(req.ExtraRanges))
		for _, extra := range req.ExtraRanges {
			extraPath := filepath.Join(dir, extra.Filename)
			extraPaths[extra.Filename] = extraPath
			script.BinaryDumpToFile(extra.Address.Segment, extra.Address.Offset, extra.Size, extraPath)
		}
		script.Raw("QUIT")

		cfg := dosboxcfg.SessionConfig{LogPath: logPath, AutoexecExtra: autoTypeLines(req.Keys, req.KeyDelayMs)}
		if err := b.runSession(ctx, dir, cfg, script, 0); err != nil {
			return err
		}

		result.Prefix = req.Prefix
		result.Extras = make(map[string][]byte)

		if !req.SkipFramebuffer {
			if data, rerr := os.ReadFile(fbPath); rerr == nil {
				result.Framebuffer = data
			}
		}
		if !req.SkipScreenshot {
			if data, rerr := os.ReadFile(shotPath); rerr == nil {
				result.Screenshot = data
				result.ScreenshotFormat = "bmp"
			}
		}
		if !req.SkipRegisters {
			regs, rerr := dosboxcfg.ParseRegisterDump(logPath)
			if rerr == nil {
				result.Registers = &regs
			}
		}
		for name, p := range extraPaths {
			if data, rerr := os.ReadFile(p); rerr == nil {
				result.Extras[name] = data
			}
		}
		return nil
	})
	return result, err
}
