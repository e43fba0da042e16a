package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/gdbstub"
	"github.com/dosdebug/broker/internal/launcher"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/machine"
	"github.com/dosdebug/broker/internal/qemuctl"
	"github.com/google/uuid"
)

const (
	connectRetryAttempts = 20
	connectRetryDelay    = 500 * time.Millisecond
)

// qemuBackend is the socket-based backend: a long-lived emulator child
// whose machine-control and remote-debug channels stay open across
// many operations, all serialized through a single lane.
type qemuBackend struct {
	paths  Paths
	logger *logging.Logger
	lane   *laneExecutor

	mu          sync.RWMutex
	status      machine.StatusRecord
	mc          *qemuctl.Client
	gdb         *gdbstub.Client
	proc        *launcher.Process
	breakpoints map[string]machine.Breakpoint
	closed      bool

	events chan Event
}

func newQEMUBackend(paths Paths, logger *logging.Logger) *qemuBackend {
	return &qemuBackend{
		paths:       paths,
		logger:      logger,
		lane:        newLaneExecutor(),
		status:      machine.StatusRecord{Backend: string(KindQEMU), Status: machine.StatusDisconnected},
		breakpoints: make(map[string]machine.Breakpoint),
		events:      make(chan Event, 64),
	}
}

func (b *qemuBackend) Kind() string { return string(KindQEMU) }

func (b *qemuBackend) StatusRecord() machine.StatusRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *qemuBackend) setStatus(s machine.Status) {
	b.mu.Lock()
	b.status.Status = s
	b.mu.Unlock()
	b.emit("status", "status:changed", s)
}

// emit holds a read lock for the duration of the send so a concurrent
// Shutdown (which takes the write lock to close b.events) can never
// close the channel while a send is in flight.
func (b *qemuBackend) emit(channel, typ string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- Event{Channel: channel, Type: typ, Payload: payload}:
	default:
	}
}

func (b *qemuBackend) Events() <-chan Event { return b.events }

func (b *qemuBackend) remoteDebugAddr() string {
	host := b.paths.RemoteDebugHost
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, b.paths.RemoteDebugPort)
}

// Connect attaches both clients to an already-running child, without
// spawning or owning it.
func (b *qemuBackend) Connect(ctx context.Context) error {
	return b.lane.run(ctx, func() error {
		mc, err := qemuctl.Connect(b.paths.MonitorSocketPath, b.logger)
		if err != nil {
			return err
		}
		gdb, err := gdbstub.Connect(b.remoteDebugAddr(), b.logger)
		if err != nil {
			mc.Close()
			return err
		}
		b.mu.Lock()
		b.mc, b.gdb = mc, gdb
		b.status.MachineControlAlive, b.status.RemoteDebugAlive = true, true
		b.mu.Unlock()
		b.setStatus(machine.StatusRunning)
		return nil
	})
}

// Launch spawns a child and poll-connects both clients with bounded
// retries; status becomes running only once both are up.
func (b *qemuBackend) Launch(ctx context.Context, cfg launcher.Config) error {
	return b.lane.run(ctx, func() error {
		b.setStatus(machine.StatusLaunching)

		l := launcher.New(b.logger)
		proc, err := l.Launch(ctx, cfg)
		if err != nil {
			b.setStatus(machine.StatusError)
			return err
		}
		b.mu.Lock()
		b.proc = proc
		pid := proc.PID
		b.status.PID = &pid
		b.mu.Unlock()

		var mc *qemuctl.Client
		var gdb *gdbstub.Client
		for attempt := 0; attempt < connectRetryAttempts; attempt++ {
			if mc == nil {
				if c, cerr := qemuctl.Connect(b.paths.MonitorSocketPath, b.logger); cerr == nil {
					mc = c
				}
			}
			if gdb == nil {
				if c, cerr := gdbstub.Connect(b.remoteDebugAddr(), b.logger); cerr == nil {
					gdb = c
				}
			}
			if mc != nil && gdb != nil {
				break
			}
			select {
			case <-ctx.Done():
				b.setStatus(machine.StatusError)
				return ctx.Err()
			case <-time.After(connectRetryDelay):
			}
		}

		if mc == nil || gdb == nil {
			b.setStatus(machine.StatusError)
			if mc != nil {
				mc.Close()
			}
			if gdb != nil {
				gdb.Close()
			}
			return brokererr.Connection("launch", "timed out connecting to launched emulator", nil)
		}

		b.mu.Lock()
		b.mc, b.gdb = mc, gdb
		b.status.MachineControlAlive, b.status.RemoteDebugAlive = true, true
		b.mu.Unlock()
		b.setStatus(machine.StatusRunning)
		return nil
	})
}

// Disconnect closes both clients, leaving any owned child alive.
func (b *qemuBackend) Disconnect(ctx context.Context) error {
	return b.lane.run(ctx, func() error {
		b.mu.Lock()
		if b.mc != nil {
			b.mc.Close()
			b.mc = nil
		}
		if b.gdb != nil {
			b.gdb.Close()
			b.gdb = nil
		}
		b.status.MachineControlAlive, b.status.RemoteDebugAlive = false, false
		b.mu.Unlock()
		b.setStatus(machine.StatusDisconnected)
		return nil
	})
}

// Shutdown best-effort quits the guest via machine-control, disconnects,
// then kills any owned child.
func (b *qemuBackend) Shutdown(ctx context.Context) error {
	return b.lane.run(ctx, func() error {
		b.mu.RLock()
		mc, proc := b.mc, b.proc
		b.mu.RUnlock()

		if mc != nil {
			_ = mc.Quit()
		}

		b.mu.Lock()
		if b.mc != nil {
			b.mc.Close()
			b.mc = nil
		}
		if b.gdb != nil {
			b.gdb.Close()
			b.gdb = nil
		}
		b.status.MachineControlAlive, b.status.RemoteDebugAlive = false, false
		b.mu.Unlock()

		if proc != nil {
			_ = proc.Stop(5 * time.Second)
		}
		b.setStatus(machine.StatusDisconnected)

		// Close the event stream so AttachBackend's forwarding goroutine
		// exits instead of blocking forever on a backend that will never
		// be reselected (spec.md §4.10's shutdown-on-reselect flow).
		b.mu.Lock()
		if !b.closed {
			b.closed = true
			close(b.events)
		}
		b.mu.Unlock()
		return nil
	})
}

func (b *qemuBackend) clients() (*qemuctl.Client, *gdbstub.Client, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.mc == nil || b.gdb == nil {
		return nil, nil, brokererr.Connection("backend", "not connected", nil)
	}
	return b.mc, b.gdb, nil
}

func (b *qemuBackend) ReadMemory(ctx context.Context, address addr.Address, size int) ([]byte, error) {
	var out []byte
	err := b.lane.run(ctx, func() error {
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		out, err = gdb.ReadMemory(address.Linear, size)
		return err
	})
	return out, err
}

func (b *qemuBackend) WriteMemory(ctx context.Context, address addr.Address, data []byte) error {
	return b.lane.run(ctx, func() error {
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		return gdb.WriteMemory(address.Linear, data)
	})
}

func (b *qemuBackend) ReadRegisters(ctx context.Context) (machine.RegisterFile, error) {
	var regs machine.RegisterFile
	err := b.lane.run(ctx, func() error {
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		regs, err = gdb.ReadRegisters()
		return err
	})
	return regs, err
}

func (b *qemuBackend) SendKeys(ctx context.Context, keys []string, delayMs int) error {
	return b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}
		return mc.SendKeysSequence(keys, delayMs)
	})
}

// Screenshot asks the machine-control client to dump to a throwaway
// temp file, then reads it back. QEMU's screendump produces PPM.
func (b *qemuBackend) Screenshot(ctx context.Context) ([]byte, string, error) {
	var data []byte
	err := b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}
		f, err := os.CreateTemp("", "qemu-screendump-*.ppm")
		if err != nil {
			return brokererr.Connection("screenshot", "failed to create temp file", err)
		}
		path := f.Name()
		f.Close()
		defer os.Remove(path)

		if err := mc.Screendump(path); err != nil {
			return err
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return brokererr.Connection("screenshot", "failed to read back screendump", err)
		}
		return nil
	})
	return data, "ppm", err
}

func (b *qemuBackend) SetBreakpoint(ctx context.Context, bp machine.Breakpoint) (machine.Breakpoint, error) {
	if bp.Kind != machine.BreakpointExecution {
		return machine.Breakpoint{}, brokererr.NotSupported("set_breakpoint", "only execution breakpoints are supported by this backend")
	}
	if bp.Address == nil {
		return machine.Breakpoint{}, brokererr.Argument("set_breakpoint", "execution breakpoint requires an address")
	}

	var result machine.Breakpoint
	err := b.lane.run(ctx, func() error {
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		if err := gdb.SetBreakpoint(bp.Address.Linear); err != nil {
			return err
		}
		if bp.ID == "" {
			bp.ID = uuid.NewString()
		}
		bp.Enabled = true
		b.mu.Lock()
		b.breakpoints[bp.ID] = bp
		b.mu.Unlock()
		result = bp
		return nil
	})
	return result, err
}

func (b *qemuBackend) RemoveBreakpoint(ctx context.Context, id string) error {
	return b.lane.run(ctx, func() error {
		b.mu.RLock()
		bp, ok := b.breakpoints[id]
		b.mu.RUnlock()
		if !ok {
			return brokererr.Argument("remove_breakpoint", "unknown breakpoint id: "+id)
		}
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		if err := gdb.RemoveBreakpoint(bp.Address.Linear); err != nil {
			return err
		}
		b.mu.Lock()
		delete(b.breakpoints, id)
		b.mu.Unlock()
		return nil
	})
}

func (b *qemuBackend) ListBreakpoints(ctx context.Context) ([]machine.Breakpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]machine.Breakpoint, 0, len(b.breakpoints))
	for _, bp := range b.breakpoints {
		out = append(out, bp)
	}
	return out, nil
}

func (b *qemuBackend) Pause(ctx context.Context) error {
	return b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}
		if err := mc.Stop(); err != nil {
			return err
		}
		b.setStatus(machine.StatusPaused)
		return nil
	})
}

func (b *qemuBackend) Resume(ctx context.Context) error {
	return b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}
		if err := mc.Cont(); err != nil {
			return err
		}
		b.setStatus(machine.StatusRunning)
		return nil
	})
}

func (b *qemuBackend) Step(ctx context.Context) (machine.RegisterFile, error) {
	var regs machine.RegisterFile
	err := b.lane.run(ctx, func() error {
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		if _, err := gdb.Step(); err != nil {
			return err
		}
		regs, err = gdb.ReadRegisters()
		if err == nil {
			b.emit("debug", "step:complete", regs)
		}
		return err
	})
	return regs, err
}

// SaveSnapshot and LoadSnapshot wrap the human-monitor commands;
// LoadSnapshot clears the breakpoint table and brackets its work with
// snapshot:loading/loaded/load-failed events (spec.md §4.4, §5).
func (b *qemuBackend) SaveSnapshot(ctx context.Context, name string) (machine.SnapshotHandle, error) {
	var handle machine.SnapshotHandle
	err := b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}
		if err := mc.SaveSnapshot(name); err != nil {
			return err
		}
		handle = machine.SnapshotHandle{Name: name, Backend: b.Kind()}
		return nil
	})
	return handle, err
}

func (b *qemuBackend) LoadSnapshot(ctx context.Context, name string) error {
	return b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}

		b.mu.Lock()
		b.breakpoints = make(map[string]machine.Breakpoint)
		b.mu.Unlock()

		b.setStatus(machine.StatusPaused)
		b.emit("status", "snapshot:loading", name)

		if err := mc.LoadSnapshot(name); err != nil {
			b.emit("status", "snapshot:load-failed", name)
			b.setStatus(machine.StatusError)
			return err
		}

		b.emit("status", "snapshot:loaded", name)
		b.setStatus(machine.StatusRunning)
		return nil
	})
}

// ListSnapshots asks the human monitor for "info snapshots" and parses
// the leading identifier of each non-header line. Free-form text,
// stability across emulator versions assumed but not specified (spec.md §9).
func (b *qemuBackend) ListSnapshots(ctx context.Context) ([]machine.SnapshotHandle, error) {
	var out []machine.SnapshotHandle
	err := b.lane.run(ctx, func() error {
		mc, _, err := b.clients()
		if err != nil {
			return err
		}
		text, err := mc.ListSnapshots()
		if err != nil {
			return err
		}
		for _, line := range strings.Split(text, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			first := fields[0]
			if first == "ID" || first == "--" || strings.HasPrefix(first, "List") {
				continue
			}
			if _, convErr := fmt.Sscanf(first, "%d", new(int)); convErr != nil {
				continue
			}
			name := first
			if len(fields) > 1 {
				name = fields[1]
			}
			out = append(out, machine.SnapshotHandle{Name: name, Backend: b.Kind()})
		}
		return nil
	})
	return out, err
}

// WaitForStop satisfies the StopWaiter capability the capture pipeline
// sniffs for: it reads the next remote-debug packet (the stop
// notification) bounded by timeout, then reads registers.
func (b *qemuBackend) WaitForStop(ctx context.Context, timeout time.Duration) (machine.RegisterFile, error) {
	var regs machine.RegisterFile
	err := b.lane.run(ctx, func() error {
		_, gdb, err := b.clients()
		if err != nil {
			return err
		}
		if _, err := gdb.WaitForStop(timeout); err != nil {
			return err
		}
		regs, err = gdb.ReadRegisters()
		if err == nil {
			b.emit("debug", "breakpoint:hit", regs)
		}
		return err
	})
	return regs, err
}
