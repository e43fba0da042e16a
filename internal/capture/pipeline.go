package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/machine"
)

const (
	framebufferLinear = 0xA0000
	framebufferSize   = 64000

	defaultPostKeysWait  = 2 * time.Second
	defaultBPTimeout     = 30 * time.Second
	snapshotSettleWait   = 1000 * time.Millisecond
)

// Pipeline runs capture requests against a backend and writes the
// resulting artifacts under a caller-configured directory.
//
// The session-based backend is captured via its SessionCapturer
// capability (a single spawn produces every artifact at once) while
// the socket-based backend is captured by composing its live
// primitives directly, per backend.StopWaiter.
type Pipeline struct {
	logger *logging.Logger
}

// NewPipeline creates a capture Pipeline.
func NewPipeline(logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.GetLogger("capture")
	}
	return &Pipeline{logger: logger}
}

// Run executes req against be and writes artifacts under outputDir,
// returning the finalized result (bytes, format tags, and content
// hashes for framebuffer/screenshot/extra dumps).
func (p *Pipeline) Run(ctx context.Context, be backend.Backend, req machine.CaptureRequest, outputDir string) (machine.CaptureResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return machine.CaptureResult{}, brokererr.Connection("capture", "failed to create output directory", err)
	}

	if sc, ok := be.(backend.SessionCapturer); ok {
		raw, err := sc.Capture(ctx, req)
		if err != nil {
			return machine.CaptureResult{}, err
		}
		return p.finalize(req, raw, outputDir)
	}

	raw, err := p.runComposed(ctx, be, req)
	if err != nil {
		return machine.CaptureResult{}, err
	}
	return p.finalize(req, raw, outputDir)
}

// runComposed drives the generic primitive-composed pipeline (load
// snapshot, send keys, run to breakpoint or settle, dump framebuffer,
// registers, screenshot, and extra ranges) against a backend that
// exposes a live connection across the whole sequence (the socket-based
// backend).
func (p *Pipeline) runComposed(ctx context.Context, be backend.Backend, req machine.CaptureRequest) (machine.CaptureResult, error) {
	var raw machine.CaptureResult
	raw.Prefix = req.Prefix
	raw.Extras = make(map[string][]byte)

	if req.Snapshot != "" {
		if err := be.LoadSnapshot(ctx, req.Snapshot); err != nil {
			return raw, err
		}
		sleep(ctx, snapshotSettleWait)
	}

	if len(req.Keys) > 0 {
		if err := be.SendKeys(ctx, req.Keys, req.KeyDelayMs); err != nil {
			return raw, err
		}
		wait := defaultPostKeysWait
		if req.PostKeysWaitMs > 0 {
			wait = time.Duration(req.PostKeysWaitMs) * time.Millisecond
		}
		sleep(ctx, wait)
	}

	if req.Breakpoint != nil {
		if err := p.runBreakpointBranch(ctx, be, req); err != nil {
			return raw, err
		}
	} else {
		if err := be.Pause(ctx); err != nil {
			return raw, err
		}
	}

	if !req.SkipFramebuffer {
		data, err := be.ReadMemory(ctx, addr.FromLinear(framebufferLinear), framebufferSize)
		if err != nil {
			return raw, err
		}
		raw.Framebuffer = data
	}

	if !req.SkipScreenshot {
		data, format, err := be.Screenshot(ctx)
		if err != nil {
			return raw, err
		}
		raw.Screenshot = data
		raw.ScreenshotFormat = format
	}

	if !req.SkipRegisters {
		regs, err := be.ReadRegisters(ctx)
		if err != nil {
			return raw, err
		}
		raw.Registers = &regs
	}

	for _, extra := range req.ExtraRanges {
		data, err := be.ReadMemory(ctx, extra.Address, extra.Size)
		if err != nil {
			return raw, err
		}
		raw.Extras[extra.Filename] = data
	}

	if err := be.Resume(ctx); err != nil {
		return raw, err
	}

	return raw, nil
}

// runBreakpointBranch registers an execution breakpoint, resumes, and
// waits for the guest to stop there before removing the breakpoint
// again. The stop-wait uses the backend's live stop-event channel when
// available (backend.StopWaiter); otherwise it falls back to a plain
// sleep, the "weak fallback" spec.md §9's Open Question flags as a
// last resort rather than a feature.
func (p *Pipeline) runBreakpointBranch(ctx context.Context, be backend.Backend, req machine.CaptureRequest) error {
	bp, err := be.SetBreakpoint(ctx, machine.Breakpoint{
		Kind:    machine.BreakpointExecution,
		Address: req.Breakpoint,
	})
	if err != nil {
		return err
	}

	if err := be.Resume(ctx); err != nil {
		return err
	}

	timeout := defaultBPTimeout
	if req.BreakpointTimeoutMs > 0 {
		timeout = time.Duration(req.BreakpointTimeoutMs) * time.Millisecond
	}

	if sw, ok := be.(backend.StopWaiter); ok {
		if _, err := sw.WaitForStop(ctx, timeout); err != nil {
			return err
		}
	} else {
		p.logger.WithFields(logging.Fields{"prefix": req.Prefix}).
			Warn("backend exposes no live stop-event channel; using weak sleep fallback for breakpoint wait")
		sleep(ctx, timeout)
	}

	return be.RemoveBreakpoint(ctx, bp.ID)
}

// finalize writes raw's bytes to outputDir under the canonical
// artifact naming (spec.md §6), computes content hashes over the
// exact bytes written, and writes the checksums manifest.
func (p *Pipeline) finalize(req machine.CaptureRequest, raw machine.CaptureResult, outputDir string) (machine.CaptureResult, error) {
	result := machine.CaptureResult{
		Prefix:    req.Prefix,
		Extras:    make(map[string][]byte),
		Hashes:    make(map[string]string),
		CreatedAt: now(),
	}

	if raw.Framebuffer != nil {
		hash, err := writeAndHash(filepath.Join(outputDir, req.Prefix+"_framebuffer.bin"), raw.Framebuffer)
		if err != nil {
			return result, err
		}
		result.Framebuffer = raw.Framebuffer
		result.Hashes["framebuffer"] = hash
	}

	if raw.Screenshot != nil {
		ext := raw.ScreenshotFormat
		if ext == "" {
			ext = "bin"
		}
		hash, err := writeAndHash(filepath.Join(outputDir, req.Prefix+"_screenshot."+ext), raw.Screenshot)
		if err != nil {
			return result, err
		}
		result.Screenshot = raw.Screenshot
		result.ScreenshotFormat = raw.ScreenshotFormat
		result.Hashes["screenshot"] = hash
	}

	if raw.Registers != nil {
		result.Registers = raw.Registers
		data, err := json.MarshalIndent(raw.Registers.ToMap(), "", "  ")
		if err != nil {
			return result, brokererr.Connection("capture", "failed to marshal registers", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, req.Prefix+"_registers.json"), data, 0o644); err != nil {
			return result, brokererr.Connection("capture", "failed to write registers file", err)
		}
	}

	for name, data := range raw.Extras {
		hash, err := writeAndHash(filepath.Join(outputDir, name), data)
		if err != nil {
			return result, err
		}
		result.Extras[name] = data
		result.Hashes[name] = hash
	}

	manifest, err := json.MarshalIndent(result.Hashes, "", "  ")
	if err != nil {
		return result, brokererr.Connection("capture", "failed to marshal checksums manifest", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, req.Prefix+"_checksums.json"), manifest, 0o644); err != nil {
		return result, brokererr.Connection("capture", "failed to write checksums manifest", err)
	}

	return result, nil
}

func writeAndHash(path string, data []byte) (string, error) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", brokererr.Connection("capture", "failed to write artifact "+filepath.Base(path), err)
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// now is a seam so tests can confirm CreatedAt is stamped without
// depending on wall-clock granularity.
var now = time.Now
