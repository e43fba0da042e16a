package capture

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/launcher"
	"github.com/dosdebug/broker/internal/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComposedBackend satisfies backend.Backend and backend.StopWaiter,
// standing in for the socket-based backend in pipeline tests.
type fakeComposedBackend struct {
	framebuffer []byte
	screenshot  []byte
	regs        machine.RegisterFile

	pauseCalls, resumeCalls int
	bpSet, bpRemoved        bool
	events                  chan backend.Event
}

func newFakeComposedBackend() *fakeComposedBackend {
	return &fakeComposedBackend{
		framebuffer: make([]byte, framebufferSize),
		screenshot:  []byte("P6\n1 1\n255\n\xff\xff\xff"),
		regs:        machine.RegisterFile{EAX: 0x1234},
		events:      make(chan backend.Event, 8),
	}
}

func (f *fakeComposedBackend) Kind() string { return "qemu" }
func (f *fakeComposedBackend) StatusRecord() machine.StatusRecord {
	return machine.StatusRecord{Backend: "qemu", Status: machine.StatusRunning}
}
func (f *fakeComposedBackend) Connect(ctx context.Context) error                      { return nil }
func (f *fakeComposedBackend) Launch(ctx context.Context, cfg launcher.Config) error  { return nil }
func (f *fakeComposedBackend) Disconnect(ctx context.Context) error                   { return nil }
func (f *fakeComposedBackend) Shutdown(ctx context.Context) error                     { return nil }
func (f *fakeComposedBackend) ReadMemory(ctx context.Context, a addr.Address, size int) ([]byte, error) {
	if a.Linear == framebufferLinear {
		return f.framebuffer, nil
	}
	return make([]byte, size), nil
}
func (f *fakeComposedBackend) WriteMemory(ctx context.Context, a addr.Address, data []byte) error {
	return nil
}
func (f *fakeComposedBackend) ReadRegisters(ctx context.Context) (machine.RegisterFile, error) {
	return f.regs, nil
}
func (f *fakeComposedBackend) SendKeys(ctx context.Context, keys []string, delayMs int) error {
	return nil
}
func (f *fakeComposedBackend) Screenshot(ctx context.Context) ([]byte, string, error) {
	return f.screenshot, "ppm", nil
}
func (f *fakeComposedBackend) SetBreakpoint(ctx context.Context, bp machine.Breakpoint) (machine.Breakpoint, error) {
	f.bpSet = true
	bp.ID = "bp-1"
	return bp, nil
}
func (f *fakeComposedBackend) RemoveBreakpoint(ctx context.Context, id string) error {
	f.bpRemoved = true
	return nil
}
func (f *fakeComposedBackend) ListBreakpoints(ctx context.Context) ([]machine.Breakpoint, error) {
	return nil, nil
}
func (f *fakeComposedBackend) Pause(ctx context.Context) error {
	f.pauseCalls++
	return nil
}
func (f *fakeComposedBackend) Resume(ctx context.Context) error {
	f.resumeCalls++
	return nil
}
func (f *fakeComposedBackend) Step(ctx context.Context) (machine.RegisterFile, error) {
	return f.regs, nil
}
func (f *fakeComposedBackend) SaveSnapshot(ctx context.Context, name string) (machine.SnapshotHandle, error) {
	return machine.SnapshotHandle{}, nil
}
func (f *fakeComposedBackend) LoadSnapshot(ctx context.Context, name string) error { return nil }
func (f *fakeComposedBackend) ListSnapshots(ctx context.Context) ([]machine.SnapshotHandle, error) {
	return nil, nil
}
func (f *fakeComposedBackend) Events() <-chan backend.Event { return f.events }
func (f *fakeComposedBackend) WaitForStop(ctx context.Context, timeout time.Duration) (machine.RegisterFile, error) {
	return f.regs, nil
}

func TestPipeline_Run_ComposedBackend_WritesArtifactsAndHashes(t *testing.T) {
	dir := t.TempDir()
	be := newFakeComposedBackend()
	p := NewPipeline(nil)

	result, err := p.Run(context.Background(), be, machine.CaptureRequest{Prefix: "t1"}, dir)
	require.NoError(t, err)

	assert.Equal(t, 1, be.pauseCalls)
	assert.Equal(t, 1, be.resumeCalls)

	fbPath := filepath.Join(dir, "t1_framebuffer.bin")
	fbData, err := os.ReadFile(fbPath)
	require.NoError(t, err)
	assert.Equal(t, framebufferSize, len(fbData))
	assert.Equal(t, hashBytes(fbData), result.Hashes["framebuffer"])

	shotData, err := os.ReadFile(filepath.Join(dir, "t1_screenshot.ppm"))
	require.NoError(t, err)
	assert.Equal(t, hashBytes(shotData), result.Hashes["screenshot"])

	regData, err := os.ReadFile(filepath.Join(dir, "t1_registers.json"))
	require.NoError(t, err)
	var regs map[string]uint32
	require.NoError(t, json.Unmarshal(regData, &regs))
	assert.Equal(t, uint32(0x1234), regs["eax"])

	manifest, err := os.ReadFile(filepath.Join(dir, "t1_checksums.json"))
	require.NoError(t, err)
	var hashes map[string]string
	require.NoError(t, json.Unmarshal(manifest, &hashes))
	assert.Equal(t, result.Hashes["framebuffer"], hashes["framebuffer"])
}

func TestPipeline_Run_BreakpointBranch_SetsAndRemovesBreakpoint(t *testing.T) {
	dir := t.TempDir()
	be := newFakeComposedBackend()
	p := NewPipeline(nil)

	bpAddr := addr.FromLinear(0x1000)
	_, err := p.Run(context.Background(), be, machine.CaptureRequest{
		Prefix:     "bp",
		Breakpoint: &bpAddr,
	}, dir)
	require.NoError(t, err)

	assert.True(t, be.bpSet)
	assert.True(t, be.bpRemoved)
	assert.Equal(t, 0, be.pauseCalls, "breakpoint branch does not call Pause directly")
	assert.Equal(t, 2, be.resumeCalls, "one resume from the breakpoint branch, one from the pipeline's final resume")
}

func TestPipeline_Run_SkipsOptOutArtifacts(t *testing.T) {
	dir := t.TempDir()
	be := newFakeComposedBackend()
	p := NewPipeline(nil)

	result, err := p.Run(context.Background(), be, machine.CaptureRequest{
		Prefix:          "skip",
		SkipFramebuffer: true,
		SkipScreenshot:  true,
	}, dir)
	require.NoError(t, err)

	assert.Nil(t, result.Framebuffer)
	assert.Nil(t, result.Screenshot)
	assert.NotNil(t, result.Registers)
	_, err = os.Stat(filepath.Join(dir, "skip_framebuffer.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestPipeline_Run_ExtraRanges(t *testing.T) {
	dir := t.TempDir()
	be := newFakeComposedBackend()
	p := NewPipeline(nil)

	result, err := p.Run(context.Background(), be, machine.CaptureRequest{
		Prefix: "extra",
		ExtraRanges: []machine.ExtraRange{
			{Address: addr.FromLinear(0x2000), Size: 16, Filename: "extra_dump.bin"},
		},
	}, dir)
	require.NoError(t, err)

	assert.Contains(t, result.Extras, "extra_dump.bin")
	assert.Contains(t, result.Hashes, "extra_dump.bin")
	_, err = os.ReadFile(filepath.Join(dir, "extra_dump.bin"))
	require.NoError(t, err)
}

// failingReadBackend fails ReadMemory, exercising the pipeline's
// error-propagation path (no artifact should be written once the
// underlying backend primitive fails).
type failingReadBackend struct {
	fakeComposedBackend
}

func (f *failingReadBackend) ReadMemory(ctx context.Context, a addr.Address, size int) ([]byte, error) {
	return nil, brokererr.Connection("read_memory", "simulated failure", nil)
}

func TestPipeline_Run_PropagatesBackendError(t *testing.T) {
	dir := t.TempDir()
	be := &failingReadBackend{fakeComposedBackend: *newFakeComposedBackend()}
	p := NewPipeline(nil)

	_, err := p.Run(context.Background(), be, machine.CaptureRequest{Prefix: "fail"}, dir)
	require.Error(t, err)
	assert.True(t, brokererr.Is(err, brokererr.KindConnection))

	_, statErr := os.Stat(filepath.Join(dir, "fail_framebuffer.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

// fakeSessionBackend satisfies backend.SessionCapturer only.
type fakeSessionBackend struct {
	fakeComposedBackend
}

func (f *fakeSessionBackend) Capture(ctx context.Context, req machine.CaptureRequest) (machine.CaptureResult, error) {
	return machine.CaptureResult{
		Prefix:           req.Prefix,
		Framebuffer:      make([]byte, framebufferSize),
		Screenshot:       []byte("BM...."),
		ScreenshotFormat: "bmp",
		Registers:        &machine.RegisterFile{EAX: 0xAAAA},
		Extras:           map[string][]byte{},
	}, nil
}

func TestPipeline_Run_SessionCapturerBackend(t *testing.T) {
	dir := t.TempDir()
	be := &fakeSessionBackend{}
	p := NewPipeline(nil)

	result, err := p.Run(context.Background(), be, machine.CaptureRequest{Prefix: "sess"}, dir)
	require.NoError(t, err)

	assert.Equal(t, "bmp", result.ScreenshotFormat)
	_, err = os.ReadFile(filepath.Join(dir, "sess_screenshot.bmp"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xAAAA), result.Registers.EAX)
}

func TestPipeline_CompareGolden(t *testing.T) {
	outDir, goldenDir := t.TempDir(), t.TempDir()
	p := NewPipeline(nil)

	be := newFakeComposedBackend()
	_, err := p.GenerateGolden(context.Background(), be, machine.CaptureRequest{Prefix: "g1"}, goldenDir)
	require.NoError(t, err)

	t.Run("match", func(t *testing.T) {
		comparisons, allMatch, err := p.CompareGolden(context.Background(), be, machine.CaptureRequest{Prefix: "g1"}, outDir, goldenDir)
		require.NoError(t, err)
		assert.True(t, allMatch)
		for _, c := range comparisons {
			assert.True(t, c.Match, c.Artifact)
			assert.Equal(t, c.ActualChecksum, c.GoldenChecksum)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		be2 := newFakeComposedBackend()
		be2.framebuffer[0] = 0xFF
		comparisons, allMatch, err := p.CompareGolden(context.Background(), be2, machine.CaptureRequest{Prefix: "g1"}, outDir, goldenDir)
		require.NoError(t, err)
		assert.False(t, allMatch)
		var fb GoldenComparison
		for _, c := range comparisons {
			if c.Artifact == "framebuffer" {
				fb = c
			}
		}
		require.False(t, fb.Match)
		require.NotNil(t, fb.FirstDiffOffset)
		assert.Equal(t, 0, *fb.FirstDiffOffset)
	})

	t.Run("missing golden", func(t *testing.T) {
		comparisons, allMatch, err := p.CompareGolden(context.Background(), be, machine.CaptureRequest{Prefix: "nope"}, outDir, goldenDir)
		require.NoError(t, err)
		assert.False(t, allMatch)
		for _, c := range comparisons {
			assert.Empty(t, c.GoldenChecksum)
			assert.False(t, c.Match)
		}
	})
}
