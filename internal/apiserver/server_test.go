package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/capture"
	"github.com/dosdebug/broker/internal/config"
	"github.com/dosdebug/broker/internal/launcher"
	"github.com/dosdebug/broker/internal/machine"
	"github.com/dosdebug/broker/internal/wsbroker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal backend.Backend used to drive handler
// tests without a real emulator child.
type fakeBackend struct {
	kind        string
	status      machine.StatusRecord
	regs        machine.RegisterFile
	mem         []byte
	events      chan backend.Event
	pauseErr    error
	breakpoints []machine.Breakpoint
}

func newFakeBackend(kind string) *fakeBackend {
	return &fakeBackend{
		kind:   kind,
		status: machine.StatusRecord{Backend: kind, Status: machine.StatusRunning},
		regs:   machine.RegisterFile{EAX: 1},
		mem:    []byte{1, 2, 3, 4},
		events: make(chan backend.Event, 4),
	}
}

func (f *fakeBackend) Kind() string                           { return f.kind }
func (f *fakeBackend) StatusRecord() machine.StatusRecord      { return f.status }
func (f *fakeBackend) Connect(ctx context.Context) error       { return nil }
func (f *fakeBackend) Launch(ctx context.Context, cfg launcher.Config) error {
	f.status.Status = machine.StatusRunning
	return nil
}
func (f *fakeBackend) Disconnect(ctx context.Context) error { return nil }
func (f *fakeBackend) Shutdown(ctx context.Context) error {
	f.status.Status = machine.StatusDisconnected
	return nil
}
func (f *fakeBackend) ReadMemory(ctx context.Context, a addr.Address, size int) ([]byte, error) {
	return f.mem, nil
}
func (f *fakeBackend) WriteMemory(ctx context.Context, a addr.Address, data []byte) error {
	f.mem = data
	return nil
}
func (f *fakeBackend) ReadRegisters(ctx context.Context) (machine.RegisterFile, error) {
	return f.regs, nil
}
func (f *fakeBackend) SendKeys(ctx context.Context, keys []string, delayMs int) error { return nil }
func (f *fakeBackend) Screenshot(ctx context.Context) ([]byte, string, error) {
	return []byte("P6 shot"), "ppm", nil
}
func (f *fakeBackend) SetBreakpoint(ctx context.Context, bp machine.Breakpoint) (machine.Breakpoint, error) {
	bp.ID = "bp-1"
	f.breakpoints = append(f.breakpoints, bp)
	return bp, nil
}
func (f *fakeBackend) RemoveBreakpoint(ctx context.Context, id string) error { return nil }
func (f *fakeBackend) ListBreakpoints(ctx context.Context) ([]machine.Breakpoint, error) {
	return f.breakpoints, nil
}
func (f *fakeBackend) Pause(ctx context.Context) error {
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.status.Status = machine.StatusPaused
	return nil
}
func (f *fakeBackend) Resume(ctx context.Context) error {
	f.status.Status = machine.StatusRunning
	return nil
}
func (f *fakeBackend) Step(ctx context.Context) (machine.RegisterFile, error) { return f.regs, nil }
func (f *fakeBackend) SaveSnapshot(ctx context.Context, name string) (machine.SnapshotHandle, error) {
	return machine.SnapshotHandle{Name: name, Backend: f.kind}, nil
}
func (f *fakeBackend) LoadSnapshot(ctx context.Context, name string) error { return nil }
func (f *fakeBackend) ListSnapshots(ctx context.Context) ([]machine.SnapshotHandle, error) {
	return []machine.SnapshotHandle{{Name: "s1", Backend: f.kind}}, nil
}
func (f *fakeBackend) Events() <-chan backend.Event { return f.events }

func newTestServer(t *testing.T, be backend.Backend) (*Server, *backend.Holder) {
	t.Helper()
	holder := backend.NewHolder()
	if be != nil {
		holder.Set(be)
	}
	cfg := config.NewConfigManager()
	broker := wsbroker.NewBroker(holder, nil)
	pipeline := capture.NewPipeline(nil)
	factory := backend.NewFactory(nil)
	s := New(cfg, holder, factory, pipeline, broker, nil, nil)
	return s, holder
}

func doRequest(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetBackend_NoneAttached(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/backend", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp backendStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "none", resp.Backend)
}

func TestHandleGetRegisters(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/registers", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var regs map[string]uint32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regs))
	assert.Equal(t, uint32(1), regs["eax"])
}

func TestHandleGetRegisters_NoBackendReturns503(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/registers", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReadMemory_Base64Default(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/memory/1000:0000/4", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "base64", body["encoding"])
}

func TestHandleReadMemory_RawFormat(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/memory/1000:0000/4?format=raw", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, be.mem, rec.Body.Bytes())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestHandleReadMemory_BadAddressIsBadRequest(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/memory/not-an-address/4", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetBreakpoint(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	addrLit := "1000:0010"
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/breakpoints", breakpointRequest{
		Kind:    string(machine.BreakpointExecution),
		Address: &addrLit,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp breakpointResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bp-1", resp.ID)
	assert.True(t, resp.Enabled)
}

// TestHandlePause_UnsupportedBackendReturns500 matches the session-based
// backend's contract: pause is not supported and the failure surfaces
// as a 500, not a 503 or 400, leaving status untouched.
func TestHandlePause_UnsupportedBackendReturns500(t *testing.T) {
	be := newFakeBackend("dosbox")
	be.status.Status = machine.StatusDisconnected
	be.pauseErr = brokererr.NotSupported("pause", "pause/resume is not supported by the session-based backend")
	s, _ := newTestServer(t, be)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/execution/pause", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, machine.StatusDisconnected, be.status.Status)
}

func TestHandleSnapshotAction_InvalidActionIsBadRequest(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/snapshots", snapshotRequest{Action: "frobnicate", Name: "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSelectBackend_UnknownNameIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/backend/select", selectBackendRequest{Backend: "nonsense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListSnapshots(t *testing.T) {
	be := newFakeBackend("qemu")
	s, _ := newTestServer(t, be)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/snapshots", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var handles []snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &handles))
	require.Len(t, handles, 1)
	assert.Equal(t, "s1", handles[0].Name)
}
