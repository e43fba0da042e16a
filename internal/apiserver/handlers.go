package apiserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/launcher"
	"github.com/dosdebug/broker/internal/machine"
)

// decodeJSON reads and decodes a JSON request body, writing a 400
// envelope and reporting failure when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		badRequest(w, "request body required")
		return false
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		badRequest(w, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) currentBackend(w http.ResponseWriter, op string) (backend.Backend, bool) {
	be, err := s.holder.Get()
	if err != nil {
		writeError(w, s.logger, op, err)
		return nil, false
	}
	return be, true
}

// handleGetBackend serves GET /api/backend.
func (s *Server) handleGetBackend(w http.ResponseWriter, r *http.Request) {
	be, ok := s.holder.Peek()
	if !ok {
		writeJSON(w, http.StatusOK, backendStatusResponse{Backend: "none", Status: string(machine.StatusDisconnected)})
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(be.StatusRecord()))
}

// handleSelectBackend serves POST /api/backend/select.
func (s *Server) handleSelectBackend(w http.ResponseWriter, r *http.Request) {
	var req selectBackendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Backend == "" {
		badRequest(w, "backend name required")
		return
	}

	kind := backend.Kind(req.Backend)
	if kind != backend.KindQEMU && kind != backend.KindDOSBox {
		badRequest(w, "unknown backend: "+req.Backend)
		return
	}

	if s.factory == nil {
		writeError(w, s.logger, "backend.select", brokererr.Connection("backend.build", "no backend factory configured", nil))
		return
	}

	paths := s.pathsFor(kind)
	next, err := s.factory.Build(kind, paths)
	if err != nil {
		writeError(w, s.logger, "backend.select", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.holder.Reselect(ctx, next); err != nil {
		s.logger.WithError(err).Warn("previous backend shutdown failed during reselect")
	}
	s.broker.AttachBackend(next)

	writeJSON(w, http.StatusOK, statusToResponse(next.StatusRecord()))
}

func (s *Server) pathsFor(kind backend.Kind) backend.Paths {
	cfg := s.cfg.GetConfig()
	switch kind {
	case backend.KindQEMU:
		return backend.Paths{
			BinaryPath:        cfg.Qemu.BinaryPath,
			MonitorSocketPath: cfg.Qemu.MonitorSocket,
			RemoteDebugHost:   cfg.Qemu.RemoteDebugHost,
			RemoteDebugPort:   cfg.Qemu.RemoteDebugPort,
		}
	default:
		return backend.Paths{
			BinaryPath: cfg.Dosbox.BinaryPath,
			WorkDir:    cfg.Dosbox.OutputDir,
		}
	}
}

// handleLaunchDefaults serves GET /api/launch/defaults.
func (s *Server) handleLaunchDefaults(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.GetConfig()
	be, ok := s.holder.Peek()
	kind := "qemu"
	if ok {
		kind = be.Kind()
	}

	if kind == string(backend.KindDOSBox) {
		writeJSON(w, http.StatusOK, launcher.Config{BinaryPath: cfg.Dosbox.BinaryPath})
		return
	}
	writeJSON(w, http.StatusOK, launcher.Config{
		BinaryPath:        cfg.Qemu.BinaryPath,
		MonitorSocketPath: cfg.Qemu.MonitorSocket,
		RemoteDebugHost:   cfg.Qemu.RemoteDebugHost,
		RemoteDebugPort:   cfg.Qemu.RemoteDebugPort,
	})
}

// handleLaunch serves POST /api/launch.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "launch")
	if !ok {
		return
	}
	var cfg launcher.Config
	if !decodeJSON(w, r, &cfg) {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.Launch(ctx, cfg); err != nil {
		writeError(w, s.logger, "launch", err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(be.StatusRecord()))
}

// handleLaunchDelete serves DELETE /api/launch, shutting the attached
// backend's child down without detaching the backend itself.
func (s *Server) handleLaunchDelete(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "launch.delete")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.Shutdown(ctx); err != nil {
		writeError(w, s.logger, "launch.delete", err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(be.StatusRecord()))
}

// handleGetRegisters serves GET /api/registers.
func (s *Server) handleGetRegisters(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "registers.read")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	regs, err := be.ReadRegisters(ctx)
	if err != nil {
		writeError(w, s.logger, "registers.read", err)
		return
	}
	writeJSON(w, http.StatusOK, regs.ToMap())
}

// handleReadMemory serves GET /api/memory/{addr}/{size}?format=raw|base64.
func (s *Server) handleReadMemory(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "memory.read")
	if !ok {
		return
	}

	a, err := addr.Parse(r.PathValue("addr"))
	if err != nil {
		writeError(w, s.logger, "memory.read", err)
		return
	}
	size, err := strconv.Atoi(r.PathValue("size"))
	if err != nil || size <= 0 {
		badRequest(w, "size must be a positive integer")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	data, err := be.ReadMemory(ctx, a, size)
	if err != nil {
		writeError(w, s.logger, "memory.read", err)
		return
	}

	if r.URL.Query().Get("format") == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":  a.String(),
		"size":     len(data),
		"data":     base64.StdEncoding.EncodeToString(data),
		"encoding": "base64",
	})
}

// handleWriteMemory serves POST /api/memory/{addr}.
func (s *Server) handleWriteMemory(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "memory.write")
	if !ok {
		return
	}
	a, err := addr.Parse(r.PathValue("addr"))
	if err != nil {
		writeError(w, s.logger, "memory.write", err)
		return
	}
	var req memoryWriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		badRequest(w, "data must be base64-encoded")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.WriteMemory(ctx, a, data); err != nil {
		writeError(w, s.logger, "memory.write", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": a.String(), "size": len(data)})
}

// handleScreenshot serves GET /api/screenshot.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "screenshot")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	data, format, err := be.Screenshot(ctx)
	if err != nil {
		writeError(w, s.logger, "screenshot", err)
		return
	}
	w.Header().Set("Content-Type", contentTypeForImage(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeForImage(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "bmp":
		return "image/bmp"
	default:
		return "image/x-portable-pixmap"
	}
}

// handleSendKeys serves POST /api/keys.
func (s *Server) handleSendKeys(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "keys.send")
	if !ok {
		return
	}
	var req keysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Keys) == 0 {
		badRequest(w, "keys required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.SendKeys(ctx, req.Keys, req.Delay); err != nil {
		writeError(w, s.logger, "keys.send", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": len(req.Keys)})
}

// handleListBreakpoints serves GET /api/breakpoints.
func (s *Server) handleListBreakpoints(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "breakpoints.list")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	bps, err := be.ListBreakpoints(ctx)
	if err != nil {
		writeError(w, s.logger, "breakpoints.list", err)
		return
	}
	out := make([]breakpointResponse, 0, len(bps))
	for _, bp := range bps {
		out = append(out, breakpointToResponse(bp))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSetBreakpoint serves POST /api/breakpoints.
func (s *Server) handleSetBreakpoint(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "breakpoints.set")
	if !ok {
		return
	}
	var req breakpointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bp, err := req.toBreakpoint()
	if err != nil {
		writeError(w, s.logger, "breakpoints.set", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	set, err := be.SetBreakpoint(ctx, bp)
	if err != nil {
		writeError(w, s.logger, "breakpoints.set", err)
		return
	}
	writeJSON(w, http.StatusOK, breakpointToResponse(set))
}

// handleRemoveBreakpoint serves DELETE /api/breakpoints/{id}.
func (s *Server) handleRemoveBreakpoint(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "breakpoints.remove")
	if !ok {
		return
	}
	id := r.PathValue("id")
	if id == "" {
		badRequest(w, "breakpoint id required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.RemoveBreakpoint(ctx, id); err != nil {
		writeError(w, s.logger, "breakpoints.remove", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "removed": true})
}

// handlePause serves POST /api/execution/pause.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "execution.pause")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.Pause(ctx); err != nil {
		writeError(w, s.logger, "execution.pause", err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(be.StatusRecord()))
}

// handleResume serves POST /api/execution/resume.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "execution.resume")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := be.Resume(ctx); err != nil {
		writeError(w, s.logger, "execution.resume", err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(be.StatusRecord()))
}

// handleStep serves POST /api/execution/step.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "execution.step")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	regs, err := be.Step(ctx)
	if err != nil {
		writeError(w, s.logger, "execution.step", err)
		return
	}
	writeJSON(w, http.StatusOK, regs.ToMap())
}

// handleListSnapshots serves GET /api/snapshots and GET /api/states.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "snapshots.list")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	handles, err := be.ListSnapshots(ctx)
	if err != nil {
		writeError(w, s.logger, "snapshots.list", err)
		return
	}
	out := make([]snapshotResponse, 0, len(handles))
	for _, h := range handles {
		out = append(out, snapshotToResponse(h))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSnapshotAction serves POST /api/snapshots: body {"action":
// "save"|"load", "name": "..."}.
func (s *Server) handleSnapshotAction(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "snapshots.action")
	if !ok {
		return
	}
	var req snapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		badRequest(w, "snapshot name required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	switch req.Action {
	case "save":
		h, err := be.SaveSnapshot(ctx, req.Name)
		if err != nil {
			writeError(w, s.logger, "snapshots.save", err)
			return
		}
		writeJSON(w, http.StatusOK, snapshotToResponse(h))
	case "load":
		if err := be.LoadSnapshot(ctx, req.Name); err != nil {
			writeError(w, s.logger, "snapshots.load", err)
			return
		}
		s.broker.InvalidateWatches()
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": req.Name, "loaded": true})
	default:
		badRequest(w, "action must be \"save\" or \"load\"")
	}
}

// handleCapture serves POST /api/captures.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "capture")
	if !ok {
		return
	}
	var body captureRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Prefix == "" {
		badRequest(w, "prefix required")
		return
	}
	req, err := body.toCaptureRequest(body.Prefix)
	if err != nil {
		writeError(w, s.logger, "capture", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	result, err := s.pipeline.Run(ctx, be, req, s.cfg.GetConfig().Capture.OutputDir)
	if err != nil {
		writeError(w, s.logger, "capture", err)
		return
	}
	writeJSON(w, http.StatusOK, captureResultToResponse(result))
}

// handleListCaptures serves GET /api/captures, a directory inventory
// of previously-written capture artifacts grouped by prefix.
func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	entries, err := listCaptureFiles(s.cfg.GetConfig().Capture.OutputDir)
	if err != nil {
		writeError(w, s.logger, "captures.list", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGoldenGenerate serves POST /api/golden/generate.
func (s *Server) handleGoldenGenerate(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "golden.generate")
	if !ok {
		return
	}
	var body captureRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Prefix == "" {
		badRequest(w, "prefix required")
		return
	}
	req, err := body.toCaptureRequest(body.Prefix)
	if err != nil {
		writeError(w, s.logger, "golden.generate", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	result, err := s.pipeline.GenerateGolden(ctx, be, req, s.cfg.GetConfig().Capture.GoldenDir)
	if err != nil {
		writeError(w, s.logger, "golden.generate", err)
		return
	}
	writeJSON(w, http.StatusOK, captureResultToResponse(result))
}

// handleGoldenCompare serves POST /api/golden/compare.
func (s *Server) handleGoldenCompare(w http.ResponseWriter, r *http.Request) {
	be, ok := s.currentBackend(w, "golden.compare")
	if !ok {
		return
	}
	var body captureRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	prefix := body.Prefix
	if prefix == "" {
		prefix = body.TestName
	}
	if prefix == "" {
		badRequest(w, "prefix required")
		return
	}
	req, err := body.toCaptureRequest(prefix)
	if err != nil {
		writeError(w, s.logger, "golden.compare", err)
		return
	}

	cfg := s.cfg.GetConfig().Capture
	ctx, cancel := requestContext(r)
	defer cancel()
	comparisons, allMatch, err := s.pipeline.CompareGolden(ctx, be, req, cfg.OutputDir, cfg.GoldenDir)
	if err != nil {
		writeError(w, s.logger, "golden.compare", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prefix":      req.Prefix,
		"match":       allMatch,
		"comparisons": comparisons,
	})
}

func listCaptureFiles(dir string) ([]string, error) {
	names, err := readDirNames(dir)
	if err != nil {
		if isNotExist(err) {
			return []string{}, nil
		}
		return nil, brokererr.Connection("captures.list", fmt.Sprintf("failed to read %s", dir), err)
	}
	sort.Strings(names)
	return names, nil
}
