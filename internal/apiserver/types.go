package apiserver

import (
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/machine"
)

// backendStatusResponse is the wire shape for GET /api/backend.
type backendStatusResponse struct {
	Backend             string `json:"backend"`
	Status              string `json:"status"`
	PID                 *int   `json:"pid,omitempty"`
	MachineControlAlive bool   `json:"machineControlAlive"`
	RemoteDebugAlive    bool   `json:"remoteDebugAlive"`
}

func statusToResponse(r machine.StatusRecord) backendStatusResponse {
	return backendStatusResponse{
		Backend:             r.Backend,
		Status:              string(r.Status),
		PID:                 r.PID,
		MachineControlAlive: r.MachineControlAlive,
		RemoteDebugAlive:    r.RemoteDebugAlive,
	}
}

// selectBackendRequest is the body of POST /api/backend/select.
type selectBackendRequest struct {
	Backend string `json:"backend"`
}

// memoryWriteRequest is the body of POST /api/memory/{addr}.
type memoryWriteRequest struct {
	Data string `json:"data"` // base64
}

// keysRequest is the body of POST /api/keys.
type keysRequest struct {
	Keys  []string `json:"keys"`
	Delay int      `json:"delay,omitempty"`
}

// breakpointRequest is the body of POST /api/breakpoints.
type breakpointRequest struct {
	Kind        string  `json:"kind"`
	Address     *string `json:"address,omitempty"`
	Interrupt   *uint8  `json:"interrupt,omitempty"`
	SubFunction *uint8  `json:"subFunction,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

type breakpointResponse struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Address     *string `json:"address,omitempty"`
	Interrupt   *uint8  `json:"interrupt,omitempty"`
	SubFunction *uint8  `json:"subFunction,omitempty"`
	Enabled     bool    `json:"enabled"`
}

func breakpointToResponse(bp machine.Breakpoint) breakpointResponse {
	resp := breakpointResponse{
		ID:          bp.ID,
		Kind:        string(bp.Kind),
		Interrupt:   bp.Interrupt,
		SubFunction: bp.SubFunction,
		Enabled:     bp.Enabled,
	}
	if bp.Address != nil {
		s := bp.Address.String()
		resp.Address = &s
	}
	return resp
}

func (req breakpointRequest) toBreakpoint() (machine.Breakpoint, error) {
	bp := machine.Breakpoint{
		Kind:        machine.BreakpointKind(req.Kind),
		Interrupt:   req.Interrupt,
		SubFunction: req.SubFunction,
	}
	if req.Enabled != nil {
		bp.Enabled = *req.Enabled
	} else {
		bp.Enabled = true
	}
	if req.Address != nil {
		a, err := addr.Parse(*req.Address)
		if err != nil {
			return machine.Breakpoint{}, err
		}
		bp.Address = &a
	}
	return bp, nil
}

// snapshotRequest is the body of POST /api/snapshots.
type snapshotRequest struct {
	Action string `json:"action"` // "save" | "load"
	Name   string `json:"name"`
}

type snapshotResponse struct {
	Name       string     `json:"name"`
	Backend    string     `json:"backend"`
	Size       *int64     `json:"size,omitempty"`
	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`
	Path       *string    `json:"path,omitempty"`
}

func snapshotToResponse(h machine.SnapshotHandle) snapshotResponse {
	return snapshotResponse{
		Name:       h.Name,
		Backend:    h.Backend,
		Size:       h.Size,
		ModifiedAt: h.ModifiedAt,
		Path:       h.Path,
	}
}

// captureRequestBody is the body of POST /api/captures and
// POST /api/golden/{generate,compare}.
type captureRequestBody struct {
	Prefix              string              `json:"prefix"`
	TestName            string              `json:"testName"`
	Snapshot            string              `json:"snapshot,omitempty"`
	Breakpoint          *string             `json:"breakpoint,omitempty"`
	Keys                []string            `json:"keys,omitempty"`
	KeyDelayMs          int                 `json:"keyDelayMs,omitempty"`
	PostKeysWaitMs      int                 `json:"postKeysWaitMs,omitempty"`
	BreakpointTimeoutMs int                 `json:"breakpointTimeoutMs,omitempty"`
	ExtraRanges         []extraRangeRequest `json:"extraRanges,omitempty"`
	SkipFramebuffer     bool                `json:"skipFramebuffer,omitempty"`
	SkipRegisters       bool                `json:"skipRegisters,omitempty"`
	SkipScreenshot      bool                `json:"skipScreenshot,omitempty"`
}

type extraRangeRequest struct {
	Address  string `json:"address"`
	Size     int    `json:"size"`
	Filename string `json:"filename"`
}

func (req captureRequestBody) toCaptureRequest(prefix string) (machine.CaptureRequest, error) {
	cr := machine.CaptureRequest{
		Prefix:              prefix,
		Snapshot:            req.Snapshot,
		Keys:                req.Keys,
		KeyDelayMs:          req.KeyDelayMs,
		PostKeysWaitMs:      req.PostKeysWaitMs,
		BreakpointTimeoutMs: req.BreakpointTimeoutMs,
		SkipFramebuffer:     req.SkipFramebuffer,
		SkipRegisters:       req.SkipRegisters,
		SkipScreenshot:      req.SkipScreenshot,
	}
	if req.Breakpoint != nil {
		a, err := addr.Parse(*req.Breakpoint)
		if err != nil {
			return cr, err
		}
		cr.Breakpoint = &a
	}
	for _, er := range req.ExtraRanges {
		a, err := addr.Parse(er.Address)
		if err != nil {
			return cr, err
		}
		cr.ExtraRanges = append(cr.ExtraRanges, machine.ExtraRange{
			Address:  a,
			Size:     er.Size,
			Filename: er.Filename,
		})
	}
	return cr, nil
}

type captureResultResponse struct {
	Prefix           string            `json:"prefix"`
	ScreenshotFormat string            `json:"screenshotFormat,omitempty"`
	Registers        map[string]uint32 `json:"registers,omitempty"`
	Hashes           map[string]string `json:"hashes"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func captureResultToResponse(r machine.CaptureResult) captureResultResponse {
	resp := captureResultResponse{
		Prefix:           r.Prefix,
		ScreenshotFormat: r.ScreenshotFormat,
		Hashes:           r.Hashes,
		CreatedAt:        r.CreatedAt,
	}
	if r.Registers != nil {
		resp.Registers = r.Registers.ToMap()
	}
	return resp
}
