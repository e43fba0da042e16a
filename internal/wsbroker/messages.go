package wsbroker

// Channel names the four WebSocket subscription topics spec.md §4.11
// defines.
type Channel string

const (
	ChannelStatus  Channel = "status"
	ChannelDebug   Channel = "debug"
	ChannelMemory  Channel = "memory"
	ChannelCapture Channel = "capture"
)

var validChannels = map[Channel]bool{
	ChannelStatus:  true,
	ChannelDebug:   true,
	ChannelMemory:  true,
	ChannelCapture: true,
}

// Inbound message types a client may send.
const (
	msgSubscribe      = "subscribe"
	msgUnsubscribe    = "unsubscribe"
	msgExecPause      = "exec:pause"
	msgExecResume     = "exec:resume"
	msgExecStep       = "exec:step"
	msgKeysSend       = "keys:send"
	msgMemoryWatch    = "memory:watch"
	msgMemoryUnwatch  = "memory:unwatch"
	msgMemoryRead     = "memory:read"
	msgRegistersRead  = "registers:read"
	msgScreenshotTake = "screenshot:take"
)

// Outbound message types the server may send. Types in binaryBearing
// must be followed by exactly one binary frame (spec.md §4.11).
const (
	msgMemoryUpdate   = "memory:update"
	msgMemoryData     = "memory:data"
	msgScreenshotData = "screenshot:data"
	msgRegistersData  = "registers:data"
	msgStepComplete   = "debug:step-complete"
	msgBreakpointHit  = "debug:breakpoint-hit"
	msgStatusChanged  = "status:changed"
	msgMemoryWatchAck = "memory:watch-ack"
	msgError          = "error"
)

var binaryBearing = map[string]bool{
	msgMemoryUpdate:   true,
	msgMemoryData:     true,
	msgScreenshotData: true,
}

// inbound is the envelope every client-to-server message is decoded
// into; fields not relevant to a given Type are left zero.
type inbound struct {
	Type       string   `json:"type"`
	Channel    string   `json:"channel,omitempty"`
	RequestID  string   `json:"requestId,omitempty"`
	ID         string   `json:"id,omitempty"`
	Address    string   `json:"address,omitempty"`
	Size       int      `json:"size,omitempty"`
	IntervalMs int      `json:"intervalMs,omitempty"`
	Keys       []string `json:"keys,omitempty"`
	Delay      int      `json:"delay,omitempty"`
}
