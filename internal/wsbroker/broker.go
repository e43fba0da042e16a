package wsbroker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// requestDeadline bounds a single WebSocket request-response exchange
// against the backend, mirroring the HTTP surface's per-request timeout.
const requestDeadline = 15 * time.Second

func requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestDeadline)
}

// Broker owns every live WebSocket connection and forwards the
// attached backend's event stream to subscribed clients.
//
// Grounded on the teacher's WebSocketServer: an upgrader plus a
// guarded client registry (here sync.Map-free, a plain mutex-guarded
// map matching clientsMutex/clients), with EventManager's topic fan-out
// replaced by the four fixed channels spec.md §4.11 defines.
type Broker struct {
	holder *backend.Holder
	logger *logging.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewBroker creates a Broker bound to holder, the process-wide backend slot.
func NewBroker(holder *backend.Holder, logger *logging.Logger) *Broker {
	if logger == nil {
		logger = logging.GetLogger("wsbroker")
	}
	return &Broker{
		holder:  holder,
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS is the HTTP handler mounted at the broker's single endpoint.
func (b *Broker) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := newClient(id, conn, b, b.logger)

	b.mu.Lock()
	b.clients[id] = c
	b.mu.Unlock()

	b.logger.WithFields(logging.Fields{"client_id": id}).Info("websocket client connected")
	c.run()
}

func (b *Broker) unregister(c *client) {
	b.mu.Lock()
	delete(b.clients, c.id)
	b.mu.Unlock()
	b.logger.WithFields(logging.Fields{"client_id": c.id}).Info("websocket client disconnected")
}

// AttachBackend starts forwarding be's event stream to subscribed
// clients and runs until be's Events() channel closes (on Shutdown).
// Snapshot-load events additionally suspend/resume and invalidate
// every client's active memory watches, per spec.md §4.11's
// snapshot-invalidation rule: "loading" suspends all watches (timers
// keep firing but short-circuit) and "loaded"/"load-failed" resumes
// them with their last-hash cache cleared, guaranteeing the first
// post-snapshot poll always reports.
func (b *Broker) AttachBackend(be backend.Backend) {
	go func() {
		for ev := range be.Events() {
			b.broadcast(Channel(ev.Channel), ev.Type, ev.Payload)
			switch ev.Type {
			case "snapshot:loading":
				b.suspendAllWatches()
			case "snapshot:loaded", "snapshot:load-failed":
				b.invalidateAllWatches()
				b.resumeAllWatches()
			}
		}
	}()
}

func (b *Broker) broadcast(ch Channel, eventType string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		if c.subscribed(ch) {
			c.sendJSON(map[string]interface{}{
				"type":    eventType,
				"channel": string(ch),
				"data":    payload,
			})
		}
	}
}

func (b *Broker) invalidateAllWatches() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		c.invalidateWatches()
	}
}

func (b *Broker) suspendAllWatches() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		c.suspendWatches()
	}
}

func (b *Broker) resumeAllWatches() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		c.resumeWatches()
	}
}

// InvalidateWatches forces every live memory-watch poller to re-arm
// its change detector on the next poll. Kept as a defensive direct
// call for the HTTP snapshot-load handler: the backend's own Events
// channel already carries "snapshot:loaded" to AttachBackend's
// forwarding goroutine regardless of whether the load was triggered
// over REST or the WebSocket, but this guards against a caller that
// races ahead of that asynchronous broadcast.
func (b *Broker) InvalidateWatches() {
	b.invalidateAllWatches()
	b.resumeAllWatches()
}

func (b *Broker) handleExec(c *client, msg inbound) {
	be, err := b.holder.Get()
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	ctx, cancel := requestCtx()
	defer cancel()

	switch msg.Type {
	case msgExecPause:
		if err := be.Pause(ctx); err != nil {
			c.sendError(msg.RequestID, err.Error())
			return
		}
		c.sendJSON(map[string]interface{}{"type": msgStatusChanged, "requestId": msg.RequestID, "status": "paused"})
	case msgExecResume:
		if err := be.Resume(ctx); err != nil {
			c.sendError(msg.RequestID, err.Error())
			return
		}
		c.sendJSON(map[string]interface{}{"type": msgStatusChanged, "requestId": msg.RequestID, "status": "running"})
	case msgExecStep:
		regs, err := be.Step(ctx)
		if err != nil {
			c.sendError(msg.RequestID, err.Error())
			return
		}
		c.sendJSON(map[string]interface{}{
			"type":      msgStepComplete,
			"requestId": msg.RequestID,
			"registers": regs.ToMap(),
			"timestamp": time.Now().Format(time.RFC3339Nano),
		})
	}
}

func (b *Broker) handleKeys(c *client, msg inbound) {
	be, err := b.holder.Get()
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	ctx, cancel := requestCtx()
	defer cancel()
	if err := be.SendKeys(ctx, msg.Keys, msg.Delay); err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	c.sendJSON(map[string]interface{}{"type": msgKeysSend, "requestId": msg.RequestID, "ok": true})
}

func (b *Broker) handleMemoryRead(c *client, msg inbound) {
	be, err := b.holder.Get()
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	a, err := addr.Parse(msg.Address)
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	ctx, cancel := requestCtx()
	defer cancel()
	data, err := be.ReadMemory(ctx, a, msg.Size)
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	c.sendJSONWithBinary(map[string]interface{}{
		"type":      msgMemoryData,
		"requestId": msg.RequestID,
		"address":   a.String(),
		"size":      len(data),
		"encoding":  "binary",
		"timestamp": time.Now().Format(time.RFC3339Nano),
	}, data)
}

func (b *Broker) handleRegistersRead(c *client, msg inbound) {
	be, err := b.holder.Get()
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	ctx, cancel := requestCtx()
	defer cancel()
	regs, err := be.ReadRegisters(ctx)
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	c.sendJSON(map[string]interface{}{
		"type":      msgRegistersData,
		"requestId": msg.RequestID,
		"registers": regs.ToMap(),
		"timestamp": time.Now().Format(time.RFC3339Nano),
	})
}

func (b *Broker) handleScreenshotTake(c *client, msg inbound) {
	be, err := b.holder.Get()
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	ctx, cancel := requestCtx()
	defer cancel()
	data, format, err := be.Screenshot(ctx)
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	c.sendJSONWithBinary(map[string]interface{}{
		"type":      msgScreenshotData,
		"requestId": msg.RequestID,
		"format":    format,
		"size":      len(data),
		"encoding":  "binary",
		"timestamp": time.Now().Format(time.RFC3339Nano),
	}, data)
}
