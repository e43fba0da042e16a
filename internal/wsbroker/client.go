package wsbroker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/addr"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/machine"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendQueueSize  = 32
)

// outboundFrame pairs a JSON envelope with an optional binary frame
// that must follow it on the wire (spec.md §4.11's binary-frame-
// follows-JSON convention).
type outboundFrame struct {
	json   []byte
	binary []byte
}

// client is one browser connection to the broker. Grounded on the
// teacher's ClientConnection/handleWebSocket split (gorilla upgrade,
// read/write deadlines, ping ticker) with the teacher's JSON-RPC
// dispatch replaced by the typed channel-subscription protocol this
// package defines.
type client struct {
	id     string
	conn   *websocket.Conn
	broker *Broker
	logger *logging.Logger

	send chan outboundFrame

	mu            sync.Mutex
	subscriptions map[Channel]bool
	watches       map[string]*watchPoller
}

func newClient(id string, conn *websocket.Conn, b *Broker, logger *logging.Logger) *client {
	return &client{
		id:            id,
		conn:          conn,
		broker:        b,
		logger:        logger,
		send:          make(chan outboundFrame, sendQueueSize),
		subscriptions: make(map[Channel]bool),
		watches:       make(map[string]*watchPoller),
	}
}

func (c *client) subscribed(ch Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[ch]
}

// run starts the client's read and write pumps and blocks until the
// connection closes, tearing down every watch the client registered.
func (c *client) run() {
	done := make(chan struct{})
	go c.writePump(done)
	c.readPump()
	close(done)

	c.mu.Lock()
	for _, w := range c.watches {
		w.stop()
	}
	c.mu.Unlock()
	c.broker.unregister(c)
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithFields(logging.Fields{"client_id": c.id}).WithError(err).Warn("websocket read error")
			}
			return
		}
		c.handleInbound(data)
	}
}

func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame.json); err != nil {
				return
			}
			if frame.binary != nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, frame.binary); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON enqueues a JSON-only frame. Queue-full drops the frame
// rather than blocking the write pump on a slow client.
func (c *client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WithError(err).Error("failed to marshal outbound message")
		return
	}
	c.enqueue(outboundFrame{json: data})
}

// sendJSONWithBinary enqueues a JSON envelope followed by a binary
// frame, per spec.md §4.11's convention for memory/screenshot payloads.
func (c *client) sendJSONWithBinary(v interface{}, binary []byte) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WithError(err).Error("failed to marshal outbound message")
		return
	}
	c.enqueue(outboundFrame{json: data, binary: binary})
}

func (c *client) enqueue(f outboundFrame) {
	select {
	case c.send <- f:
	default:
		c.logger.WithFields(logging.Fields{"client_id": c.id}).Warn("send queue full, dropping frame")
	}
}

func (c *client) sendError(requestID, message string) {
	c.sendJSON(map[string]interface{}{
		"type":      msgError,
		"requestId": requestID,
		"message":   message,
	})
}

func (c *client) handleInbound(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid message: not valid JSON")
		return
	}

	switch msg.Type {
	case msgSubscribe:
		c.handleSubscribe(msg, true)
	case msgUnsubscribe:
		c.handleSubscribe(msg, false)
	case msgExecPause, msgExecResume, msgExecStep:
		c.broker.handleExec(c, msg)
	case msgKeysSend:
		c.broker.handleKeys(c, msg)
	case msgMemoryWatch:
		c.handleMemoryWatch(msg)
	case msgMemoryUnwatch:
		c.handleMemoryUnwatch(msg)
	case msgMemoryRead:
		c.broker.handleMemoryRead(c, msg)
	case msgRegistersRead:
		c.broker.handleRegistersRead(c, msg)
	case msgScreenshotTake:
		c.broker.handleScreenshotTake(c, msg)
	default:
		c.sendError(msg.RequestID, "unknown message type: "+msg.Type)
	}
}

func (c *client) handleSubscribe(msg inbound, subscribe bool) {
	ch := Channel(msg.Channel)
	if !validChannels[ch] {
		c.sendError(msg.RequestID, "unknown channel: "+msg.Channel)
		return
	}
	c.mu.Lock()
	if subscribe {
		c.subscriptions[ch] = true
	} else {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
}

func (c *client) handleMemoryWatch(msg inbound) {
	a, err := addr.Parse(msg.Address)
	if err != nil {
		c.sendError(msg.RequestID, err.Error())
		return
	}
	watchID := msg.ID
	if watchID == "" {
		watchID = uuid.NewString()
	}
	interval := time.Duration(msg.IntervalMs) * time.Millisecond
	watch := machine.NewWatch(watchID, a, msg.Size, interval)

	poller := newWatchPoller(c, watch)
	c.mu.Lock()
	if existing, ok := c.watches[watchID]; ok {
		existing.stop()
	}
	c.watches[watchID] = poller
	c.mu.Unlock()

	poller.start()
	c.sendJSON(map[string]interface{}{
		"type":      msgMemoryWatchAck,
		"requestId": msg.RequestID,
		"id":        watchID,
	})
}

func (c *client) handleMemoryUnwatch(msg inbound) {
	c.mu.Lock()
	poller, ok := c.watches[msg.ID]
	if ok {
		delete(c.watches, msg.ID)
	}
	c.mu.Unlock()
	if ok {
		poller.stop()
	}
}

// invalidateWatches forces every active watch to re-emit on its next
// poll tick, used after a snapshot load changes guest memory out from
// under the poller's change-detection hash.
func (c *client) invalidateWatches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watches {
		w.watch.Invalidate()
	}
}

// suspendWatches marks every active watch suspended: their poll
// timers keep firing but short-circuit before reading memory, so no
// emissions happen while a snapshot load is in flight.
func (c *client) suspendWatches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watches {
		w.watch.Suspend()
	}
}

// resumeWatches clears the suspended flag on every active watch. Paired
// with invalidateWatches so the first post-resume poll always reports,
// even if the bytes are unchanged.
func (c *client) resumeWatches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watches {
		w.watch.Resume()
	}
}
