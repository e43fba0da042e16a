package qemuctl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/logging"
)

// Client is the machine-control client: a newline-delimited JSON
// request/response protocol over a Unix stream socket.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
	logger *logging.Logger

	events chan map[string]interface{}
	closed bool
}

// Connect dials the machine-control socket at path, reads the
// greeting, verifies its protocol token, and enables capabilities.
func Connect(path string, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetLogger("qemuctl")
	}

	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, brokererr.Connection("connect", fmt.Sprintf("dial %s failed", path), err)
	}

	c := &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		logger: logger,
		events: make(chan map[string]interface{}, 32),
	}

	greeting, err := c.readMessage()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, ok := greeting["greeting"]; !ok {
		conn.Close()
		return nil, brokererr.Protocol("connect", "missing protocol greeting", fmt.Sprintf("%v", greeting))
	}

	if _, err := c.Execute("qmp_capabilities", nil); err != nil {
		conn.Close()
		return nil, err
	}

	c.logger.WithFields(logging.Fields{"path": path}).Debug("machine-control connected")
	return c, nil
}

// Events returns the out-of-band asynchronous-event channel: any
// received object lacking both "return" and "error" is emitted here
// instead of being treated as a command reply.
func (c *Client) Events() <-chan map[string]interface{} {
	return c.events
}

// Close closes the underlying connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// readMessage reads the next newline-delimited JSON object, falling
// back to parsing the whole remaining buffer for a terminal message
// that may omit its trailing newline.
func (c *Client) readMessage() (map[string]interface{}, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, brokererr.Connection("read", "connection closed", err)
		}
		// Fallback: try the whole buffer as a terminal message.
		var msg map[string]interface{}
		if jerr := json.Unmarshal(line, &msg); jerr != nil {
			return nil, brokererr.Connection("read", "connection closed mid-message", err)
		}
		return msg, nil
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, brokererr.Protocol("read", "malformed JSON from machine-control socket", string(line))
	}
	return msg, nil
}

// doRequest sends a request object and reads messages until the
// matching return/error reply arrives, routing any intervening
// asynchronous events to the events channel.
func (c *Client) doRequest(req map[string]interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, brokererr.Argument("execute", "failed to marshal request")
	}
	payload = append(payload, '\n')

	c.logger.WithFields(logging.Fields{"request": req}).Debug("machine-control request")

	if _, err := c.conn.Write(payload); err != nil {
		return nil, brokererr.Connection("execute", "write failed", err)
	}

	for {
		msg, err := c.readMessage()
		if err != nil {
			return nil, err
		}

		if errObj, ok := msg["error"]; ok {
			return nil, brokererr.Protocol("execute", "machine-control error reply", fmt.Sprintf("%v", errObj))
		}
		if ret, ok := msg["return"]; ok {
			c.logger.WithFields(logging.Fields{"response": ret}).Debug("machine-control response")
			return ret, nil
		}

		select {
		case c.events <- msg:
		default:
		}
	}
}

// Execute issues an arbitrary machine-control command.
func (c *Client) Execute(command string, args map[string]interface{}) (interface{}, error) {
	req := map[string]interface{}{"execute": command}
	if args != nil {
		req["arguments"] = args
	}
	return c.doRequest(req)
}

// SendKey injects a single key held for holdMs milliseconds (default
// 100 when holdMs <= 0).
func (c *Client) SendKey(key string, holdMs int) error {
	if holdMs <= 0 {
		holdMs = 100
	}
	_, err := c.Execute("send-key", map[string]interface{}{
		"keys":    []map[string]string{{"type": "qcode", "data": key}},
		"hold-time": holdMs,
	})
	return err
}

// SendKeysSequence injects keys one at a time with delayMs between
// each.
func (c *Client) SendKeysSequence(keys []string, delayMs int) error {
	for _, k := range keys {
		if err := c.SendKey(k, 0); err != nil {
			return err
		}
		if delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}
	}
	return nil
}

// Screendump writes a screenshot to path on the host running the
// emulator.
func (c *Client) Screendump(path string) error {
	_, err := c.Execute("screendump", map[string]interface{}{"filename": path})
	return err
}

// SaveSnapshot issues the human-monitor "savevm" command for name,
// then "cont" because savevm pauses virtual CPUs as a side effect.
func (c *Client) SaveSnapshot(name string) error {
	if _, err := c.humanMonitorCommand(fmt.Sprintf("savevm %s", name)); err != nil {
		return err
	}
	_, err := c.humanMonitorCommand("cont")
	return err
}

// LoadSnapshot issues the human-monitor "loadvm" command for name.
func (c *Client) LoadSnapshot(name string) error {
	_, err := c.humanMonitorCommand(fmt.Sprintf("loadvm %s", name))
	return err
}

// ListSnapshots runs the human-monitor "info snapshots" and returns
// its raw text output for the caller to parse.
func (c *Client) ListSnapshots() (string, error) {
	return c.humanMonitorCommand("info snapshots")
}

// PmemSave dumps size bytes of physical memory starting at addr to
// path on the host.
func (c *Client) PmemSave(addr uint64, size uint64, path string) error {
	_, err := c.Execute("pmemsave", map[string]interface{}{
		"val":      addr,
		"size":     size,
		"filename": path,
	})
	return err
}

// Stop pauses all virtual CPUs via the human monitor.
func (c *Client) Stop() error {
	_, err := c.humanMonitorCommand("stop")
	return err
}

// Cont resumes all virtual CPUs via the human monitor.
func (c *Client) Cont() error {
	_, err := c.humanMonitorCommand("cont")
	return err
}

// Quit terminates the emulator via the machine-control channel.
func (c *Client) Quit() error {
	_, err := c.Execute("quit", nil)
	return err
}

func (c *Client) humanMonitorCommand(cmd string) (string, error) {
	ret, err := c.Execute("human-monitor-command", map[string]interface{}{"command-line": cmd})
	if err != nil {
		return "", err
	}
	if s, ok := ret.(string); ok {
		return s, nil
	}
	return "", nil
}
