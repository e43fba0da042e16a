package gdbstub

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/machine"
)

const (
	readChunkSize     = 4096
	defaultAckTimeout = 2 * time.Second
)

// Client speaks the remote-serial-debug packet protocol over a TCP
// connection: packets are "$<payload>#<checksum>", each acknowledged
// with a bare '+'.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
	logger *logging.Logger
	closed bool
}

// Connect dials the remote-debug TCP endpoint at addr.
func Connect(addr string, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetLogger("gdbstub")
	}
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, brokererr.Connection("connect", fmt.Sprintf("dial %s failed", addr), err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), logger: logger}, nil
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

func checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum
}

// consumePendingAck drains a single already-buffered '+' so a stray
// ack from a prior command doesn't get mistaken for this one's.
func (c *Client) consumePendingAck() {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
	b, err := c.reader.Peek(1)
	if err == nil && len(b) == 1 && b[0] == '+' {
		c.reader.Discard(1)
	}
	c.conn.SetReadDeadline(time.Time{})
}

// sendPacket writes a framed packet and waits for its '+' ack.
func (c *Client) sendPacket(payload string) error {
	c.consumePendingAck()

	frame := fmt.Sprintf("$%s#%02x", payload, checksum(payload))
	if _, err := c.conn.Write([]byte(frame)); err != nil {
		return brokererr.Connection("send", "write failed", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(defaultAckTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	ack, err := c.reader.ReadByte()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return brokererr.Timeout("send", "no ack before deadline")
		}
		return brokererr.Connection("send", "connection closed awaiting ack", err)
	}
	if ack != '+' {
		return brokererr.Protocol("send", "expected '+' ack", string(ack))
	}
	return nil
}

// readPacket reads the next "$payload#cc" packet, verifies its
// checksum, sends the ack, and returns the payload.
func (c *Client) readPacket(timeout time.Duration) (string, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return "", brokererr.Timeout("read", "no packet before deadline")
			}
			return "", brokererr.Connection("read", "connection closed", err)
		}
		if b == '$' {
			break
		}
	}

	var sb strings.Builder
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return "", brokererr.Connection("read", "connection closed mid-packet", err)
		}
		if b == '#' {
			break
		}
		sb.WriteByte(b)
	}

	csBytes := make([]byte, 2)
	for i := range csBytes {
		b, err := c.reader.ReadByte()
		if err != nil {
			return "", brokererr.Connection("read", "connection closed reading checksum", err)
		}
		csBytes[i] = b
	}

	payload := sb.String()
	if fmt.Sprintf("%02x", checksum(payload)) != strings.ToLower(string(csBytes)) {
		return "", brokererr.Protocol("read", "checksum mismatch", payload)
	}

	if _, err := c.conn.Write([]byte{'+'}); err != nil {
		return "", brokererr.Connection("read", "failed to send ack", err)
	}

	return payload, nil
}

// command sends payload and reads back the reply packet, raising a
// ProtocolError for an "E"-prefixed error reply.
func (c *Client) command(payload string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.WithFields(logging.Fields{"payload": payload}).Debug("gdbstub command")

	if err := c.sendPacket(payload); err != nil {
		c.logger.WithError(err).WithFields(logging.Fields{"payload": payload}).Warn("gdbstub command failed to send")
		return "", err
	}
	reply, err := c.readPacket(timeout)
	if err != nil {
		c.logger.WithError(err).WithFields(logging.Fields{"payload": payload}).Warn("gdbstub command failed to read reply")
		return "", err
	}
	if strings.HasPrefix(reply, "E") {
		err := brokererr.Protocol("command", "error reply", reply)
		c.logger.WithError(err).WithFields(logging.Fields{"payload": payload}).Warn("gdbstub command returned error reply")
		return "", err
	}
	return reply, nil
}

// ReadMemory reads length bytes at addr, chunked at 4096 bytes per
// request and concatenated in order. A length of 0 returns an empty
// buffer and makes no wire request.
func (c *Client) ReadMemory(addr uint32, length int) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, length)
	remaining := length
	offset := uint32(0)

	for remaining > 0 {
		n := remaining
		if n > readChunkSize {
			n = readChunkSize
		}

		reply, err := c.command(fmt.Sprintf("m%x,%x", addr+offset, n), 5*time.Second)
		if err != nil {
			return nil, err
		}

		chunk, err := hex.DecodeString(reply)
		if err != nil {
			return nil, brokererr.Protocol("read_memory", "malformed hex payload", reply)
		}
		out = append(out, chunk...)

		offset += uint32(n)
		remaining -= n
	}

	return out, nil
}

// WriteMemory writes data at addr.
func (c *Client) WriteMemory(addr uint32, data []byte) error {
	_, err := c.command(fmt.Sprintf("M%x,%x:%s", addr, len(data), hex.EncodeToString(data)), 5*time.Second)
	return err
}

// ReadRegisters reads the full 16-word register dump ('g') and
// decodes it into a machine.RegisterFile: the first 10 words are
// EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI, EIP, EFLAGS; the last 6 are
// the segment registers CS, SS, DS, ES, FS, GS, each masked to 16 bits.
func (c *Client) ReadRegisters() (machine.RegisterFile, error) {
	reply, err := c.command("g", 5*time.Second)
	if err != nil {
		return machine.RegisterFile{}, err
	}

	raw, err := hex.DecodeString(reply)
	if err != nil || len(raw) < 16*4 {
		return machine.RegisterFile{}, brokererr.Protocol("read_registers", "short or malformed register dump", reply)
	}

	word := func(i int) uint32 {
		return le32(raw[i*4 : i*4+4])
	}

	return machine.RegisterFile{
		EAX:    word(0),
		ECX:    word(1),
		EDX:    word(2),
		EBX:    word(3),
		ESP:    word(4),
		EBP:    word(5),
		ESI:    word(6),
		EDI:    word(7),
		EIP:    word(8),
		EFLAGS: word(9),
		CS:     uint16(word(10) & 0xFFFF),
		SS:     uint16(word(11) & 0xFFFF),
		DS:     uint16(word(12) & 0xFFFF),
		ES:     uint16(word(13) & 0xFFFF),
		FS:     uint16(word(14) & 0xFFFF),
		GS:     uint16(word(15) & 0xFFFF),
	}, nil
}

// SetBreakpoint sets an execution breakpoint at addr ("Z0,<addr>,1").
func (c *Client) SetBreakpoint(addr uint32) error {
	_, err := c.command(fmt.Sprintf("Z0,%x,1", addr), 5*time.Second)
	return err
}

// RemoveBreakpoint removes an execution breakpoint at addr ("z0,<addr>,1").
func (c *Client) RemoveBreakpoint(addr uint32) error {
	_, err := c.command(fmt.Sprintf("z0,%x,1", addr), 5*time.Second)
	return err
}

// Continue resumes execution ('c'). Fire-and-forget: no reply is
// awaited.
func (c *Client) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("gdbstub continue")
	if err := c.sendPacket("c"); err != nil {
		c.logger.WithError(err).Warn("gdbstub continue failed to send")
		return err
	}
	return nil
}

// Stop sends the break byte (0x03) to halt execution.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("gdbstub stop")
	if _, err := c.conn.Write([]byte{0x03}); err != nil {
		err := brokererr.Connection("stop", "write failed", err)
		c.logger.WithError(err).Warn("gdbstub stop failed to send break byte")
		return err
	}
	return nil
}

// WaitForStop reads the next packet (the stop notification) bounded
// by timeout.
func (c *Client) WaitForStop(timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.readPacket(timeout)
	if err != nil {
		c.logger.WithError(err).Warn("gdbstub wait for stop failed")
		return "", err
	}
	return reply, nil
}

// Step single-steps ('s') and returns the resulting stop packet.
func (c *Client) Step() (string, error) {
	return c.command("s", 5*time.Second)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
