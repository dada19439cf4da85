package broker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/requests"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

// maxFrameSize caps inbound response frames. A destination broker never sends
// anything close to this for the request types we issue.
const maxFrameSize = 64 << 20

// Conn is one TCP connection to a single destination broker. Frames carry an
// int32 size prefix; requests are serialized under the connection lock, so
// responses come back in correlation order. The first round trip after a dial
// runs the ApiVersions handshake and records what the broker speaks.
type Conn struct {
	addr        string
	clientID    string
	dialTimeout time.Duration
	ioTimeout   time.Duration

	mu       sync.Mutex
	tcp      net.Conn
	corrID   int32
	versions *requests.ApiVersionsResponse
}

func newConn(addr, clientID string, dialTimeout, ioTimeout time.Duration) *Conn {
	return &Conn{
		addr:        addr,
		clientID:    clientID,
		dialTimeout: dialTimeout,
		ioTimeout:   ioTimeout,
	}
}

// Versions returns the api ranges the broker advertised at handshake,
// connecting first if needed.
func (c *Conn) Versions(ctx context.Context) (*requests.ApiVersionsResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.versions, nil
}

// RoundTrip frames and writes one request, then reads and unframes its
// response payload (correlation id stripped).
func (c *Conn) RoundTrip(ctx context.Context, key protocol.ApiKey, version int16, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.roundTripLocked(key, version, body)
}

// Send writes one request without waiting for a response. Used for
// fire-and-forget produce (acks=0), which the broker never answers.
func (c *Conn) Send(ctx context.Context, key protocol.ApiKey, version int16, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	if _, err := c.writeRequestLocked(key, version, body); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tcp == nil {
		return nil
	}
	err := c.tcp.Close()
	c.tcp = nil
	c.versions = nil
	return err
}

// ensureConnected dials lazily and performs the ApiVersions handshake on a
// fresh connection. Callers hold c.mu.
func (c *Conn) ensureConnected(ctx context.Context) error {
	if c.tcp != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: c.dialTimeout}
	tcp, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.tcp = tcp
	c.corrID = 0

	if err := c.handshakeLocked(); err != nil {
		c.dropLocked()
		return fmt.Errorf("api versions handshake with %s: %w", c.addr, err)
	}
	logger.Debugf("connected to destination broker %s", c.addr)
	return nil
}

func (c *Conn) handshakeLocked() error {
	req, err := requests.NewApiVersionsRequest()
	if err != nil {
		return err
	}
	body, err := req.Encode()
	if err != nil {
		return err
	}
	payload, err := c.roundTripLocked(protocol.ApiVersionsKey, 0, body)
	if err != nil {
		return err
	}
	versions, err := requests.ParseApiVersionsResponse(payload, 0)
	if err != nil {
		return err
	}
	if kind := versions.Err(); !kind.Ok() {
		return kind
	}
	c.versions = versions
	return nil
}

func (c *Conn) roundTripLocked(key protocol.ApiKey, version int16, body []byte) ([]byte, error) {
	want, err := c.writeRequestLocked(key, version, body)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	corrID, payload, err := c.readResponseLocked()
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	if corrID != want {
		c.dropLocked()
		return nil, fmt.Errorf("broker %s answered correlation id %d, expected %d", c.addr, corrID, want)
	}
	return payload, nil
}

func (c *Conn) writeRequestLocked(key protocol.ApiKey, version int16, body []byte) (int32, error) {
	c.corrID++
	hdr := requests.RequestHeader{
		Key:           key,
		Version:       version,
		CorrelationID: c.corrID,
		ClientID:      c.clientID,
	}
	head, err := hdr.Encode()
	if err != nil {
		return 0, err
	}

	frame := make([]byte, 4, 4+len(head)+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(head)+len(body)))
	frame = append(frame, head...)
	frame = append(frame, body...)

	if err := c.tcp.SetWriteDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return 0, err
	}
	if _, err := c.tcp.Write(frame); err != nil {
		return 0, fmt.Errorf("write %s request to %s: %w", key, c.addr, err)
	}
	return c.corrID, nil
}

func (c *Conn) readResponseLocked() (int32, []byte, error) {
	if err := c.tcp.SetReadDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return 0, nil, err
	}
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.tcp, sizeBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read response size from %s: %w", c.addr, err)
	}
	size := int32(binary.BigEndian.Uint32(sizeBuf[:]))
	if size < 4 || size > maxFrameSize {
		return 0, nil, fmt.Errorf("broker %s sent frame of %d bytes: %w", c.addr, size, protocol.ErrMalformedRecord)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(c.tcp, frame); err != nil {
		return 0, nil, fmt.Errorf("read response body from %s: %w", c.addr, err)
	}
	corrID := int32(binary.BigEndian.Uint32(frame[:4]))
	return corrID, frame[4:], nil
}

// dropLocked discards the connection so the next call redials. Callers hold
// c.mu.
func (c *Conn) dropLocked() {
	if c.tcp != nil {
		c.tcp.Close()
		c.tcp = nil
	}
	c.versions = nil
}
