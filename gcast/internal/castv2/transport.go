package castv2

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HeartbeatInterval is how often virtual connections are pinged.
const HeartbeatInterval = 5 * time.Second

// maxMsgSize is the largest message accepted from the receiver.
const maxMsgSize = 64 << 10

// ErrClosed is returned for requests on a closed channel.
var ErrClosed = errors.New("castv2: channel closed")

// A vconn is a virtual connection represented by a pair of source and
// destination ID.
type vconn struct {
	LocalID  string
	RemoteID string
}

func (vc vconn) buildPayload(msgType string) string {
	return `{"type":"` + msgType + `"}`
}

func (vc vconn) NewMsg(namespace, payload string) *Msg {
	return &Msg{vc.LocalID, vc.RemoteID, namespace, payload}
}

func (vc vconn) NewConnectMsg() *Msg {
	return vc.NewMsg(NamespaceConnection, vc.buildPayload(TypeConnect))
}

func (vc vconn) NewCloseMsg() *Msg {
	return vc.NewMsg(NamespaceConnection, vc.buildPayload(TypeClose))
}

func (vc vconn) NewPingMsg() *Msg {
	return vc.NewMsg(NamespaceHeartbeat, vc.buildPayload(TypePing))
}

func (vc vconn) NewPongMsg() *Msg {
	return vc.NewMsg(NamespaceHeartbeat, vc.buildPayload(TypePong))
}

// Channel represents a cast channel to the receiver device.
//
// It also manages the virtual connections. If a messages will be sent
// to a new source and destination ID pair, a virtual connection will be
// automatically established and keeped alive. Channel is safe for
// concurrent use.
type Channel struct {
	conn net.Conn
	log  zerolog.Logger

	wmu sync.Mutex

	mu          sync.Mutex
	vconns      map[vconn]struct{}
	pendingReqs map[uint64]chan *Msg
	subs        map[int]chan<- *Msg
	lastSubID   int

	lastReqID uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the receiver device at the given address over TLS
// and returns a Channel. Receivers use self-signed certificates.
func Dial(ctx context.Context, addr string) (*Channel, error) {
	d := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("castv2: %w", err)
	}

	return NewChannel(conn), nil
}

// NewChannel returns a Channel speaking over conn.
func NewChannel(conn net.Conn) *Channel {
	c := &Channel{
		conn:        conn,
		log:         log.With().Str("component", "castv2").Str("remote", conn.RemoteAddr().String()).Logger(),
		vconns:      make(map[vconn]struct{}),
		pendingReqs: make(map[uint64]chan *Msg),
		subs:        make(map[int]chan<- *Msg),
		done:        make(chan struct{}),
	}

	go c.listen()
	go c.keepalive(HeartbeatInterval)

	return c
}

// readMsg reads a message from the channel and blocks until it returns.
func (c *Channel) readMsg() (*Msg, error) {
	// Each message is prefixed withs its length as a big-endian uint32.
	var n uint32
	if err := binary.Read(c.conn, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > maxMsgSize {
		return nil, fmt.Errorf("castv2: message of %d bytes too large", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, err
	}

	msg := new(Msg)
	err := msg.UnmarshalBinary(buf)

	return msg, err
}

// writeMsg sends the message over the wire.
func (c *Channel) writeMsg(msg *Msg) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, err = c.conn.Write(frame)
	return err
}

func (c *Channel) listen() {
	defer c.shutdown()

	for {
		msg, err := c.readMsg()
		if errors.Is(err, ErrBinaryPayload) {
			c.log.Debug().Msg("ignoring binary message")
			continue
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn().Err(err).Msg("connection lost")
			}
			return
		}

		c.handle(msg)
	}
}

func (c *Channel) handle(msg *Msg) {
	var h Header
	if err := json.Unmarshal([]byte(msg.Payload), &h); err != nil {
		c.log.Warn().Str("payload", msg.Payload).Msg("unexpected payload")
		return
	}

	vc := vconn{msg.DestinationID, msg.SourceID}
	switch msg.Namespace {
	case NamespaceHeartbeat:
		if h.Type == TypePing {
			if err := c.writeMsg(vc.NewPongMsg()); err != nil {
				c.log.Warn().Err(err).Msg("failed to answer ping")
			}
		}
		return
	case NamespaceConnection:
		if h.Type == TypeClose {
			c.mu.Lock()
			delete(c.vconns, vc)
			c.mu.Unlock()
		}
		return
	}

	c.mu.Lock()
	ch, ok := c.pendingReqs[h.RequestID]
	delete(c.pendingReqs, h.RequestID)
	subs := make([]chan<- *Msg, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	if ok {
		ch <- msg
		return
	}

	if h.Type != TypeReceiverStatus && h.Type != TypeMediaStatus {
		c.log.Debug().Stringer("msg", msg).Msg("unhandled message")
		return
	}

	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
			c.log.Warn().Str("type", h.Type).Msg("subscriber too slow, dropping status")
		}
	}
}

func (c *Channel) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			vcs := make([]vconn, 0, len(c.vconns))
			for vc := range c.vconns {
				vcs = append(vcs, vc)
			}
			c.mu.Unlock()

			for _, vc := range vcs {
				if err := c.writeMsg(vc.NewPingMsg()); err != nil {
					c.log.Warn().Err(err).Msg("heartbeat failed")
				}
			}
		}
	}
}

func (c *Channel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done returns a channel that is closed when the channel is closed or the
// connection is lost.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether the channel is closed.
func (c *Channel) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close terminates all established virtual connections and then closes
// the underying connection.
func (c *Channel) Close() error {
	if c.IsClosed() {
		return nil
	}

	c.mu.Lock()
	vcs := make([]vconn, 0, len(c.vconns))
	for vc := range c.vconns {
		vcs = append(vcs, vc)
		delete(c.vconns, vc)
	}
	c.mu.Unlock()

	for _, vc := range vcs {
		if err := c.writeMsg(vc.NewCloseMsg()); err != nil {
			break
		}
	}

	c.shutdown()
	return c.conn.Close()
}

func (c *Channel) connect(vc vconn) error {
	c.mu.Lock()
	_, ok := c.vconns[vc]
	c.vconns[vc] = struct{}{}
	c.mu.Unlock()

	if ok {
		return nil
	}

	if err := c.writeMsg(vc.NewConnectMsg()); err != nil {
		c.mu.Lock()
		delete(c.vconns, vc)
		c.mu.Unlock()
		return err
	}

	return nil
}

func (c *Channel) send(vc vconn, namespace string, req Request, respCh chan *Msg) (uint64, error) {
	if c.IsClosed() {
		return 0, ErrClosed
	}
	if err := c.connect(vc); err != nil {
		return 0, err
	}

	reqID := atomic.AddUint64(&c.lastReqID, 1)
	req.SetRequestID(reqID)

	payload, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	if respCh != nil {
		c.mu.Lock()
		c.pendingReqs[reqID] = respCh
		c.mu.Unlock()
	}

	if err := c.writeMsg(vc.NewMsg(namespace, string(payload))); err != nil {
		c.mu.Lock()
		delete(c.pendingReqs, reqID)
		c.mu.Unlock()
		return 0, err
	}

	return reqID, nil
}

// Send sends a request without waiting for a response.
func (c *Channel) Send(srcID, destID, namespace string, req Request) error {
	_, err := c.send(vconn{srcID, destID}, namespace, req, nil)
	return err
}

// Request sends a request and waits for the response with the same
// request ID.
func (c *Channel) Request(ctx context.Context, srcID, destID, namespace string, req Request) (*Msg, error) {
	respCh := make(chan *Msg, 1)

	reqID, err := c.send(vconn{srcID, destID}, namespace, req, respCh)
	if err != nil {
		return nil, err
	}

	select {
	case msg := <-respCh:
		return msg, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingReqs, reqID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Subscribe registers ch to receive RECEIVER_STATUS and MEDIA_STATUS
// messages not claimed by a pending request. Messages are dropped when ch
// is full. The returned function cancels the subscription.
func (c *Channel) Subscribe(ch chan<- *Msg) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSubID++
	id := c.lastSubID
	c.subs[id] = ch

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
