// Package transport owns one authenticated TCP connection to a ZTeraDB
// server: dialing, framed send/receive, and teardown.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zteradb/zteradb-go/auth"
	zterr "github.com/zteradb/zteradb-go/errors"
	"github.com/zteradb/zteradb-go/wire"
)

// Options controls dialing and per-I/O behavior.
type Options struct {
	UseTLS        bool
	VerifyTLSHost bool
	Timeout       time.Duration // per-I/O deadline; 0 = none
	DialTimeout   time.Duration // 0 = DefaultDialTimeout
}

// DefaultDialTimeout bounds connection establishment when Options.DialTimeout
// is zero. An earlier deadline on the caller's context takes precedence.
const DefaultDialTimeout = 5 * time.Second

// Transport is a single connection plus the server token it authenticated
// with. It is loaned to one caller at a time; the pool serializes access, so
// no I/O locking is needed here.
type Transport struct {
	id    string
	conn  net.Conn
	opts  Options
	token *auth.Token

	mu     sync.Mutex
	closed bool
}

// Open dials host:port over IPv4 TCP, wrapping the stream in TLS when
// requested. Failures at the dial or TLS stage yield a connection error
// naming the stage.
func Open(ctx context.Context, host string, port int, opts Options) (*Transport, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	addr := fmt.Sprintf("%s:%d", host, port)

	conn, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, zterr.Connection(fmt.Sprintf("failed to connect to %s", addr), err)
	}

	if opts.UseTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: !opts.VerifyTLSHost,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, zterr.Connection(fmt.Sprintf("TLS handshake with %s failed", addr), err)
		}
		conn = tlsConn
	}

	return &Transport{
		id:   uuid.New().String(),
		conn: conn,
		opts: opts,
	}, nil
}

// ID identifies the transport in pool bookkeeping and logs.
func (t *Transport) ID() string {
	return t.id
}

// Token returns the server token recorded by the last handshake, or nil.
func (t *Transport) Token() *auth.Token {
	return t.token
}

// SetToken records the server token for this connection.
func (t *Transport) SetToken(token *auth.Token) {
	t.token = token
}

// Send writes one framed payload.
func (t *Transport) Send(payload []byte) error {
	if t.Closed() {
		return zterr.Connection("transport is closed", nil)
	}
	if err := t.setDeadline(); err != nil {
		return err
	}
	return wire.WriteFrame(t.conn, payload)
}

// SendJSON marshals v and sends it as one frame.
func (t *Transport) SendJSON(v interface{}) error {
	payload, err := wire.EncodeJSON(v)
	if err != nil {
		return err
	}
	return t.Send(payload)
}

// ReadFrame reads one raw frame body. Used for the handshake, whose reply
// shape differs from streamed messages.
func (t *Transport) ReadFrame() ([]byte, error) {
	if t.Closed() {
		return nil, zterr.Protocol("connection closed or interrupted", nil)
	}
	if err := t.setDeadline(); err != nil {
		return nil, err
	}

	body, err := wire.ReadFrame(t.conn)
	if err != nil {
		return nil, t.classifyReadError(err)
	}
	return body, nil
}

// ReadMessage reads and decodes one server message frame.
func (t *Transport) ReadMessage() (*wire.Message, error) {
	body, err := t.ReadFrame()
	if err != nil {
		return nil, err
	}
	var msg wire.Message
	if err := wire.DecodeJSON(body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Receive starts a streamed read of response frames. The stream ends
// normally when a frame carries ResponseQueryComplete; every other frame is
// surfaced to the caller in arrival order.
func (t *Transport) Receive() *Stream {
	return &Stream{t: t}
}

// Close releases the socket. A best-effort disconnect frame is sent first;
// the protocol does not acknowledge it on half-closed connections, so its
// errors are ignored. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	wire.WriteJSONFrame(t.conn, map[string]interface{}{
		"request_type": wire.RequestDisconnect,
	})

	if err := t.conn.Close(); err != nil {
		return zterr.Connection("failed to close transport", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) setDeadline() error {
	if t.opts.Timeout == 0 {
		return nil
	}
	if err := t.conn.SetDeadline(time.Now().Add(t.opts.Timeout)); err != nil {
		return zterr.Connection("failed to set deadline", err)
	}
	return nil
}

// classifyReadError maps an exceeded deadline to a connection error and
// leaves everything else as the protocol error produced by the framing
// layer. Either way the connection is unusable afterwards.
func (t *Transport) classifyReadError(err error) error {
	t.Close()

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return zterr.Connection("read deadline exceeded", err)
	}
	return err
}

// Stream is a lazy, finite, forward-only sequence of decoded response
// frames. It is not restartable: after the terminator or an error, Next
// keeps returning false.
type Stream struct {
	t    *Transport
	msg  *wire.Message
	err  error
	done bool
}

// Next advances to the next frame. It returns false when the terminator
// arrives, or when the stream fails; check Err to tell the two apart.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	msg, err := s.t.ReadMessage()
	if err != nil {
		s.err = err
		s.done = true
		return false
	}

	if msg.ResponseCode == wire.ResponseQueryComplete {
		s.done = true
		return false
	}

	s.msg = msg
	return true
}

// Message returns the frame read by the last successful Next.
func (s *Stream) Message() *wire.Message {
	return s.msg
}

// Err returns the error that ended the stream, if any. A nil Err after Next
// returns false means the terminator was seen.
func (s *Stream) Err() error {
	return s.err
}

// Done reports whether the stream has ended.
func (s *Stream) Done() bool {
	return s.done
}
