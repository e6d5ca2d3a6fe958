package amqpcore

import (
	"crypto/tls"
	"io"
	"net"
	"time"
)

// ProtocolHeader is the 8-byte preamble a client sends to open negotiation,
// per spec.md §6: "AMQP" followed by 0x00 0x00 0x09 0x01.
var ProtocolHeader = []byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

// Transport is the wire-level collaborator Connection drives: it owns the
// socket and knows how to read/write whole frames, but nothing about AMQP
// semantics above the frame envelope. Grounded on amqpy/transport.py's
// AbstractTransport contract (connect, read_frame, write_frame, close) and
// spec.md §4.3, which treats the socket as an external collaborator rather
// than something this module owns end to end.
type Transport interface {
	// Connect performs the TCP/TLS dial and sends the protocol header.
	Connect() error
	// ReadFrame blocks until a complete frame arrives or deadline elapses.
	ReadFrame(deadline time.Time) (*Frame, error)
	// WriteFrame writes a complete frame, applying deadline if non-zero.
	WriteFrame(f *Frame, deadline time.Time) error
	// Close tears down the underlying socket.
	Close() error
	// RemoteAddr reports the peer address, for logging.
	RemoteAddr() string
}

// netTransport is the TCP/TLS Transport implementation, grounded on
// amqpy/transport.py:TCPTransport/SSLTransport. Address resolution and
// dialing are delegated to net.Dialer/tls.Dial, mirroring
// TCPTransport.__init__'s socket.getaddrinfo iteration; TCP_NODELAY is set
// the way TCPTransport.__init__ sets socket.TCP_NODELAY.
type netTransport struct {
	addr      string
	tlsConfig *tls.Config
	dialer    net.Dialer
	conn      net.Conn
}

// NewTCPTransport returns a Transport that dials addr in plaintext.
func NewTCPTransport(addr string, connectTimeout time.Duration) Transport {
	return &netTransport{addr: addr, dialer: net.Dialer{Timeout: connectTimeout}}
}

// NewTLSTransport returns a Transport that dials addr and performs a TLS
// handshake using cfg.
func NewTLSTransport(addr string, cfg *tls.Config, connectTimeout time.Duration) Transport {
	return &netTransport{addr: addr, tlsConfig: cfg, dialer: net.Dialer{Timeout: connectTimeout}}
}

// newConnTransport wraps an already-established net.Conn (e.g. one side of
// a net.Pipe loopback in tests), skipping the dial step in Connect.
func newConnTransport(conn net.Conn) *netTransport {
	return &netTransport{conn: conn}
}

func (t *netTransport) Connect() error {
	if t.conn != nil {
		if _, err := t.conn.Write(ProtocolHeader); err != nil {
			return wrapIOErr("write protocol header", err)
		}
		return nil
	}
	var conn net.Conn
	var err error
	if t.tlsConfig != nil {
		conn, err = tls.DialWithDialer(&t.dialer, "tcp", t.addr, t.tlsConfig)
	} else {
		conn, err = t.dialer.Dial("tcp", t.addr)
	}
	if err != nil {
		return wrapIOErr("dial "+t.addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
	}
	t.conn = conn
	if _, err := conn.Write(ProtocolHeader); err != nil {
		conn.Close()
		return wrapIOErr("write protocol header", err)
	}
	return nil
}

func (t *netTransport) readExact(n int, deadline time.Time) ([]byte, error) {
	if !deadline.IsZero() {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, wrapIOErr("set read deadline", err)
		}
		defer t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, Timeout{}
		}
		return nil, wrapIOErr("read", err)
	}
	return buf, nil
}

// ReadFrame reads the 7-byte header, then payload+terminator, mirroring
// amqpy/transport.py:AbstractTransport.read_frame's two-stage read.
func (t *netTransport) ReadFrame(deadline time.Time) (*Frame, error) {
	header, err := t.readExact(7, deadline)
	if err != nil {
		return nil, err
	}
	frameType, channel, size, err := DecodeFrameHeader(header)
	if err != nil {
		return nil, err
	}
	rest, err := t.readExact(int(size)+1, deadline)
	if err != nil {
		return nil, err
	}
	payload, terminator := rest[:size], rest[size]
	if err := CheckFrameEnd(terminator, channel); err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, Channel: channel, Payload: payload}, nil
}

func (t *netTransport) WriteFrame(f *Frame, deadline time.Time) error {
	raw, err := f.Encode()
	if err != nil {
		return err
	}
	if !deadline.IsZero() {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return wrapIOErr("set write deadline", err)
		}
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := t.conn.Write(raw); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Timeout{}
		}
		return wrapIOErr("write", err)
	}
	return nil
}

func (t *netTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *netTransport) RemoteAddr() string {
	if t.conn == nil {
		return t.addr
	}
	return t.conn.RemoteAddr().String()
}
