package amqpcore

import (
	"fmt"

	"github.com/pkg/errors"
)

// MethodType identifies an AMQP method by its class and method ids.
type MethodType struct {
	ClassID  uint16
	MethodID uint16
}

func (m MethodType) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("class=%d method=%d", m.ClassID, m.MethodID)
}

// ErrorScope is the axis of an AMQPError: does it close a Channel or the
// whole Connection.
type ErrorScope int

const (
	ScopeChannel ErrorScope = iota
	ScopeConnection
)

// ErrorSeverity is the other axis of an AMQPError: is the peer allowed to
// continue using the Channel/Connection after this error.
type ErrorSeverity int

const (
	Recoverable ErrorSeverity = iota
	Irrecoverable
)

// AMQPError is the typed error raised for every AMQP reply-code the peer
// sends, per spec.md §4.8 / §7. It carries enough context for operational
// logging: the reply code, reply text, the method that caused it (if any),
// and the channel it closed (0 for connection-scoped errors).
type AMQPError struct {
	ReplyCode  uint16
	ReplyText  string
	MethodType MethodType
	ChannelID  uint16
	Scope      ErrorScope
	Severity   ErrorSeverity
}

func (e *AMQPError) Error() string {
	return fmt.Sprintf("amqp: %s (%d) %s [channel=%d method=%s]",
		severityScopeLabel(e.Scope, e.Severity), e.ReplyCode, e.ReplyText, e.ChannelID, e.MethodType)
}

func severityScopeLabel(scope ErrorScope, sev ErrorSeverity) string {
	switch {
	case scope == ScopeChannel && sev == Recoverable:
		return "recoverable channel error"
	case scope == ScopeChannel && sev == Irrecoverable:
		return "irrecoverable channel error"
	case scope == ScopeConnection && sev == Recoverable:
		return "recoverable connection error"
	default:
		return "irrecoverable connection error"
	}
}

// replyCodeInfo is the reply-code -> (scope, severity) mapping from
// spec.md §4.8, grounded on amqpy/exceptions.py's ERROR_MAP.
var replyCodeInfo = map[uint16]struct {
	Scope    ErrorScope
	Severity ErrorSeverity
}{
	311: {ScopeChannel, Recoverable},      // content-too-large
	313: {ScopeChannel, Recoverable},      // no-consumers
	320: {ScopeConnection, Recoverable},   // connection-forced
	402: {ScopeConnection, Irrecoverable}, // invalid-path
	403: {ScopeChannel, Irrecoverable},    // access-refused
	404: {ScopeChannel, Irrecoverable},    // not-found
	405: {ScopeChannel, Recoverable},      // resource-locked
	406: {ScopeChannel, Irrecoverable},    // precondition-failed
	501: {ScopeConnection, Irrecoverable}, // frame-error
	502: {ScopeConnection, Irrecoverable}, // syntax-error
	503: {ScopeConnection, Irrecoverable}, // command-invalid
	504: {ScopeConnection, Irrecoverable}, // channel-error
	505: {ScopeConnection, Irrecoverable}, // unexpected-frame
	506: {ScopeConnection, Irrecoverable}, // resource-error
	530: {ScopeConnection, Irrecoverable}, // not-allowed
	540: {ScopeConnection, Irrecoverable}, // not-implemented
	541: {ScopeConnection, Irrecoverable}, // internal-error
}

// ErrorForCode builds the typed AMQPError for a reply code, method, and
// channel, defaulting to an irrecoverable connection error for unknown
// codes. Grounded on amqpy/exceptions.py:error_for_code.
func ErrorForCode(code uint16, text string, mt MethodType, channelID uint16) *AMQPError {
	info, ok := replyCodeInfo[code]
	if !ok {
		info.Scope = ScopeConnection
		info.Severity = Irrecoverable
	}
	return &AMQPError{
		ReplyCode:  code,
		ReplyText:  text,
		MethodType: mt,
		ChannelID:  channelID,
		Scope:      info.Scope,
		Severity:   info.Severity,
	}
}

// Timeout is returned by Transport.ReadFrame/WriteFrame and DrainEvents
// when their deadline expires; channel RPCs take no deadline and never
// return it. It is distinct from a connection-fatal I/O error: the
// connection is not marked dead.
type Timeout struct{}

func (Timeout) Error() string { return "amqp: operation timed out" }

// IsTimeout reports whether err is (or wraps) a Timeout.
func IsTimeout(err error) bool {
	var t Timeout
	return errors.As(err, &t)
}

// FrameSyntaxError is raised by the codec when a value violates a bound
// (octet/short/long/longlong range, shortstr length) or when an unknown
// field-table type tag is encountered, per spec.md §4.1.
type FrameSyntaxError struct {
	Msg string
}

func (e *FrameSyntaxError) Error() string { return "amqp: frame syntax error: " + e.Msg }

// UnexpectedFrame is raised when a frame's type doesn't match what the
// MethodAssembler expects for that channel, or when the frame terminator
// byte isn't 0xCE; raised there by readLoop, it tears the connection down.
// Channel and channel-0 RPC waits also return it for a reply of the wrong
// method type, without closing the connection.
type UnexpectedFrame struct {
	Msg       string
	ChannelID uint16
}

func (e *UnexpectedFrame) Error() string {
	return fmt.Sprintf("amqp: unexpected frame on channel %d: %s", e.ChannelID, e.Msg)
}

// RecoverableConnectionError reports a connection or channel that is
// closed, or a connection whose server has gone silent past twice the
// heartbeat interval. Transport I/O failures are not of this type; they
// are wrapped by wrapIOErr.
type RecoverableConnectionError struct {
	Msg string
}

func (e *RecoverableConnectionError) Error() string { return "amqp: " + e.Msg }

func wrapIOErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "amqp: %s", op)
}
