package amqpcore

import (
	"encoding/binary"
	"fmt"
)

// Frame types, per spec.md §4.2 / amqpy/spec.py's FRAME_* constants.
const (
	FrameMethod    uint8 = 1
	FrameHeader    uint8 = 2
	FrameBody      uint8 = 3
	FrameHeartbeat uint8 = 8
)

// FrameEnd is the mandatory frame terminator octet.
const FrameEnd uint8 = 0xCE

// Frame is the envelope every AMQP 0.9.1 wire unit is carried in:
//
//	octet     type
//	short     channel
//	long      payload size
//	payload   size octets
//	octet     frame-end (0xCE)
//
// Grounded on amqpy/spec.py's Frame class layout comment and the teacher's
// amqp.WireFrame{FrameType, Channel, Payload}.
type Frame struct {
	Type    uint8
	Channel uint16
	Payload []byte
}

// Encode serializes f into the wire byte sequence, including the frame-end
// terminator. Payload longer than the AMQP protocol's long-field limit is a
// FrameSyntaxError.
func (f *Frame) Encode() ([]byte, error) {
	if uint64(len(f.Payload)) > 0xFFFFFFFF {
		return nil, &FrameSyntaxError{Msg: fmt.Sprintf("frame payload too large (%d bytes)", len(f.Payload))}
	}
	buf := make([]byte, 7+len(f.Payload)+1)
	buf[0] = f.Type
	binary.BigEndian.PutUint16(buf[1:3], f.Channel)
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Payload)))
	copy(buf[7:], f.Payload)
	buf[len(buf)-1] = FrameEnd
	return buf, nil
}

// DecodeFrameHeader parses the 7-byte frame header (type, channel, size).
// The caller is responsible for then reading exactly size payload bytes
// plus the terminator octet, since payload length is unbounded until the
// header is known (this mirrors amqpy/transport.py:read_frame, which reads
// the 7-byte header, then the payload+1 in a second read).
func DecodeFrameHeader(header []byte) (frameType uint8, channel uint16, size uint32, err error) {
	if len(header) != 7 {
		return 0, 0, 0, &FrameSyntaxError{Msg: fmt.Sprintf("frame header must be 7 bytes, got %d", len(header))}
	}
	frameType = header[0]
	channel = binary.BigEndian.Uint16(header[1:3])
	size = binary.BigEndian.Uint32(header[3:7])
	return frameType, channel, size, nil
}

// CheckFrameEnd validates the terminator octet read after a frame's
// payload. A bad terminator is connection-fatal, per spec.md §4.2 / the
// amqpy.transport.AbstractTransport.read_frame `ch == 206` check.
func CheckFrameEnd(b byte, channel uint16) error {
	if b != FrameEnd {
		return &UnexpectedFrame{
			Msg:       fmt.Sprintf("bad frame terminator 0x%02x, want 0x%02x", b, FrameEnd),
			ChannelID: channel,
		}
	}
	return nil
}

// DecodeFrame parses a complete raw frame (header + payload + terminator).
// Used by tests and any caller holding a frame already fully buffered.
func DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) < 8 {
		return nil, &FrameSyntaxError{Msg: fmt.Sprintf("frame too short (%d bytes)", len(raw))}
	}
	frameType, channel, size, err := DecodeFrameHeader(raw[:7])
	if err != nil {
		return nil, err
	}
	if uint32(len(raw)-8) != size {
		return nil, &FrameSyntaxError{Msg: fmt.Sprintf("frame size mismatch: header says %d, have %d", size, len(raw)-8)}
	}
	if err := CheckFrameEnd(raw[len(raw)-1], channel); err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, Channel: channel, Payload: raw[7 : 7+size]}, nil
}
