package amqpcore

import "encoding/binary"

// MethodEmitter splits an outgoing method (and, for content-bearing
// methods, its accompanying Message) into the METHOD/HEADER/BODY frame
// sequence ready for transmission. Grounded on
// amqpy/method_framing.py:MethodWriter.write_method: fixed chunk size of
// frame_max-8, strict method-then-header-then-body ordering, single
// in-order emission with no interleaving across channels (the connection's
// single frame-write lock, held by Connection, is what actually enforces
// that — the emitter itself is stateless per call).
type MethodEmitter struct {
	FrameMax uint32
}

// NewMethodEmitter returns an emitter chunking bodies to fit frameMax-sized
// frames.
func NewMethodEmitter(frameMax uint32) *MethodEmitter {
	return &MethodEmitter{FrameMax: frameMax}
}

// EncodeMethod builds the METHOD frame for mt with the given pre-encoded
// argument bytes (the caller builds these with a FieldWriter).
func EncodeMethod(channel uint16, mt MethodType, args []byte) *Frame {
	payload := make([]byte, 4+len(args))
	binary.BigEndian.PutUint16(payload[0:2], mt.ClassID)
	binary.BigEndian.PutUint16(payload[2:4], mt.MethodID)
	copy(payload[4:], args)
	return &Frame{Type: FrameMethod, Channel: channel, Payload: payload}
}

// Frames returns the complete frame sequence for a content-bearing method:
// one METHOD frame, one HEADER frame, then as many BODY frames as needed
// to fit msg.Body within FrameMax-8 byte chunks (the -8 accounts for the
// 7-byte frame envelope plus 1-byte terminator, mirroring
// amqpy.method_framing.MethodWriter's frame_max - 8 chunk size).
func (e *MethodEmitter) Frames(channel uint16, mt MethodType, args []byte, msg *Message) ([]*Frame, error) {
	methodFrame := EncodeMethod(channel, mt, args)
	if msg == nil {
		return []*Frame{methodFrame}, nil
	}

	propBytes, err := msg.Properties.EncodeProperties()
	if err != nil {
		return nil, err
	}
	header := make([]byte, 12+len(propBytes))
	binary.BigEndian.PutUint16(header[0:2], mt.ClassID)
	binary.BigEndian.PutUint16(header[2:4], 0) // weight, reserved
	binary.BigEndian.PutUint64(header[4:12], uint64(len(msg.Body)))
	copy(header[12:], propBytes)
	headerFrame := &Frame{Type: FrameHeader, Channel: channel, Payload: header}

	frames := []*Frame{methodFrame, headerFrame}

	chunkSize := int(e.FrameMax) - 8
	if chunkSize <= 0 {
		chunkSize = len(msg.Body)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	body := msg.Body
	for len(body) > 0 {
		n := chunkSize
		if n > len(body) {
			n = len(body)
		}
		frames = append(frames, &Frame{Type: FrameBody, Channel: channel, Payload: body[:n]})
		body = body[n:]
	}
	return frames, nil
}
