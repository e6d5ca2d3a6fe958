package amqpcore

import "fmt"

// AssembledMethod is one complete, decoded unit handed up from the
// MethodAssembler: a method's class/id, its raw argument bytes ready for
// field-by-field decoding, and — for content-bearing methods — the
// Message whose header and body frames have been fully collected.
type AssembledMethod struct {
	ChannelID uint16
	Type      MethodType
	Args      *FieldReader
	Content   *Message
}

// partialMessage accumulates a content-bearing method's header and body
// frames before it can be handed up as a complete AssembledMethod.
// Grounded on amqpy/method_framing.py:PartialMessage.
type partialMessage struct {
	methodType MethodType
	rawArgs    []byte
	msg        *Message
	bodySize   uint64
	received   uint64
}

func newPartialMessage(mt MethodType, rawArgs []byte) *partialMessage {
	return &partialMessage{methodType: mt, rawArgs: rawArgs, msg: &Message{}}
}

// addHeader records the content header frame's body-size and properties.
// The class id and weight are read and ignored; a payload too short to
// decode returns the read or property-decoding error as is.
func (pm *partialMessage) addHeader(payload []byte) error {
	r := NewFieldReader(payload)
	if _, err := r.ReadShort(); err != nil { // class id, unused: channel already knows it
		return err
	}
	if _, err := r.ReadShort(); err != nil { // weight, reserved, always 0
		return err
	}
	bodySize, err := r.ReadLongLong()
	if err != nil {
		return err
	}
	pm.bodySize = bodySize
	rest := payload[12:] // short+short+longlong = 2+2+8
	props, err := DecodeProperties(rest)
	if err != nil {
		return err
	}
	pm.msg.Properties = *props
	return nil
}

func (pm *partialMessage) addPayload(payload []byte) {
	pm.msg.Body = append(pm.msg.Body, payload...)
	pm.received += uint64(len(payload))
}

func (pm *partialMessage) complete() bool {
	return pm.received >= pm.bodySize
}

// MethodAssembler is a per-connection, per-channel state machine that
// reassembles the frame stream into complete methods, including the
// METHOD+HEADER+BODY... sequence that content-bearing methods use.
// Grounded on amqpy/method_framing.py:MethodReader: expected_types is a
// defaultdict keyed by channel defaulting to FRAME_METHOD; partial_messages
// holds in-flight content assembly per channel.
type MethodAssembler struct {
	expected map[uint16]uint8
	partial  map[uint16]*partialMessage
}

// NewMethodAssembler returns an empty assembler.
func NewMethodAssembler() *MethodAssembler {
	return &MethodAssembler{
		expected: map[uint16]uint8{},
		partial:  map[uint16]*partialMessage{},
	}
}

func (a *MethodAssembler) expectedType(channel uint16) uint8 {
	if t, ok := a.expected[channel]; ok {
		return t
	}
	return FrameMethod
}

// Feed processes one incoming frame and returns a completed
// AssembledMethod once enough frames have arrived, or nil while more
// frames are still expected. Any frame arriving out of the expected
// sequence (e.g. a BODY frame on a channel expecting METHOD) is an
// UnexpectedFrame, connection-fatal per spec.md §4.4.
func (a *MethodAssembler) Feed(f *Frame) (*AssembledMethod, error) {
	want := a.expectedType(f.Channel)
	if f.Type != want {
		return nil, &UnexpectedFrame{
			Msg:       fmt.Sprintf("expected frame type %d, got %d", want, f.Type),
			ChannelID: f.Channel,
		}
	}

	switch f.Type {
	case FrameMethod:
		if len(f.Payload) < 4 {
			return nil, &FrameSyntaxError{Msg: "method frame payload shorter than 4 bytes"}
		}
		r := NewFieldReader(f.Payload)
		classID, err := r.ReadShort()
		if err != nil {
			return nil, err
		}
		methodID, err := r.ReadShort()
		if err != nil {
			return nil, err
		}
		mt := MethodType{classID, methodID}
		rawArgs := f.Payload[4:]

		if contentMethods[mt] {
			a.partial[f.Channel] = newPartialMessage(mt, rawArgs)
			a.expected[f.Channel] = FrameHeader
			return nil, nil
		}
		return &AssembledMethod{ChannelID: f.Channel, Type: mt, Args: NewFieldReader(rawArgs)}, nil

	case FrameHeader:
		pm, ok := a.partial[f.Channel]
		if !ok {
			return nil, &UnexpectedFrame{Msg: "header frame with no pending method", ChannelID: f.Channel}
		}
		if err := pm.addHeader(f.Payload); err != nil {
			return nil, err
		}
		if pm.complete() {
			delete(a.partial, f.Channel)
			a.expected[f.Channel] = FrameMethod
			return &AssembledMethod{ChannelID: f.Channel, Type: pm.methodType, Args: NewFieldReader(pm.rawArgs), Content: pm.msg}, nil
		}
		a.expected[f.Channel] = FrameBody
		return nil, nil

	case FrameBody:
		pm, ok := a.partial[f.Channel]
		if !ok {
			return nil, &UnexpectedFrame{Msg: "body frame with no pending method", ChannelID: f.Channel}
		}
		pm.addPayload(f.Payload)
		if pm.complete() {
			delete(a.partial, f.Channel)
			a.expected[f.Channel] = FrameMethod
			return &AssembledMethod{ChannelID: f.Channel, Type: pm.methodType, Args: NewFieldReader(pm.rawArgs), Content: pm.msg}, nil
		}
		return nil, nil

	default:
		return nil, &UnexpectedFrame{Msg: fmt.Sprintf("frame type %d not handled by assembler", f.Type), ChannelID: f.Channel}
	}
}
