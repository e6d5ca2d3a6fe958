package amqpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{Type: FrameMethod, Channel: 3, Payload: []byte{1, 2, 3, 4}}
	raw, err := f.Encode()
	require.NoError(t, err)

	assert.Equal(t, byte(FrameMethod), raw[0])
	assert.Equal(t, byte(FrameEnd), raw[len(raw)-1])

	decoded, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, f.Type, decoded.Type)
	assert.Equal(t, f.Channel, decoded.Channel)
	assert.Equal(t, f.Payload, decoded.Payload)
}

func TestFrameEmptyPayloadRoundTrip(t *testing.T) {
	f := &Frame{Type: FrameHeartbeat, Channel: 0, Payload: nil}
	raw, err := f.Encode()
	require.NoError(t, err)
	require.Len(t, raw, 8)

	decoded, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Empty(t, decoded.Payload)
}

func TestDecodeFrameBadTerminatorIsUnexpectedFrame(t *testing.T) {
	f := &Frame{Type: FrameMethod, Channel: 1, Payload: []byte{9}}
	raw, err := f.Encode()
	require.NoError(t, err)
	raw[len(raw)-1] = 0x00

	_, err = DecodeFrame(raw)
	require.Error(t, err)
	var uf *UnexpectedFrame
	require.ErrorAs(t, err, &uf)
}

func TestDecodeFrameSizeMismatchIsFrameSyntaxError(t *testing.T) {
	f := &Frame{Type: FrameMethod, Channel: 1, Payload: []byte{1, 2, 3}}
	raw, err := f.Encode()
	require.NoError(t, err)
	raw = append(raw[:len(raw)-1], 0xFF, FrameEnd) // inject an extra byte before terminator

	_, err = DecodeFrame(raw)
	require.Error(t, err)
	var fse *FrameSyntaxError
	require.ErrorAs(t, err, &fse)
}

func TestCheckFrameEndGood(t *testing.T) {
	require.NoError(t, CheckFrameEnd(FrameEnd, 0))
}
