package amqpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestMethod(t *testing.T, channel uint16, mt MethodType, args []byte) *Frame {
	t.Helper()
	return EncodeMethod(channel, mt, args)
}

func TestMethodAssemblerSimpleMethod(t *testing.T) {
	a := NewMethodAssembler()
	w := NewFieldWriter()
	require.NoError(t, w.WriteShort(1))
	f := encodeTestMethod(t, 1, MethodChannelOpenOk, w.Bytes())

	am, err := a.Feed(f)
	require.NoError(t, err)
	require.NotNil(t, am)
	assert.Equal(t, MethodChannelOpenOk, am.Type)
	assert.Nil(t, am.Content)
}

func TestMethodAssemblerContentBearingMethodAcrossFrames(t *testing.T) {
	a := NewMethodAssembler()

	w := NewFieldWriter()
	require.NoError(t, w.WriteShort(0))
	require.NoError(t, w.WriteShortstr("ctag-1"))
	require.NoError(t, w.WriteLongLong(1))
	w.WriteBit(false)
	require.NoError(t, w.WriteShortstr(""))
	require.NoError(t, w.WriteShortstr("rk"))
	methodFrame := encodeTestMethod(t, 1, MethodBasicDeliver, w.Bytes())

	am, err := a.Feed(methodFrame)
	require.NoError(t, err)
	assert.Nil(t, am, "should wait for header frame")

	body := []byte("hello, world")
	var props Properties
	props.SetContentType("text/plain")
	propBytes, err := props.EncodeProperties()
	require.NoError(t, err)

	header := make([]byte, 12+len(propBytes))
	header[0] = 0
	header[1] = byte(ClassBasic)
	header[10] = byte(len(body) >> 8)
	header[11] = byte(len(body))
	copy(header[12:], propBytes)
	headerFrame := &Frame{Type: FrameHeader, Channel: 1, Payload: header}

	am, err = a.Feed(headerFrame)
	require.NoError(t, err)
	assert.Nil(t, am, "should wait for body frame")

	bodyFrame := &Frame{Type: FrameBody, Channel: 1, Payload: body}
	am, err = a.Feed(bodyFrame)
	require.NoError(t, err)
	require.NotNil(t, am)
	assert.Equal(t, MethodBasicDeliver, am.Type)
	require.NotNil(t, am.Content)
	assert.Equal(t, body, am.Content.Body)
	assert.Equal(t, "text/plain", am.Content.ContentType)
}

func TestMethodAssemblerUnexpectedFrameType(t *testing.T) {
	a := NewMethodAssembler()
	bodyFrame := &Frame{Type: FrameBody, Channel: 1, Payload: []byte("oops")}
	_, err := a.Feed(bodyFrame)
	require.Error(t, err)
	var uf *UnexpectedFrame
	require.ErrorAs(t, err, &uf)
}
