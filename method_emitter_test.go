package amqpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodEmitterNoContentReturnsSingleFrame(t *testing.T) {
	e := NewMethodEmitter(4096)
	frames, err := e.Frames(1, MethodChannelOpen, []byte{0}, nil)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameMethod, frames[0].Type)
}

func TestMethodEmitterContentSplitsIntoChunks(t *testing.T) {
	e := NewMethodEmitter(16) // chunkSize = 16 - 8 = 8
	msg := &Message{Body: []byte("0123456789abcdef")} // 16 bytes -> two 8-byte chunks
	frames, err := e.Frames(2, MethodBasicPublish, []byte{0}, msg)
	require.NoError(t, err)
	require.Len(t, frames, 4) // method + header + 2 body chunks

	assert.Equal(t, FrameMethod, frames[0].Type)
	assert.Equal(t, FrameHeader, frames[1].Type)
	assert.Equal(t, FrameBody, frames[2].Type)
	assert.Equal(t, FrameBody, frames[3].Type)
	assert.Len(t, frames[2].Payload, 8)
	assert.Len(t, frames[3].Payload, 8)

	var reassembled []byte
	reassembled = append(reassembled, frames[2].Payload...)
	reassembled = append(reassembled, frames[3].Payload...)
	assert.Equal(t, msg.Body, reassembled)
}

func TestMethodEmitterFeedsAssemblerEndToEnd(t *testing.T) {
	e := NewMethodEmitter(32)
	var props Properties
	props.SetContentType("text/plain")
	msg := &Message{Properties: props, Body: []byte("a reasonably long message body for chunking")}

	frames, err := e.Frames(5, MethodBasicPublish, []byte{0, 0}, msg)
	require.NoError(t, err)

	a := NewMethodAssembler()
	var am *AssembledMethod
	for _, f := range frames {
		var err error
		am, err = a.Feed(f)
		require.NoError(t, err)
	}
	require.NotNil(t, am)
	assert.Equal(t, MethodBasicPublish, am.Type)
	assert.Equal(t, msg.Body, am.Content.Body)
	assert.Equal(t, "text/plain", am.Content.ContentType)
}
