package amqpcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesEncodeDecodeRoundTrip(t *testing.T) {
	var p Properties
	p.SetContentType("application/json")
	p.SetDeliveryMode(2)
	p.SetCorrelationID("corr-1")
	p.SetHeaders(Table{"x-trace": "abc"})
	p.SetTimestamp(time.Unix(1700000000, 0).UTC())

	buf, err := p.EncodeProperties()
	require.NoError(t, err)

	decoded, err := DecodeProperties(buf)
	require.NoError(t, err)

	assert.Equal(t, "application/json", decoded.ContentType)
	assert.EqualValues(t, 2, decoded.DeliveryMode)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "abc", decoded.Headers["x-trace"])
	assert.Equal(t, p.Timestamp, decoded.Timestamp)

	assert.Empty(t, decoded.ReplyTo)
	assert.Empty(t, decoded.MessageID)
}

func TestPropertiesOnlySetFieldsAreEncoded(t *testing.T) {
	var p Properties
	p.SetAppID("my-app")

	buf, err := p.EncodeProperties()
	require.NoError(t, err)
	// flag word (2) + shortstr length byte (1) + "my-app" (6)
	require.Len(t, buf, 2+1+6)

	decoded, err := DecodeProperties(buf)
	require.NoError(t, err)
	assert.Equal(t, "my-app", decoded.AppID)
	assert.Empty(t, decoded.ContentType)
}

func TestAutoDecodedBodyRecognizesUTF8(t *testing.T) {
	m := &Message{Body: []byte("hello world")}
	m.SetContentEncoding("utf-8")
	text, ok := m.autoDecodedBody()
	assert.True(t, ok)
	assert.Equal(t, "hello world", text)
}

func TestAutoDecodedBodyLeavesUnknownEncodingAlone(t *testing.T) {
	m := &Message{Body: []byte{0xFF, 0xFE}}
	m.SetContentEncoding("binary")
	_, ok := m.autoDecodedBody()
	assert.False(t, ok)
}
