package amqpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorForCodeKnownReplyCode(t *testing.T) {
	err := ErrorForCode(404, "not found", MethodQueueDeclare, 3)
	assert.Equal(t, ScopeChannel, err.Scope)
	assert.Equal(t, Irrecoverable, err.Severity)
	assert.Contains(t, err.Error(), "not found")
}

func TestErrorForCodeUnknownReplyCodeDefaultsIrrecoverableConnection(t *testing.T) {
	err := ErrorForCode(9999, "mystery", MethodConnectionOpen, 0)
	assert.Equal(t, ScopeConnection, err.Scope)
	assert.Equal(t, Irrecoverable, err.Severity)
}

func TestIsTimeoutRecognizesTimeoutValue(t *testing.T) {
	var err error = Timeout{}
	require.True(t, IsTimeout(err))
	require.False(t, IsTimeout(&FrameSyntaxError{Msg: "x"}))
}

func TestMethodTypeStringFallsBackToNumericForm(t *testing.T) {
	mt := MethodType{ClassID: 999, MethodID: 1}
	assert.Contains(t, mt.String(), "class=999")
}
