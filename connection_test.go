package amqpcore

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The fake-broker helpers below are adapted from the teacher's
// server_test.go net.Pipe + goroutine-pump harness
// (fromServerHelper/toServerHelper/methodToWireFrame), now playing the
// broker role against our client Connection instead of the other way
// around.

func brokerReadFrame(t *testing.T, conn net.Conn) *Frame {
	t.Helper()
	header := make([]byte, 7)
	_, err := io.ReadFull(conn, header)
	require.NoError(t, err)
	frameType, channel, size, err := DecodeFrameHeader(header)
	require.NoError(t, err)
	rest := make([]byte, size+1)
	_, err = io.ReadFull(conn, rest)
	require.NoError(t, err)
	require.NoError(t, CheckFrameEnd(rest[size], channel))
	return &Frame{Type: frameType, Channel: channel, Payload: rest[:size]}
}

func brokerWriteFrame(t *testing.T, conn net.Conn, f *Frame) {
	t.Helper()
	raw, err := f.Encode()
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)
}

func brokerHandshake(t *testing.T, conn net.Conn, heartbeatSec uint16) {
	t.Helper()
	header := make([]byte, 8)
	_, err := io.ReadFull(conn, header)
	require.NoError(t, err)
	require.Equal(t, ProtocolHeader, header)

	startArgs := NewFieldWriter()
	require.NoError(t, startArgs.WriteOctet(0))
	require.NoError(t, startArgs.WriteOctet(9))
	require.NoError(t, startArgs.WriteTable(Table{"capabilities": Table{}}))
	require.NoError(t, startArgs.WriteLongstr("PLAIN"))
	require.NoError(t, startArgs.WriteLongstr("en_US"))
	brokerWriteFrame(t, conn, EncodeMethod(0, MethodConnectionStart, startArgs.Bytes()))

	brokerReadFrame(t, conn) // start-ok

	tuneArgs := NewFieldWriter()
	require.NoError(t, tuneArgs.WriteShort(2047))
	require.NoError(t, tuneArgs.WriteLong(131072))
	require.NoError(t, tuneArgs.WriteShort(int(heartbeatSec)))
	brokerWriteFrame(t, conn, EncodeMethod(0, MethodConnectionTune, tuneArgs.Bytes()))

	brokerReadFrame(t, conn) // tune-ok
	brokerReadFrame(t, conn) // open

	openOkArgs := NewFieldWriter()
	require.NoError(t, openOkArgs.WriteShortstr(""))
	brokerWriteFrame(t, conn, EncodeMethod(0, MethodConnectionOpenOk, openOkArgs.Bytes()))
}

func dialTestConnection(t *testing.T) (*Connection, net.Conn, chan struct{}) {
	t.Helper()
	clientConn, brokerConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); brokerConn.Close() })

	handshakeDone := make(chan struct{})
	go func() {
		defer close(handshakeDone)
		brokerHandshake(t, brokerConn, 0)
	}()

	transport := newConnTransport(clientConn)
	conn := New(transport, Config{})
	require.NoError(t, conn.Open())
	<-handshakeDone
	return conn, brokerConn, handshakeDone
}

func TestConnectionOpenHandshake(t *testing.T) {
	conn, _, _ := dialTestConnection(t)
	require.NotEmpty(t, conn.ID())
	require.EqualValues(t, 2047, conn.channelMax)
	require.EqualValues(t, 131072, conn.frameMax)
	require.Zero(t, conn.heartbeat)
}

func TestConnectionCloseRoundTrip(t *testing.T) {
	conn, brokerConn, _ := dialTestConnection(t)

	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		f := brokerReadFrame(t, brokerConn) // connection.close
		require.Equal(t, MethodConnectionClose, decodeMethodType(t, f))
		okArgs := NewFieldWriter()
		brokerWriteFrame(t, brokerConn, EncodeMethod(0, MethodConnectionCloseOk, okArgs.Bytes()))
	}()

	require.NoError(t, conn.Close(200, "bye"))
	<-closeDone
}

func decodeMethodType(t *testing.T, f *Frame) MethodType {
	t.Helper()
	require.Equal(t, FrameMethod, f.Type)
	r := NewFieldReader(f.Payload)
	classID, err := r.ReadShort()
	require.NoError(t, err)
	methodID, err := r.ReadShort()
	require.NoError(t, err)
	return MethodType{classID, methodID}
}

func TestConnectionIsAliveAfterClose(t *testing.T) {
	conn, brokerConn, _ := dialTestConnection(t)
	brokerConn.Close()
	// Give the read loop a moment to observe the closed pipe and tear down.
	time.Sleep(50 * time.Millisecond)
	require.False(t, conn.IsAlive())
}
