package amqpcore

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func brokerExpectChannelOpen(t *testing.T, conn net.Conn, channelID uint16) {
	t.Helper()
	f := brokerReadFrame(t, conn)
	require.Equal(t, channelID, f.Channel)
	require.Equal(t, MethodChannelOpen, decodeMethodType(t, f))
	brokerWriteFrame(t, conn, EncodeMethod(channelID, MethodChannelOpenOk, nil))
}

func openTestChannel(t *testing.T) (*Connection, *Channel, net.Conn) {
	t.Helper()
	conn, brokerConn, _ := dialTestConnection(t)

	chReady := make(chan *Channel, 1)
	chErr := make(chan error, 1)
	openDone := make(chan struct{})
	go func() {
		defer close(openDone)
		brokerExpectChannelOpen(t, brokerConn, 1)
	}()
	go func() {
		ch, err := conn.Channel()
		chReady <- ch
		chErr <- err
	}()
	<-openDone
	ch := <-chReady
	require.NoError(t, <-chErr)
	require.NotNil(t, ch)
	return conn, ch, brokerConn
}

func TestChannelQueueDeclare(t *testing.T) {
	_, ch, brokerConn := openTestChannel(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f := brokerReadFrame(t, brokerConn)
		require.Equal(t, MethodQueueDeclare, decodeMethodType(t, f))

		args := NewFieldWriter()
		require.NoError(t, args.WriteShortstr("my-queue"))
		require.NoError(t, args.WriteLong(0))
		require.NoError(t, args.WriteLong(0))
		brokerWriteFrame(t, brokerConn, EncodeMethod(ch.ID(), MethodQueueDeclareOk, args.Bytes()))
	}()

	ok, err := ch.QueueDeclare("my-queue", true, false, false, false, nil)
	require.NoError(t, err)
	require.Equal(t, "my-queue", ok.Queue)
	<-done
}

func TestChannelBasicPublishConfirmMode(t *testing.T) {
	_, ch, brokerConn := openTestChannel(t)

	selectDone := make(chan struct{})
	go func() {
		defer close(selectDone)
		f := brokerReadFrame(t, brokerConn)
		require.Equal(t, MethodConfirmSelect, decodeMethodType(t, f))
		brokerWriteFrame(t, brokerConn, EncodeMethod(ch.ID(), MethodConfirmSelectOk, nil))
	}()
	require.NoError(t, ch.ConfirmSelect(false))
	<-selectDone

	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		brokerReadFrame(t, brokerConn) // method
		brokerReadFrame(t, brokerConn) // header
		brokerReadFrame(t, brokerConn) // body

		ackArgs := NewFieldWriter()
		ackArgs.WriteLongLong(1)
		ackArgs.WriteBit(false)
		brokerWriteFrame(t, brokerConn, EncodeMethod(ch.ID(), MethodBasicAck, ackArgs.Bytes()))
	}()

	err := ch.BasicPublish("", "my-queue", false, false, &Message{Body: []byte("payload")})
	require.NoError(t, err)
	<-publishDone
}

func TestChannelBasicConsumeDelivery(t *testing.T) {
	_, ch, brokerConn := openTestChannel(t)

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		f := brokerReadFrame(t, brokerConn)
		require.Equal(t, MethodBasicConsume, decodeMethodType(t, f))

		r := NewFieldReader(f.Payload[4:])
		_, err := r.ReadShort()
		require.NoError(t, err)
		_, err = r.ReadShortstr() // queue
		require.NoError(t, err)
		tag, err := r.ReadShortstr()
		require.NoError(t, err)

		okArgs := NewFieldWriter()
		require.NoError(t, okArgs.WriteShortstr(tag))
		brokerWriteFrame(t, brokerConn, EncodeMethod(ch.ID(), MethodBasicConsumeOk, okArgs.Bytes()))

		deliverArgs := NewFieldWriter()
		require.NoError(t, deliverArgs.WriteShortstr(tag))
		require.NoError(t, deliverArgs.WriteLongLong(7))
		deliverArgs.WriteBit(false)
		require.NoError(t, deliverArgs.WriteShortstr(""))
		require.NoError(t, deliverArgs.WriteShortstr("rk"))
		methodFrame := EncodeMethod(ch.ID(), MethodBasicDeliver, deliverArgs.Bytes())
		brokerWriteFrame(t, brokerConn, methodFrame)

		var props Properties
		props.SetContentType("text/plain")
		propBytes, err := props.EncodeProperties()
		require.NoError(t, err)
		body := []byte("delivered body")
		header := make([]byte, 12+len(propBytes))
		header[11] = byte(len(body))
		copy(header[12:], propBytes)
		brokerWriteFrame(t, brokerConn, &Frame{Type: FrameHeader, Channel: ch.ID(), Payload: header})
		brokerWriteFrame(t, brokerConn, &Frame{Type: FrameBody, Channel: ch.ID(), Payload: body})
	}()

	received := make(chan *Message, 1)
	tag, err := ch.BasicConsume("my-queue", "", false, true, false, false, nil, func(msg *Message) {
		received <- msg
	})
	require.NoError(t, err)
	require.NotEmpty(t, tag)

	select {
	case msg := <-received:
		require.Equal(t, "delivered body", string(msg.Body))
		require.EqualValues(t, 7, msg.DeliveryInfo.DeliveryTag)
		require.Equal(t, "delivered body", msg.DecodedText)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	<-consumeDone
}

func TestChannelReopensAfterBrokerClose(t *testing.T) {
	_, ch, brokerConn := openTestChannel(t)

	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		closeArgs := NewFieldWriter()
		require.NoError(t, closeArgs.WriteShort(404))
		require.NoError(t, closeArgs.WriteShortstr("NOT_FOUND - no queue 'missing'"))
		require.NoError(t, closeArgs.WriteShort(int(ClassQueue)))
		require.NoError(t, closeArgs.WriteShort(10))
		brokerWriteFrame(t, brokerConn, EncodeMethod(ch.ID(), MethodChannelClose, closeArgs.Bytes()))

		f := brokerReadFrame(t, brokerConn) // channel.close-ok from the client
		require.Equal(t, MethodChannelCloseOk, decodeMethodType(t, f))
	}()
	<-closeDone
	// Give deliver() a moment to mark the channel closed before the next
	// RPC observes it.
	time.Sleep(20 * time.Millisecond)

	reopenDone := make(chan struct{})
	go func() {
		defer close(reopenDone)
		brokerExpectChannelOpen(t, brokerConn, ch.ID())

		f := brokerReadFrame(t, brokerConn)
		require.Equal(t, MethodQueueDeclare, decodeMethodType(t, f))
		args := NewFieldWriter()
		require.NoError(t, args.WriteShortstr("fresh"))
		require.NoError(t, args.WriteLong(0))
		require.NoError(t, args.WriteLong(0))
		brokerWriteFrame(t, brokerConn, EncodeMethod(ch.ID(), MethodQueueDeclareOk, args.Bytes()))
	}()

	ok, err := ch.QueueDeclare("fresh", true, false, false, false, nil)
	require.NoError(t, err)
	require.Equal(t, "fresh", ok.Queue)
	<-reopenDone
}
