package amqpcore

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReturnHandler receives messages the broker could not route when
// published with the mandatory or immediate flag, via basic.return.
type ReturnHandler func(info BasicReturn, msg *Message)

// ConsumerHandler receives deliveries for a basic.consume subscription.
type ConsumerHandler func(msg *Message)

// ConfirmHandler receives every basic.ack/basic.nack the broker sends in
// confirm mode, independent of any single BasicPublish call blocking on
// its own delivery tag. Grounded on
// amqpy/channel.py:Channel._basic_ack_recv's events['basic_ack'] fan-out,
// per SPEC_FULL.md §4 item 5.
type ConfirmHandler func(deliveryTag uint64, multiple, nack bool)

// Channel is one AMQP channel multiplexed over a Connection: synchronous
// RPC calls, consumer dispatch, publish (with optional confirm/tx modes),
// and the basic.return immediate-method bypass. Grounded on
// amqpy/channel.py and amqpy/abstract_channel.py for semantics; dispatch
// itself is simpler than the teacher's per-channel incoming-queue-plus-
// goroutine shape (server/connection.go's
// AMQPConnection.channels[id].incoming) since this module has exactly one
// reader goroutine per connection (Connection.readLoop) calling deliver
// directly, so the extra hop the teacher's broker-side queue provided has
// no job to do here.
type Channel struct {
	conn *Connection
	id   uint16
	log  logrus.FieldLogger

	rpcReply chan *AssembledMethod
	rpcLock  sync.Mutex

	mu             sync.Mutex
	closed         bool
	closeErr       error
	doneCh         chan struct{}
	returnHandler  ReturnHandler
	consumers      map[string]ConsumerHandler
	confirmMode    bool
	txMode         bool
	publishSeq     uint64
	confirmPending map[uint64]chan confirmResult
	confirmListen  []ConfirmHandler

	// AutoDecode, when true, best-effort decodes delivered bodies as text
	// when ContentEncoding names a recognized encoding, per
	// SPEC_FULL.md §4 item 4.
	AutoDecode bool
}

type confirmResult struct {
	nack bool
}

func newChannel(conn *Connection, id uint16) *Channel {
	return &Channel{
		conn:           conn,
		id:             id,
		log:            conn.log.WithField("channel_id", id),
		rpcReply:       make(chan *AssembledMethod, 1),
		doneCh:         make(chan struct{}),
		consumers:      map[string]ConsumerHandler{},
		confirmPending: map[uint64]chan confirmResult{},
		AutoDecode:     true,
	}
}

// open sends channel.open and waits for channel.open-ok.
func (ch *Channel) open() error {
	w := NewFieldWriter()
	if err := w.WriteShortstr(""); err != nil { // reserved "out-of-band"
		return err
	}
	_, err := ch.invoke(MethodChannelOpen, w.Bytes(), nil, MethodChannelOpenOk)
	return err
}

// ID returns the channel number.
func (ch *Channel) ID() uint16 { return ch.id }

// deliver is called directly by Connection.readLoop with every
// AssembledMethod addressed to this channel — there is exactly one reader
// per connection, so delivery never needs an intermediate queue. Consumer
// deliveries are dispatched on their own goroutine so one slow consumer
// handler can't stall the connection's single reader; the return handler
// and publisher-confirm listeners run synchronously on the reader.
func (ch *Channel) deliver(am *AssembledMethod) {
	switch am.Type {
	case MethodBasicReturn:
		ch.handleReturn(am)
		return
	case MethodBasicDeliver:
		go ch.handleDeliver(am)
		return
	case MethodBasicAck:
		ch.handleConfirm(am, false)
		return
	case MethodBasicNack:
		ch.handleConfirm(am, true)
		return
	case MethodChannelClose:
		ch.handleClose(am)
		return
	}
	select {
	case ch.rpcReply <- am:
	default:
		ch.log.WithField("method", am.Type.String()).Warn("dropping unconsumed channel method")
	}
}

func (ch *Channel) handleReturn(am *AssembledMethod) {
	code, _ := am.Args.ReadShort()
	text, _ := am.Args.ReadShortstr()
	exchange, _ := am.Args.ReadShortstr()
	routingKey, _ := am.Args.ReadShortstr()
	info := BasicReturn{ReplyCode: code, ReplyText: text, Exchange: exchange, RoutingKey: routingKey}
	if ch.returnHandler == nil {
		ch.log.WithField("reply_text", text).Warn("basic.return with no handler registered")
		return
	}
	ch.returnHandler(info, ch.decodeMessage(am.Content))
}

func (ch *Channel) handleDeliver(am *AssembledMethod) {
	consumerTag, _ := am.Args.ReadShortstr()
	deliveryTag, _ := am.Args.ReadLongLong()
	redelivered, _ := am.Args.ReadBit()
	exchange, _ := am.Args.ReadShortstr()
	routingKey, _ := am.Args.ReadShortstr()

	msg := ch.decodeMessage(am.Content)
	msg.DeliveryInfo = DeliveryInfo{
		ConsumerTag: consumerTag,
		DeliveryTag: deliveryTag,
		Redelivered: redelivered,
		Exchange:    exchange,
		RoutingKey:  routingKey,
	}

	ch.mu.Lock()
	handler, ok := ch.consumers[consumerTag]
	ch.mu.Unlock()
	if !ok {
		ch.log.WithField("consumer_tag", consumerTag).Warn("delivery for unknown consumer")
		return
	}
	handler(msg)
}

func (ch *Channel) decodeMessage(msg *Message) *Message {
	if msg == nil {
		msg = &Message{}
	}
	if ch.AutoDecode {
		if text, ok := msg.autoDecodedBody(); ok {
			msg.DecodedText = text
		}
	}
	return msg
}

func (ch *Channel) handleConfirm(am *AssembledMethod, nack bool) {
	deliveryTag, _ := am.Args.ReadLongLong()
	multiple, _ := am.Args.ReadBit()
	if nack {
		_, _ = am.Args.ReadBit() // requeue, informational only
	}

	ch.mu.Lock()
	listeners := append([]ConfirmHandler(nil), ch.confirmListen...)
	var resolved []chan confirmResult
	if multiple {
		for tag, c := range ch.confirmPending {
			if tag <= deliveryTag {
				resolved = append(resolved, c)
				delete(ch.confirmPending, tag)
			}
		}
	} else if c, ok := ch.confirmPending[deliveryTag]; ok {
		resolved = append(resolved, c)
		delete(ch.confirmPending, deliveryTag)
	}
	ch.mu.Unlock()

	for _, c := range resolved {
		c <- confirmResult{nack: nack}
	}
	for _, fn := range listeners {
		fn(deliveryTag, multiple, nack)
	}
}

func (ch *Channel) handleClose(am *AssembledMethod) {
	code, _ := am.Args.ReadShort()
	text, _ := am.Args.ReadShortstr()
	classID, _ := am.Args.ReadShort()
	methodID, _ := am.Args.ReadShort()
	err := ErrorForCode(code, text, MethodType{classID, methodID}, ch.id)
	ch.conn.sendMethod(ch.id, MethodChannelCloseOk, nil, nil)
	ch.notifyClosed(err)
}

// notifyClosed marks the channel closed and wakes any blocked invoke call.
// Returns nil always; it never itself fails, but keeps the error-return
// shape Connection.teardown's multierror aggregation expects from every
// channel it tears down.
func (ch *Channel) notifyClosed(err error) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.closeErr = err
	pending := make([]chan confirmResult, 0, len(ch.confirmPending))
	for _, c := range ch.confirmPending {
		pending = append(pending, c)
	}
	ch.confirmPending = map[uint64]chan confirmResult{}
	ch.mu.Unlock()
	close(ch.doneCh)
	for _, c := range pending {
		close(c)
	}
	return nil
}

func (ch *Channel) closedErr() error {
	if ch.closeErr != nil {
		return ch.closeErr
	}
	return &RecoverableConnectionError{Msg: "channel closed"}
}

// invoke sends mt and blocks for one of wantAny reply types, serializing
// concurrent RPCs on this channel with rpcLock — mirroring amqpy's
// single-threaded wait_method model (spec.md §5's per-channel RPC
// ordering guarantee). If the channel was previously closed by the broker
// (e.g. a 404 on a prior queue.declare) but the connection is still alive,
// it is transparently reopened first, so the same Channel value keeps
// working without the caller reconnecting — spec.md §4's "the channel
// reopens logically on demand" requirement, grounded on
// amqpy.channel.Channel._do_revive.
func (ch *Channel) invoke(mt MethodType, args []byte, msg *Message, wantAny ...MethodType) (*AssembledMethod, error) {
	ch.rpcLock.Lock()
	defer ch.rpcLock.Unlock()

	if mt != MethodChannelOpen {
		if err := ch.reviveLocked(); err != nil {
			return nil, err
		}
	}
	return ch.sendAndWaitLocked(mt, args, msg, wantAny...)
}

// reviveLocked re-opens the channel if it was closed by the broker but the
// underlying connection is still up. Must be called with rpcLock held.
func (ch *Channel) reviveLocked() error {
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if !closed {
		return nil
	}
	if ch.conn.isClosed() {
		return ch.closedErr()
	}

	ch.mu.Lock()
	ch.closed = false
	ch.closeErr = nil
	ch.doneCh = make(chan struct{})
	ch.confirmMode = false
	ch.txMode = false
	ch.publishSeq = 0
	pending := ch.confirmPending
	ch.confirmPending = map[uint64]chan confirmResult{}
	ch.mu.Unlock()
	for _, c := range pending {
		close(c)
	}

	w := NewFieldWriter()
	if err := w.WriteShortstr(""); err != nil { // reserved "out-of-band"
		return err
	}
	_, err := ch.sendAndWaitLocked(MethodChannelOpen, w.Bytes(), nil, MethodChannelOpenOk)
	return err
}

// sendAndWaitLocked performs the actual send-then-wait-for-reply RPC; it
// assumes rpcLock is already held by the caller (invoke or reviveLocked).
func (ch *Channel) sendAndWaitLocked(mt MethodType, args []byte, msg *Message, wantAny ...MethodType) (*AssembledMethod, error) {
	start := time.Now()
	if err := ch.conn.sendMethod(ch.id, mt, args, msg); err != nil {
		return nil, err
	}
	select {
	case am, ok := <-ch.rpcReply:
		if !ok {
			return nil, ch.closedErr()
		}
		ch.conn.metrics.RecordRPC(mt.String(), start)
		for _, want := range wantAny {
			if am.Type == want {
				return am, nil
			}
		}
		return nil, &UnexpectedFrame{Msg: "unexpected reply " + am.Type.String(), ChannelID: ch.id}
	case <-ch.doneCh:
		return nil, ch.closedErr()
	}
}

// SetReturnHandler registers the callback invoked for basic.return.
func (ch *Channel) SetReturnHandler(h ReturnHandler) { ch.returnHandler = h }

// OnPublisherConfirm registers fn to be called for every basic.ack/
// basic.nack received in confirm mode, in addition to any BasicPublish
// call blocking on its own delivery tag.
func (ch *Channel) OnPublisherConfirm(fn ConfirmHandler) {
	ch.mu.Lock()
	ch.confirmListen = append(ch.confirmListen, fn)
	ch.mu.Unlock()
}

// ExchangeDeclare declares an exchange.
func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args Table) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(name); err != nil {
		return err
	}
	if err := w.WriteShortstr(kind); err != nil {
		return err
	}
	w.WriteBit(false) // passive
	w.WriteBit(durable)
	w.WriteBit(autoDelete)
	w.WriteBit(internal)
	w.WriteBit(noWait)
	if err := w.WriteTable(args); err != nil {
		return err
	}
	if noWait {
		return ch.conn.sendMethod(ch.id, MethodExchangeDeclare, w.Bytes(), nil)
	}
	_, err := ch.invoke(MethodExchangeDeclare, w.Bytes(), nil, MethodExchangeDeclareOk)
	return err
}

// ExchangeDelete deletes an exchange.
func (ch *Channel) ExchangeDelete(name string, ifUnused, noWait bool) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(name); err != nil {
		return err
	}
	w.WriteBit(ifUnused)
	w.WriteBit(noWait)
	if noWait {
		return ch.conn.sendMethod(ch.id, MethodExchangeDelete, w.Bytes(), nil)
	}
	_, err := ch.invoke(MethodExchangeDelete, w.Bytes(), nil, MethodExchangeDeleteOk)
	return err
}

// ExchangeBind binds one exchange to another (RabbitMQ extension).
func (ch *Channel) ExchangeBind(destination, source, routingKey string, noWait bool, args Table) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(destination); err != nil {
		return err
	}
	if err := w.WriteShortstr(source); err != nil {
		return err
	}
	if err := w.WriteShortstr(routingKey); err != nil {
		return err
	}
	w.WriteBit(noWait)
	if err := w.WriteTable(args); err != nil {
		return err
	}
	if noWait {
		return ch.conn.sendMethod(ch.id, MethodExchangeBind, w.Bytes(), nil)
	}
	_, err := ch.invoke(MethodExchangeBind, w.Bytes(), nil, MethodExchangeBindOk)
	return err
}

// ExchangeUnbind removes an exchange-to-exchange binding.
func (ch *Channel) ExchangeUnbind(destination, source, routingKey string, noWait bool, args Table) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(destination); err != nil {
		return err
	}
	if err := w.WriteShortstr(source); err != nil {
		return err
	}
	if err := w.WriteShortstr(routingKey); err != nil {
		return err
	}
	w.WriteBit(noWait)
	if err := w.WriteTable(args); err != nil {
		return err
	}
	if noWait {
		return ch.conn.sendMethod(ch.id, MethodExchangeUnbind, w.Bytes(), nil)
	}
	_, err := ch.invoke(MethodExchangeUnbind, w.Bytes(), nil, MethodExchangeUnbindOk)
	return err
}

// QueueDeclare declares a queue.
func (ch *Channel) QueueDeclare(name string, durable, exclusive, autoDelete, noWait bool, args Table) (QueueDeclareOk, error) {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(name); err != nil {
		return QueueDeclareOk{}, err
	}
	w.WriteBit(false) // passive
	w.WriteBit(durable)
	w.WriteBit(exclusive)
	w.WriteBit(autoDelete)
	w.WriteBit(noWait)
	if err := w.WriteTable(args); err != nil {
		return QueueDeclareOk{}, err
	}
	if noWait {
		return QueueDeclareOk{Queue: name}, ch.conn.sendMethod(ch.id, MethodQueueDeclare, w.Bytes(), nil)
	}
	am, err := ch.invoke(MethodQueueDeclare, w.Bytes(), nil, MethodQueueDeclareOk)
	if err != nil {
		return QueueDeclareOk{}, err
	}
	queue, err := am.Args.ReadShortstr()
	if err != nil {
		return QueueDeclareOk{}, err
	}
	msgCount, err := am.Args.ReadLong()
	if err != nil {
		return QueueDeclareOk{}, err
	}
	consumerCount, err := am.Args.ReadLong()
	if err != nil {
		return QueueDeclareOk{}, err
	}
	return QueueDeclareOk{Queue: queue, MessageCount: msgCount, ConsumerCount: consumerCount}, nil
}

// QueueBind binds a queue to an exchange.
func (ch *Channel) QueueBind(queue, exchange, routingKey string, noWait bool, args Table) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(queue); err != nil {
		return err
	}
	if err := w.WriteShortstr(exchange); err != nil {
		return err
	}
	if err := w.WriteShortstr(routingKey); err != nil {
		return err
	}
	w.WriteBit(noWait)
	if err := w.WriteTable(args); err != nil {
		return err
	}
	if noWait {
		return ch.conn.sendMethod(ch.id, MethodQueueBind, w.Bytes(), nil)
	}
	_, err := ch.invoke(MethodQueueBind, w.Bytes(), nil, MethodQueueBindOk)
	return err
}

// QueueUnbind removes a queue-to-exchange binding.
func (ch *Channel) QueueUnbind(queue, exchange, routingKey string, args Table) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(queue); err != nil {
		return err
	}
	if err := w.WriteShortstr(exchange); err != nil {
		return err
	}
	if err := w.WriteShortstr(routingKey); err != nil {
		return err
	}
	if err := w.WriteTable(args); err != nil {
		return err
	}
	_, err := ch.invoke(MethodQueueUnbind, w.Bytes(), nil, MethodQueueUnbindOk)
	return err
}

// QueuePurge removes all messages from a queue, returning the count purged.
func (ch *Channel) QueuePurge(queue string, noWait bool) (uint32, error) {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(queue); err != nil {
		return 0, err
	}
	w.WriteBit(noWait)
	if noWait {
		return 0, ch.conn.sendMethod(ch.id, MethodQueuePurge, w.Bytes(), nil)
	}
	am, err := ch.invoke(MethodQueuePurge, w.Bytes(), nil, MethodQueuePurgeOk)
	if err != nil {
		return 0, err
	}
	return am.Args.ReadLong()
}

// QueueDelete deletes a queue, returning the count of messages it held.
func (ch *Channel) QueueDelete(queue string, ifUnused, ifEmpty, noWait bool) (uint32, error) {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(queue); err != nil {
		return 0, err
	}
	w.WriteBit(ifUnused)
	w.WriteBit(ifEmpty)
	w.WriteBit(noWait)
	if noWait {
		return 0, ch.conn.sendMethod(ch.id, MethodQueueDelete, w.Bytes(), nil)
	}
	am, err := ch.invoke(MethodQueueDelete, w.Bytes(), nil, MethodQueueDeleteOk)
	if err != nil {
		return 0, err
	}
	return am.Args.ReadLong()
}

// BasicQos sets the channel's prefetch limits.
func (ch *Channel) BasicQos(prefetchSize uint32, prefetchCount uint16, global bool) error {
	w := NewFieldWriter()
	if err := w.WriteLong(int64(prefetchSize)); err != nil {
		return err
	}
	if err := w.WriteShort(int(prefetchCount)); err != nil {
		return err
	}
	w.WriteBit(global)
	_, err := ch.invoke(MethodBasicQos, w.Bytes(), nil, MethodBasicQosOk)
	return err
}

// BasicConsume registers handler as the callback for deliveries on queue.
// An empty consumerTag is replaced with a client-minted "ctag-<uuid>"
// value registered before the method is sent, so handler is reachable the
// instant the broker's first delivery arrives rather than waiting on
// basic.consume-ok's round trip — grounded on
// amqpy.channel.basic_consume's self.callbacks[consumer_tag] = callback
// registration timing, per DESIGN.md's Channel entry.
func (ch *Channel) BasicConsume(queue, consumerTag string, noLocal, noAck, exclusive, noWait bool, args Table, handler ConsumerHandler) (string, error) {
	if consumerTag == "" {
		consumerTag = "ctag-" + uuid.NewString()
	}
	ch.mu.Lock()
	ch.consumers[consumerTag] = handler
	ch.mu.Unlock()

	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(queue); err != nil {
		return "", err
	}
	if err := w.WriteShortstr(consumerTag); err != nil {
		return "", err
	}
	w.WriteBit(noLocal)
	w.WriteBit(noAck)
	w.WriteBit(exclusive)
	w.WriteBit(noWait)
	if err := w.WriteTable(args); err != nil {
		return "", err
	}

	if noWait {
		return consumerTag, ch.conn.sendMethod(ch.id, MethodBasicConsume, w.Bytes(), nil)
	}
	am, err := ch.invoke(MethodBasicConsume, w.Bytes(), nil, MethodBasicConsumeOk)
	if err != nil {
		ch.mu.Lock()
		delete(ch.consumers, consumerTag)
		ch.mu.Unlock()
		return "", err
	}
	tag, err := am.Args.ReadShortstr()
	if err != nil {
		return "", err
	}
	return tag, nil
}

// BasicCancel unsubscribes a consumer.
func (ch *Channel) BasicCancel(consumerTag string, noWait bool) error {
	w := NewFieldWriter()
	if err := w.WriteShortstr(consumerTag); err != nil {
		return err
	}
	w.WriteBit(noWait)

	defer func() {
		ch.mu.Lock()
		delete(ch.consumers, consumerTag)
		ch.mu.Unlock()
	}()

	if noWait {
		return ch.conn.sendMethod(ch.id, MethodBasicCancel, w.Bytes(), nil)
	}
	_, err := ch.invoke(MethodBasicCancel, w.Bytes(), nil, MethodBasicCancelOk)
	return err
}

// BasicPublish publishes msg to exchange with routingKey. In confirm mode
// (after ConfirmSelect), this blocks until the broker acks or nacks the
// delivery tag assigned to this publish, per spec.md §4.7; OnPublisherConfirm
// listeners still fire independently, per SPEC_FULL.md §4 item 5.
func (ch *Channel) BasicPublish(exchange, routingKey string, mandatory, immediate bool, msg *Message) error {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(exchange); err != nil {
		return err
	}
	if err := w.WriteShortstr(routingKey); err != nil {
		return err
	}
	w.WriteBit(mandatory)
	w.WriteBit(immediate)

	ch.mu.Lock()
	confirmMode := ch.confirmMode
	var seqNo uint64
	var waitCh chan confirmResult
	if confirmMode {
		ch.publishSeq++
		seqNo = ch.publishSeq
		waitCh = make(chan confirmResult, 1)
		ch.confirmPending[seqNo] = waitCh
	}
	ch.mu.Unlock()

	if err := ch.conn.sendMethod(ch.id, MethodBasicPublish, w.Bytes(), msg); err != nil {
		if confirmMode {
			ch.mu.Lock()
			delete(ch.confirmPending, seqNo)
			ch.mu.Unlock()
		}
		return err
	}

	if !confirmMode {
		return nil
	}

	select {
	case res, ok := <-waitCh:
		if !ok {
			return ch.closedErr()
		}
		if res.nack {
			return &AMQPError{ReplyText: "broker nacked publish", Scope: ScopeChannel, Severity: Recoverable}
		}
		return nil
	case <-ch.doneCh:
		return ch.closedErr()
	}
}

// BasicGet fetches a single message without a consumer subscription.
// Returns ok=false if the queue was empty (basic.get-empty).
func (ch *Channel) BasicGet(queue string, noAck bool) (msg *Message, ok bool, err error) {
	w := NewFieldWriter()
	w.WriteShort(0)
	if err := w.WriteShortstr(queue); err != nil {
		return nil, false, err
	}
	w.WriteBit(noAck)
	am, err := ch.invoke(MethodBasicGet, w.Bytes(), nil, MethodBasicGetOk, MethodBasicGetEmpty)
	if err != nil {
		return nil, false, err
	}
	if am.Type == MethodBasicGetEmpty {
		return nil, false, nil
	}
	deliveryTag, err := am.Args.ReadLongLong()
	if err != nil {
		return nil, false, err
	}
	redelivered, err := am.Args.ReadBit()
	if err != nil {
		return nil, false, err
	}
	exchange, err := am.Args.ReadShortstr()
	if err != nil {
		return nil, false, err
	}
	routingKey, err := am.Args.ReadShortstr()
	if err != nil {
		return nil, false, err
	}
	if _, err := am.Args.ReadLong(); err != nil { // message-count
		return nil, false, err
	}
	m := ch.decodeMessage(am.Content)
	m.DeliveryInfo = DeliveryInfo{DeliveryTag: deliveryTag, Redelivered: redelivered, Exchange: exchange, RoutingKey: routingKey}
	return m, true, nil
}

// BasicAck acknowledges one or more deliveries.
func (ch *Channel) BasicAck(deliveryTag uint64, multiple bool) error {
	w := NewFieldWriter()
	w.WriteLongLong(deliveryTag)
	w.WriteBit(multiple)
	return ch.conn.sendMethod(ch.id, MethodBasicAck, w.Bytes(), nil)
}

// BasicReject rejects a single delivery.
func (ch *Channel) BasicReject(deliveryTag uint64, requeue bool) error {
	w := NewFieldWriter()
	w.WriteLongLong(deliveryTag)
	w.WriteBit(requeue)
	return ch.conn.sendMethod(ch.id, MethodBasicReject, w.Bytes(), nil)
}

// BasicNack rejects one or more deliveries (RabbitMQ extension), per
// SPEC_FULL.md §4 item 1.
func (ch *Channel) BasicNack(deliveryTag uint64, multiple, requeue bool) error {
	w := NewFieldWriter()
	w.WriteLongLong(deliveryTag)
	w.WriteBit(multiple)
	w.WriteBit(requeue)
	return ch.conn.sendMethod(ch.id, MethodBasicNack, w.Bytes(), nil)
}

// BasicRecover asks the broker to redeliver unacknowledged messages.
func (ch *Channel) BasicRecover(requeue bool) error {
	w := NewFieldWriter()
	w.WriteBit(requeue)
	_, err := ch.invoke(MethodBasicRecover, w.Bytes(), nil, MethodBasicRecoverOk)
	return err
}

// BasicRecoverAsync is the non-confirmed, deprecated form of BasicRecover.
func (ch *Channel) BasicRecoverAsync(requeue bool) error {
	w := NewFieldWriter()
	w.WriteBit(requeue)
	return ch.conn.sendMethod(ch.id, MethodBasicRecoverAsyn, w.Bytes(), nil)
}

// ConfirmSelect puts the channel into publisher-confirm mode.
func (ch *Channel) ConfirmSelect(noWait bool) error {
	w := NewFieldWriter()
	w.WriteBit(noWait)
	if !noWait {
		if _, err := ch.invoke(MethodConfirmSelect, w.Bytes(), nil, MethodConfirmSelectOk); err != nil {
			return err
		}
	} else if err := ch.conn.sendMethod(ch.id, MethodConfirmSelect, w.Bytes(), nil); err != nil {
		return err
	}
	ch.mu.Lock()
	ch.confirmMode = true
	ch.mu.Unlock()
	return nil
}

// TxSelect puts the channel into transactional mode.
func (ch *Channel) TxSelect() error {
	_, err := ch.invoke(MethodTxSelect, nil, nil, MethodTxSelectOk)
	if err == nil {
		ch.mu.Lock()
		ch.txMode = true
		ch.mu.Unlock()
	}
	return err
}

// TxCommit commits the current transaction.
func (ch *Channel) TxCommit() error {
	_, err := ch.invoke(MethodTxCommit, nil, nil, MethodTxCommitOk)
	return err
}

// TxRollback rolls back the current transaction.
func (ch *Channel) TxRollback() error {
	_, err := ch.invoke(MethodTxRollback, nil, nil, MethodTxRollbackOk)
	return err
}

// Flow enables or disables the broker's delivery flow to this channel.
func (ch *Channel) Flow(active bool) error {
	w := NewFieldWriter()
	w.WriteBit(active)
	_, err := ch.invoke(MethodChannelFlow, w.Bytes(), nil, MethodChannelFlowOk)
	return err
}

// Close sends channel.close and waits for channel.close-ok.
func (ch *Channel) Close(code uint16, reason string) error {
	w := NewFieldWriter()
	if err := w.WriteShort(int(code)); err != nil {
		return err
	}
	if err := w.WriteShortstr(reason); err != nil {
		return err
	}
	if err := w.WriteShort(0); err != nil {
		return err
	}
	if err := w.WriteShort(0); err != nil {
		return err
	}
	_, err := ch.invoke(MethodChannelClose, w.Bytes(), nil, MethodChannelCloseOk)
	ch.notifyClosed(err)
	ch.conn.releaseChannel(ch.id)
	return err
}
