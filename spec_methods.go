package amqpcore

// Class ids for the AMQP 0.9.1 classes this core speaks, per spec.md §6.
const (
	ClassConnection uint16 = 10
	ClassChannel    uint16 = 20
	ClassExchange   uint16 = 40
	ClassQueue      uint16 = 50
	ClassBasic      uint16 = 60
	ClassConfirm    uint16 = 85 // RabbitMQ extension
	ClassTx         uint16 = 90
)

// Method registry. Grounded on amqpy/spec.py, with Basic.GetEmpty/Basic.Ack
// corrected to their real AMQP 0.9.1 ids (72 and 80 respectively — spec.py
// has both as 80, a bug in the source; amqpy/exceptions.py's
// METHOD_NAME_MAP has the correct ids and is used here instead). Basic.Nack
// is added per SPEC_FULL.md §4 item 1.
var (
	MethodConnectionStart    = MethodType{ClassConnection, 10}
	MethodConnectionStartOk  = MethodType{ClassConnection, 11}
	MethodConnectionSecure   = MethodType{ClassConnection, 20}
	MethodConnectionSecureOk = MethodType{ClassConnection, 21}
	MethodConnectionTune     = MethodType{ClassConnection, 30}
	MethodConnectionTuneOk   = MethodType{ClassConnection, 31}
	MethodConnectionOpen     = MethodType{ClassConnection, 40}
	MethodConnectionOpenOk   = MethodType{ClassConnection, 41}
	MethodConnectionClose    = MethodType{ClassConnection, 50}
	MethodConnectionCloseOk  = MethodType{ClassConnection, 51}
	MethodConnectionBlocked  = MethodType{ClassConnection, 60}
	MethodConnectionUnblock  = MethodType{ClassConnection, 61}

	MethodChannelOpen    = MethodType{ClassChannel, 10}
	MethodChannelOpenOk  = MethodType{ClassChannel, 11}
	MethodChannelFlow    = MethodType{ClassChannel, 20}
	MethodChannelFlowOk  = MethodType{ClassChannel, 21}
	MethodChannelClose   = MethodType{ClassChannel, 40}
	MethodChannelCloseOk = MethodType{ClassChannel, 41}

	MethodExchangeDeclare   = MethodType{ClassExchange, 10}
	MethodExchangeDeclareOk = MethodType{ClassExchange, 11}
	MethodExchangeDelete    = MethodType{ClassExchange, 20}
	MethodExchangeDeleteOk  = MethodType{ClassExchange, 21}
	MethodExchangeBind      = MethodType{ClassExchange, 30}
	MethodExchangeBindOk    = MethodType{ClassExchange, 31}
	MethodExchangeUnbind    = MethodType{ClassExchange, 40}
	MethodExchangeUnbindOk  = MethodType{ClassExchange, 51}

	MethodQueueDeclare   = MethodType{ClassQueue, 10}
	MethodQueueDeclareOk = MethodType{ClassQueue, 11}
	MethodQueueBind      = MethodType{ClassQueue, 20}
	MethodQueueBindOk    = MethodType{ClassQueue, 21}
	MethodQueuePurge     = MethodType{ClassQueue, 30}
	MethodQueuePurgeOk   = MethodType{ClassQueue, 31}
	MethodQueueDelete    = MethodType{ClassQueue, 40}
	MethodQueueDeleteOk  = MethodType{ClassQueue, 41}
	MethodQueueUnbind    = MethodType{ClassQueue, 50}
	MethodQueueUnbindOk  = MethodType{ClassQueue, 51}

	MethodBasicQos         = MethodType{ClassBasic, 10}
	MethodBasicQosOk       = MethodType{ClassBasic, 11}
	MethodBasicConsume     = MethodType{ClassBasic, 20}
	MethodBasicConsumeOk   = MethodType{ClassBasic, 21}
	MethodBasicCancel      = MethodType{ClassBasic, 30}
	MethodBasicCancelOk    = MethodType{ClassBasic, 31}
	MethodBasicPublish     = MethodType{ClassBasic, 40}
	MethodBasicReturn      = MethodType{ClassBasic, 50}
	MethodBasicDeliver     = MethodType{ClassBasic, 60}
	MethodBasicGet         = MethodType{ClassBasic, 70}
	MethodBasicGetOk       = MethodType{ClassBasic, 71}
	MethodBasicGetEmpty    = MethodType{ClassBasic, 72}
	MethodBasicAck         = MethodType{ClassBasic, 80}
	MethodBasicReject      = MethodType{ClassBasic, 90}
	MethodBasicRecoverAsyn = MethodType{ClassBasic, 100}
	MethodBasicRecover     = MethodType{ClassBasic, 110}
	MethodBasicRecoverOk   = MethodType{ClassBasic, 111}
	MethodBasicNack        = MethodType{ClassBasic, 120}

	MethodConfirmSelect   = MethodType{ClassConfirm, 10}
	MethodConfirmSelectOk = MethodType{ClassConfirm, 11}

	MethodTxSelect     = MethodType{ClassTx, 10}
	MethodTxSelectOk   = MethodType{ClassTx, 11}
	MethodTxCommit     = MethodType{ClassTx, 20}
	MethodTxCommitOk   = MethodType{ClassTx, 21}
	MethodTxRollback   = MethodType{ClassTx, 30}
	MethodTxRollbackOk = MethodType{ClassTx, 31}
)

var methodNames = map[MethodType]string{
	MethodConnectionStart:    "connection.start",
	MethodConnectionStartOk:  "connection.start-ok",
	MethodConnectionSecure:   "connection.secure",
	MethodConnectionSecureOk: "connection.secure-ok",
	MethodConnectionTune:     "connection.tune",
	MethodConnectionTuneOk:   "connection.tune-ok",
	MethodConnectionOpen:     "connection.open",
	MethodConnectionOpenOk:   "connection.open-ok",
	MethodConnectionClose:    "connection.close",
	MethodConnectionCloseOk:  "connection.close-ok",
	MethodConnectionBlocked:  "connection.blocked",
	MethodConnectionUnblock:  "connection.unblocked",

	MethodChannelOpen:    "channel.open",
	MethodChannelOpenOk:  "channel.open-ok",
	MethodChannelFlow:    "channel.flow",
	MethodChannelFlowOk:  "channel.flow-ok",
	MethodChannelClose:   "channel.close",
	MethodChannelCloseOk: "channel.close-ok",

	MethodExchangeDeclare:   "exchange.declare",
	MethodExchangeDeclareOk: "exchange.declare-ok",
	MethodExchangeDelete:    "exchange.delete",
	MethodExchangeDeleteOk:  "exchange.delete-ok",
	MethodExchangeBind:      "exchange.bind",
	MethodExchangeBindOk:    "exchange.bind-ok",
	MethodExchangeUnbind:    "exchange.unbind",
	MethodExchangeUnbindOk:  "exchange.unbind-ok",

	MethodQueueDeclare:   "queue.declare",
	MethodQueueDeclareOk: "queue.declare-ok",
	MethodQueueBind:      "queue.bind",
	MethodQueueBindOk:    "queue.bind-ok",
	MethodQueuePurge:     "queue.purge",
	MethodQueuePurgeOk:   "queue.purge-ok",
	MethodQueueDelete:    "queue.delete",
	MethodQueueDeleteOk:  "queue.delete-ok",
	MethodQueueUnbind:    "queue.unbind",
	MethodQueueUnbindOk:  "queue.unbind-ok",

	MethodBasicQos:         "basic.qos",
	MethodBasicQosOk:       "basic.qos-ok",
	MethodBasicConsume:     "basic.consume",
	MethodBasicConsumeOk:   "basic.consume-ok",
	MethodBasicCancel:      "basic.cancel",
	MethodBasicCancelOk:    "basic.cancel-ok",
	MethodBasicPublish:     "basic.publish",
	MethodBasicReturn:      "basic.return",
	MethodBasicDeliver:     "basic.deliver",
	MethodBasicGet:         "basic.get",
	MethodBasicGetOk:       "basic.get-ok",
	MethodBasicGetEmpty:    "basic.get-empty",
	MethodBasicAck:         "basic.ack",
	MethodBasicReject:      "basic.reject",
	MethodBasicRecoverAsyn: "basic.recover-async",
	MethodBasicRecover:     "basic.recover",
	MethodBasicRecoverOk:   "basic.recover-ok",
	MethodBasicNack:        "basic.nack",

	MethodConfirmSelect:   "confirm.select",
	MethodConfirmSelectOk: "confirm.select-ok",

	MethodTxSelect:     "tx.select",
	MethodTxSelectOk:   "tx.select-ok",
	MethodTxCommit:     "tx.commit",
	MethodTxCommitOk:   "tx.commit-ok",
	MethodTxRollback:   "tx.rollback",
	MethodTxRollbackOk: "tx.rollback-ok",
}

// contentMethods are methods that carry a Message body/properties,
// sent as METHOD + HEADER (+ BODY...) frames. Grounded on
// amqpy/method_framing.py's _CONTENT_METHODS plus Basic.Publish, which
// amqpy handles symmetrically on the write side (method_framing.py's
// MethodWriter.write_method checks method.content, not a fixed list).
var contentMethods = map[MethodType]bool{
	MethodBasicReturn:  true,
	MethodBasicDeliver: true,
	MethodBasicGetOk:   true,
	MethodBasicPublish: true,
}

// immediateMethods lists the methods dispatched to their target channel
// without going through its RPC reply slot, per spec.md §4.7 / amqpy's
// IMMEDIATE_METHODS. The map itself is not consulted at dispatch time;
// Channel.deliver's switch handles basic.return directly.
var immediateMethods = map[MethodType]bool{
	MethodBasicReturn: true,
}
