package amqpcore

import (
	"strings"
	"time"
)

// Properties holds the 14 basic-class content properties, each carried
// with a presence flag in the header frame's 16-bit flag word. Grounded on
// amqpy/message.py's GenericContent.PROPERTIES list and
// load_properties/serialize_properties flag-bit loop, rendered as an
// explicit struct rather than dynamic attribute fallback per spec.md §9.
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       time.Time
	Type            string
	UserID          string
	AppID           string
	ClusterID       string

	hasContentType     bool
	hasContentEncoding bool
	hasHeaders         bool
	hasDeliveryMode    bool
	hasPriority        bool
	hasCorrelationID   bool
	hasReplyTo         bool
	hasExpiration      bool
	hasMessageID       bool
	hasTimestamp       bool
	hasType            bool
	hasUserID          bool
	hasAppID           bool
	hasClusterID       bool
}

// property flag-word bits, MSB first, per amqpy/message.py's order.
const (
	flagContentType     = 1 << 15
	flagContentEncoding = 1 << 14
	flagHeaders         = 1 << 13
	flagDeliveryMode     = 1 << 12
	flagPriority        = 1 << 11
	flagCorrelationID   = 1 << 10
	flagReplyTo         = 1 << 9
	flagExpiration      = 1 << 8
	flagMessageID       = 1 << 7
	flagTimestamp       = 1 << 6
	flagType            = 1 << 5
	flagUserID          = 1 << 4
	flagAppID           = 1 << 3
	flagClusterID       = 1 << 2
)

// SetContentType sets ContentType and marks it present in the flag word.
func (p *Properties) SetContentType(v string) { p.ContentType = v; p.hasContentType = true }

// SetContentEncoding sets ContentEncoding and marks it present.
func (p *Properties) SetContentEncoding(v string) { p.ContentEncoding = v; p.hasContentEncoding = true }

// SetHeaders sets Headers and marks it present.
func (p *Properties) SetHeaders(v Table) { p.Headers = v; p.hasHeaders = true }

// SetDeliveryMode sets DeliveryMode and marks it present.
func (p *Properties) SetDeliveryMode(v uint8) { p.DeliveryMode = v; p.hasDeliveryMode = true }

// SetPriority sets Priority and marks it present.
func (p *Properties) SetPriority(v uint8) { p.Priority = v; p.hasPriority = true }

// SetCorrelationID sets CorrelationID and marks it present.
func (p *Properties) SetCorrelationID(v string) { p.CorrelationID = v; p.hasCorrelationID = true }

// SetReplyTo sets ReplyTo and marks it present.
func (p *Properties) SetReplyTo(v string) { p.ReplyTo = v; p.hasReplyTo = true }

// SetExpiration sets Expiration and marks it present.
func (p *Properties) SetExpiration(v string) { p.Expiration = v; p.hasExpiration = true }

// SetMessageID sets MessageID and marks it present.
func (p *Properties) SetMessageID(v string) { p.MessageID = v; p.hasMessageID = true }

// SetTimestamp sets Timestamp and marks it present.
func (p *Properties) SetTimestamp(v time.Time) { p.Timestamp = v; p.hasTimestamp = true }

// SetType sets Type and marks it present.
func (p *Properties) SetType(v string) { p.Type = v; p.hasType = true }

// SetUserID sets UserID and marks it present.
func (p *Properties) SetUserID(v string) { p.UserID = v; p.hasUserID = true }

// SetAppID sets AppID and marks it present.
func (p *Properties) SetAppID(v string) { p.AppID = v; p.hasAppID = true }

// SetClusterID sets ClusterID and marks it present.
func (p *Properties) SetClusterID(v string) { p.ClusterID = v; p.hasClusterID = true }

// EncodeProperties serializes the property flag word followed by each
// present property in PROPERTIES order. Grounded on
// amqpy/message.py:GenericContent.serialize_properties.
func (p *Properties) EncodeProperties() ([]byte, error) {
	w := NewFieldWriter()
	var flags uint16
	if p.hasContentType {
		flags |= flagContentType
	}
	if p.hasContentEncoding {
		flags |= flagContentEncoding
	}
	if p.hasHeaders {
		flags |= flagHeaders
	}
	if p.hasDeliveryMode {
		flags |= flagDeliveryMode
	}
	if p.hasPriority {
		flags |= flagPriority
	}
	if p.hasCorrelationID {
		flags |= flagCorrelationID
	}
	if p.hasReplyTo {
		flags |= flagReplyTo
	}
	if p.hasExpiration {
		flags |= flagExpiration
	}
	if p.hasMessageID {
		flags |= flagMessageID
	}
	if p.hasTimestamp {
		flags |= flagTimestamp
	}
	if p.hasType {
		flags |= flagType
	}
	if p.hasUserID {
		flags |= flagUserID
	}
	if p.hasAppID {
		flags |= flagAppID
	}
	if p.hasClusterID {
		flags |= flagClusterID
	}
	if err := w.WriteShort(int(flags)); err != nil {
		return nil, err
	}
	if p.hasContentType {
		if err := w.WriteShortstr(p.ContentType); err != nil {
			return nil, err
		}
	}
	if p.hasContentEncoding {
		if err := w.WriteShortstr(p.ContentEncoding); err != nil {
			return nil, err
		}
	}
	if p.hasHeaders {
		if err := w.WriteTable(p.Headers); err != nil {
			return nil, err
		}
	}
	if p.hasDeliveryMode {
		if err := w.WriteOctet(int(p.DeliveryMode)); err != nil {
			return nil, err
		}
	}
	if p.hasPriority {
		if err := w.WriteOctet(int(p.Priority)); err != nil {
			return nil, err
		}
	}
	if p.hasCorrelationID {
		if err := w.WriteShortstr(p.CorrelationID); err != nil {
			return nil, err
		}
	}
	if p.hasReplyTo {
		if err := w.WriteShortstr(p.ReplyTo); err != nil {
			return nil, err
		}
	}
	if p.hasExpiration {
		if err := w.WriteShortstr(p.Expiration); err != nil {
			return nil, err
		}
	}
	if p.hasMessageID {
		if err := w.WriteShortstr(p.MessageID); err != nil {
			return nil, err
		}
	}
	if p.hasTimestamp {
		if err := w.WriteTimestamp(p.Timestamp); err != nil {
			return nil, err
		}
	}
	if p.hasType {
		if err := w.WriteShortstr(p.Type); err != nil {
			return nil, err
		}
	}
	if p.hasUserID {
		if err := w.WriteShortstr(p.UserID); err != nil {
			return nil, err
		}
	}
	if p.hasAppID {
		if err := w.WriteShortstr(p.AppID); err != nil {
			return nil, err
		}
	}
	if p.hasClusterID {
		if err := w.WriteShortstr(p.ClusterID); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// DecodeProperties parses a header frame's property flag word and payload
// into a Properties value. Grounded on
// amqpy/message.py:GenericContent.load_properties.
func DecodeProperties(buf []byte) (*Properties, error) {
	r := NewFieldReader(buf)
	flags, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	p := &Properties{}
	if flags&flagContentType != 0 {
		if p.ContentType, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasContentType = true
	}
	if flags&flagContentEncoding != 0 {
		if p.ContentEncoding, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasContentEncoding = true
	}
	if flags&flagHeaders != 0 {
		if p.Headers, err = r.ReadTable(); err != nil {
			return nil, err
		}
		p.hasHeaders = true
	}
	if flags&flagDeliveryMode != 0 {
		v, err := r.ReadOctet()
		if err != nil {
			return nil, err
		}
		p.DeliveryMode = v
		p.hasDeliveryMode = true
	}
	if flags&flagPriority != 0 {
		v, err := r.ReadOctet()
		if err != nil {
			return nil, err
		}
		p.Priority = v
		p.hasPriority = true
	}
	if flags&flagCorrelationID != 0 {
		if p.CorrelationID, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasCorrelationID = true
	}
	if flags&flagReplyTo != 0 {
		if p.ReplyTo, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasReplyTo = true
	}
	if flags&flagExpiration != 0 {
		if p.Expiration, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasExpiration = true
	}
	if flags&flagMessageID != 0 {
		if p.MessageID, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasMessageID = true
	}
	if flags&flagTimestamp != 0 {
		if p.Timestamp, err = r.ReadTimestamp(); err != nil {
			return nil, err
		}
		p.hasTimestamp = true
	}
	if flags&flagType != 0 {
		if p.Type, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasType = true
	}
	if flags&flagUserID != 0 {
		if p.UserID, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasUserID = true
	}
	if flags&flagAppID != 0 {
		if p.AppID, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasAppID = true
	}
	if flags&flagClusterID != 0 {
		if p.ClusterID, err = r.ReadShortstr(); err != nil {
			return nil, err
		}
		p.hasClusterID = true
	}
	return p, nil
}

// Message is a complete AMQP content: properties plus body, paired with
// delivery metadata filled in by Channel on basic.deliver/get-ok. Grounded
// on amqpy/message.py:Message.
type Message struct {
	Properties
	Body []byte

	// DeliveryInfo is populated by the Channel for inbound deliveries
	// (basic.deliver / basic.get-ok); zero value for outbound publishes.
	DeliveryInfo DeliveryInfo

	// DecodedText holds Body decoded as text, populated by the Channel
	// when AutoDecode is enabled and ContentEncoding names a recognized
	// text encoding; empty otherwise. Body itself is always left as the
	// raw bytes the broker sent. Grounded on
	// amqpy/abstract_channel.py's auto_decode handling, per
	// SPEC_FULL.md §4 item 4.
	DecodedText string
}

// DeliveryInfo carries the routing and delivery-tag metadata that
// basic.deliver/basic.get-ok/basic.return attach to a Message, kept
// separate from Properties since it isn't part of the content header.
// Grounded on amqpy/spec.py's basic_return_t namedtuple and the fields
// amqpy.channel._basic_deliver/_basic_get_ok attach to the Message.
type DeliveryInfo struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

// BasicReturn mirrors amqpy/spec.py's basic_return_t: the arguments
// carried by a basic.return method, describing why a published message
// could not be routed.
type BasicReturn struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

// QueueDeclareOk mirrors amqpy/spec.py's queue_declare_ok_t.
type QueueDeclareOk struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

// decodableTextEncodings are the ContentEncoding values AutoDecode treats
// as safe to interpret as UTF-8 text, per SPEC_FULL.md §4 item 4.
var decodableTextEncodings = map[string]bool{
	"":        true,
	"utf-8":   true,
	"utf8":    true,
	"ascii":   true,
}

// autoDecodedBody best-effort decodes Body as text when ContentEncoding
// names a recognized text encoding, returning ok=false on any ambiguity.
// Grounded on amqpy/abstract_channel.py:AbstractChannel._handle_basic_method
// using auto_decode to call msg.body.decode(msg.properties.content_encoding).
func (m *Message) autoDecodedBody() (text string, ok bool) {
	enc := strings.ToLower(m.ContentEncoding)
	if !decodableTextEncodings[enc] {
		return "", false
	}
	return string(m.Body), true
}
