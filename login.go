package amqpcore

// LoginCredentials builds the SASL response bytes for connection.start-ok,
// given the mechanism the caller selected from the server's advertised
// list. Grounded on amqpy/login.py (login_response_amqplain /
// login_response_plain) and spec.md §6's RFC 4616 PLAIN layout.
type LoginCredentials interface {
	// Mechanism is the SASL mechanism name advertised in start-ok.
	Mechanism() string
	// Response builds the start-ok response field bytes.
	Response() ([]byte, error)
}

// PlainCredentials implements the SASL PLAIN mechanism: a single longstr
// of the form "\x00" + username + "\x00" + password, per RFC 4616.
type PlainCredentials struct {
	Username string
	Password string
}

func (PlainCredentials) Mechanism() string { return "PLAIN" }

func (c PlainCredentials) Response() ([]byte, error) {
	buf := make([]byte, 0, len(c.Username)+len(c.Password)+2)
	buf = append(buf, 0)
	buf = append(buf, c.Username...)
	buf = append(buf, 0)
	buf = append(buf, c.Password...)
	return buf, nil
}

// AMQPLAINCredentials implements RabbitMQ's AMQPLAIN mechanism: a field
// table with "LOGIN" and "PASSWORD" longstr entries, serialized without
// its own length prefix (the length prefix amqpy.login.login_response_amqplain
// adds is for the table itself, not an extra longstr wrapper — see
// amqpy/login.py).
type AMQPLAINCredentials struct {
	Username string
	Password string
}

func (AMQPLAINCredentials) Mechanism() string { return "AMQPLAIN" }

func (c AMQPLAINCredentials) Response() ([]byte, error) {
	w := NewFieldWriter()
	if err := w.WriteShortstr("LOGIN"); err != nil {
		return nil, err
	}
	if err := w.WriteItem(c.Username); err != nil {
		return nil, err
	}
	if err := w.WriteShortstr("PASSWORD"); err != nil {
		return nil, err
	}
	if err := w.WriteItem(c.Password); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
