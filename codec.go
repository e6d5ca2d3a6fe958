package amqpcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// FieldReader reads higher-level AMQP types from a byte stream, including
// the field-table codec. Grounded on amqpy/serialization.py:AMQPReader,
// method for method: bit reads pull 8 at a time and consume LSB-first, any
// non-bit read resets the pending bit state, tables/arrays are
// u32-length-prefixed.
type FieldReader struct {
	r        *bytes.Reader
	bitBuf   byte
	bitCount int
}

// NewFieldReader wraps buf for decoding.
func NewFieldReader(buf []byte) *FieldReader {
	return &FieldReader{r: bytes.NewReader(buf)}
}

func (r *FieldReader) resetBits() {
	r.bitBuf = 0
	r.bitCount = 0
}

// Remaining reports how many bytes are left unread.
func (r *FieldReader) Remaining() int { return r.r.Len() }

func (r *FieldReader) readN(n int) ([]byte, error) {
	r.resetBits()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("amqp: short read (wanted %d bytes): %w", n, err)
	}
	return buf, nil
}

// ReadBit reads a single boolean value, pulling a fresh octet every 8 bits.
func (r *FieldReader) ReadBit() (bool, error) {
	if r.bitCount == 0 {
		b, err := r.readOctetRaw()
		if err != nil {
			return false, err
		}
		r.bitBuf = b
		r.bitCount = 8
	}
	result := r.bitBuf&1 == 1
	r.bitBuf >>= 1
	r.bitCount--
	return result, nil
}

func (r *FieldReader) readOctetRaw() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, fmt.Errorf("amqp: short read (wanted 1 byte): %w", err)
	}
	return b[0], nil
}

// ReadOctet reads one byte as an unsigned integer.
func (r *FieldReader) ReadOctet() (uint8, error) {
	r.resetBits()
	return r.readOctetRaw()
}

// ReadShort reads a big-endian unsigned 16-bit integer.
func (r *FieldReader) ReadShort() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadLong reads a big-endian unsigned 32-bit integer.
func (r *FieldReader) ReadLong() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadLongLong reads a big-endian unsigned 64-bit integer.
func (r *FieldReader) ReadLongLong() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadShortInt reads a big-endian signed 16-bit integer ('U' field type).
func (r *FieldReader) ReadShortInt() (int16, error) {
	v, err := r.ReadShort()
	return int16(v), err
}

// ReadLongInt reads a big-endian signed 32-bit integer ('I' field type).
func (r *FieldReader) ReadLongInt() (int32, error) {
	v, err := r.ReadLong()
	return int32(v), err
}

// ReadLongLongInt reads a big-endian signed 64-bit integer ('L' field type).
func (r *FieldReader) ReadLongLongInt() (int64, error) {
	v, err := r.ReadLongLong()
	return int64(v), err
}

// ReadFloat reads a big-endian IEEE-754 32-bit float.
func (r *FieldReader) ReadFloat() (float32, error) {
	v, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadDouble reads a big-endian IEEE-754 64-bit double.
func (r *FieldReader) ReadDouble() (float64, error) {
	v, err := r.ReadLongLong()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadShortstr reads a string length-prefixed by a single byte (<=255).
func (r *FieldReader) ReadShortstr() (string, error) {
	slen, err := r.ReadOctet()
	if err != nil {
		return "", err
	}
	b, err := r.readN(int(slen))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLongstr reads a string length-prefixed by a big-endian u32.
func (r *FieldReader) ReadLongstr() (string, error) {
	slen, err := r.ReadLong()
	if err != nil {
		return "", err
	}
	b, err := r.readN(int(slen))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLongstrBytes is ReadLongstr without the string conversion, used for
// message bodies and opaque SASL responses.
func (r *FieldReader) ReadLongstrBytes() ([]byte, error) {
	slen, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return r.readN(int(slen))
}

// ReadTimestamp reads a 64-bit signed count of seconds since the Unix
// epoch and returns it as a UTC time.Time.
func (r *FieldReader) ReadTimestamp() (time.Time, error) {
	v, err := r.ReadLongLongInt()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

// Decimal is the AMQP decimal field type: an unscaled integer and a scale
// (unscaled / 10^scale).
type Decimal struct {
	Scale    uint8
	Unscaled int32
}

// ReadDecimal reads a field-table decimal value.
func (r *FieldReader) ReadDecimal() (Decimal, error) {
	scale, err := r.ReadOctet()
	if err != nil {
		return Decimal{}, err
	}
	unscaled, err := r.ReadLongInt()
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Scale: scale, Unscaled: unscaled}, nil
}

// Table is an AMQP field table: string keys to tagged values. Values may
// be string, []byte, bool, int8, uint8, int16, uint16, int32, uint32,
// int64, uint64, float32, float64, Decimal, time.Time, Table, or []any.
type Table map[string]interface{}

// ReadTable reads a u32-length-prefixed field table.
func (r *FieldReader) ReadTable() (Table, error) {
	tlen, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	buf, err := r.readN(int(tlen))
	if err != nil {
		return nil, err
	}
	sub := NewFieldReader(buf)
	result := Table{}
	for sub.Remaining() > 0 {
		name, err := sub.ReadShortstr()
		if err != nil {
			return nil, err
		}
		val, err := sub.ReadItem()
		if err != nil {
			return nil, err
		}
		result[name] = val
	}
	return result, nil
}

// ReadArray reads a u32-length-prefixed field array.
func (r *FieldReader) ReadArray() ([]interface{}, error) {
	alen, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	buf, err := r.readN(int(alen))
	if err != nil {
		return nil, err
	}
	sub := NewFieldReader(buf)
	result := []interface{}{}
	for sub.Remaining() > 0 {
		val, err := sub.ReadItem()
		if err != nil {
			return nil, err
		}
		result = append(result, val)
	}
	return result, nil
}

// ReadItem reads one tagged field-table value. Grounded on
// amqpy/serialization.py:AMQPReader.read_item.
func (r *FieldReader) ReadItem() (interface{}, error) {
	tag, err := r.ReadOctet()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 'S':
		return r.ReadLongstr()
	case 's':
		return r.ReadShortstr()
	case 'b':
		v, err := r.ReadOctet()
		return int8(v), err
	case 'B':
		return r.ReadOctet()
	case 'U':
		return r.ReadShortInt()
	case 'u':
		return r.ReadShort()
	case 'I':
		return r.ReadLongInt()
	case 'i':
		return r.ReadLong()
	case 'L':
		return r.ReadLongLongInt()
	case 'l':
		return r.ReadLongLong()
	case 'f':
		return r.ReadFloat()
	case 'd':
		return r.ReadDouble()
	case 'D':
		return r.ReadDecimal()
	case 'F':
		return r.ReadTable()
	case 'A':
		return r.ReadArray()
	case 't':
		return r.ReadBit()
	case 'T':
		return r.ReadTimestamp()
	case 'V':
		return nil, nil
	default:
		return nil, &FrameSyntaxError{Msg: fmt.Sprintf("unknown field-table type tag %q (0x%02x)", tag, tag)}
	}
}

// FieldWriter writes higher-level AMQP types to a byte buffer. Grounded on
// amqpy/serialization.py:AMQPWriter. Consecutive bits are packed into a
// byte; any non-bit write flushes the pending bit byte first.
type FieldWriter struct {
	buf      bytes.Buffer
	bits     []byte
	bitShift int
}

// NewFieldWriter returns an empty FieldWriter.
func NewFieldWriter() *FieldWriter {
	return &FieldWriter{}
}

func (w *FieldWriter) flushBits() {
	if len(w.bits) > 0 {
		w.buf.Write(w.bits)
		w.bits = nil
		w.bitShift = 0
	}
}

// Bytes returns the encoded buffer.
func (w *FieldWriter) Bytes() []byte {
	w.flushBits()
	return w.buf.Bytes()
}

// Write appends raw bytes, flushing any pending bits first.
func (w *FieldWriter) Write(b []byte) {
	w.flushBits()
	w.buf.Write(b)
}

// WriteBit packs a boolean LSB-first into the pending bit byte.
func (w *FieldWriter) WriteBit(b bool) {
	if w.bitShift == 0 {
		w.bits = append(w.bits, 0)
	}
	if b {
		w.bits[len(w.bits)-1] |= 1 << uint(w.bitShift)
	}
	w.bitShift = (w.bitShift + 1) % 8
}

// WriteOctet writes n as an unsigned 8-bit value; out-of-range n is a
// FrameSyntaxError.
func (w *FieldWriter) WriteOctet(n int) error {
	if n < 0 || n > 255 {
		return &FrameSyntaxError{Msg: fmt.Sprintf("octet %d out of range 0..255", n)}
	}
	w.flushBits()
	w.buf.WriteByte(byte(n))
	return nil
}

// WriteShort writes n as an unsigned 16-bit value.
func (w *FieldWriter) WriteShort(n int) error {
	if n < 0 || n > 65535 {
		return &FrameSyntaxError{Msg: fmt.Sprintf("short %d out of range 0..65535", n)}
	}
	w.flushBits()
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(n))
	w.buf.Write(b[:])
	return nil
}

// WriteLong writes n as an unsigned 32-bit value.
func (w *FieldWriter) WriteLong(n int64) error {
	if n < 0 || n > 4294967295 {
		return &FrameSyntaxError{Msg: fmt.Sprintf("long %d out of range 0..2^32-1", n)}
	}
	w.flushBits()
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	w.buf.Write(b[:])
	return nil
}

// WriteLongLong writes n as an unsigned 64-bit value.
func (w *FieldWriter) WriteLongLong(n uint64) error {
	w.flushBits()
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	w.buf.Write(b[:])
	return nil
}

// WriteShortstr writes s length-prefixed by one byte; s longer than 255
// bytes (after UTF-8 encoding) is a FrameSyntaxError, caught at encode time
// before any frame is sent, per spec.md §7.
func (w *FieldWriter) WriteShortstr(s string) error {
	w.flushBits()
	b := []byte(s)
	if len(b) > 255 {
		return &FrameSyntaxError{Msg: fmt.Sprintf("shortstr overflow (%d > 255 bytes)", len(b))}
	}
	if err := w.WriteOctet(len(b)); err != nil {
		return err
	}
	w.buf.Write(b)
	return nil
}

// WriteLongstr writes s length-prefixed by a big-endian u32.
func (w *FieldWriter) WriteLongstr(s string) error {
	return w.WriteLongstrBytes([]byte(s))
}

// WriteLongstrBytes is WriteLongstr taking raw bytes, used for message
// bodies and opaque SASL responses.
func (w *FieldWriter) WriteLongstrBytes(b []byte) error {
	w.flushBits()
	if err := w.WriteLong(int64(len(b))); err != nil {
		return err
	}
	w.buf.Write(b)
	return nil
}

// WriteTimestamp writes t as a big-endian signed 64-bit count of seconds
// since the Unix epoch.
func (w *FieldWriter) WriteTimestamp(t time.Time) error {
	w.flushBits()
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.Unix()))
	w.buf.Write(b[:])
	return nil
}

// WriteDecimal writes a field-table decimal value.
func (w *FieldWriter) WriteDecimal(d Decimal) error {
	w.Write([]byte{'D'})
	if err := w.WriteOctet(int(d.Scale)); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(d.Unscaled))
	w.buf.Write(b[:])
	return nil
}

// WriteTable writes a field table: every key is written as a shortstr,
// every value as a tagged item. Unknown value types are a FrameSyntaxError.
func (w *FieldWriter) WriteTable(t Table) error {
	w.flushBits()
	sub := NewFieldWriter()
	for k, v := range t {
		if err := sub.WriteShortstr(k); err != nil {
			return err
		}
		if err := sub.WriteItem(v); err != nil {
			return fmt.Errorf("amqp: table key %q: %w", k, err)
		}
	}
	return w.WriteLongstrBytes(sub.Bytes())
}

// WriteArray writes a field array: every element as a tagged item.
func (w *FieldWriter) WriteArray(a []interface{}) error {
	w.flushBits()
	sub := NewFieldWriter()
	for _, v := range a {
		if err := sub.WriteItem(v); err != nil {
			return err
		}
	}
	return w.WriteLongstrBytes(sub.Bytes())
}

// WriteItem writes one tagged field-table value, dispatching on the Go
// type of v. Grounded on amqpy/serialization.py:AMQPWriter.write_item.
func (w *FieldWriter) WriteItem(v interface{}) error {
	switch val := v.(type) {
	case nil:
		w.Write([]byte{'V'})
		return nil
	case string:
		w.Write([]byte{'S'})
		return w.WriteLongstr(val)
	case []byte:
		w.Write([]byte{'S'})
		return w.WriteLongstrBytes(val)
	case bool:
		w.Write([]byte{'t'})
		b := byte(0)
		if val {
			b = 1
		}
		w.buf.WriteByte(b)
		return nil
	case int8:
		w.Write([]byte{'b'})
		w.buf.WriteByte(byte(val))
		return nil
	case uint8:
		w.Write([]byte{'B'})
		w.buf.WriteByte(val)
		return nil
	case int16:
		w.Write([]byte{'U'})
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(val))
		w.buf.Write(b[:])
		return nil
	case uint16:
		w.Write([]byte{'u'})
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], val)
		w.buf.Write(b[:])
		return nil
	case int32:
		w.Write([]byte{'I'})
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(val))
		w.buf.Write(b[:])
		return nil
	case uint32:
		w.Write([]byte{'i'})
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], val)
		w.buf.Write(b[:])
		return nil
	case int:
		w.Write([]byte{'I'})
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(val)))
		w.buf.Write(b[:])
		return nil
	case int64:
		w.Write([]byte{'L'})
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(val))
		w.buf.Write(b[:])
		return nil
	case uint64:
		w.Write([]byte{'l'})
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], val)
		w.buf.Write(b[:])
		return nil
	case float32:
		w.Write([]byte{'f'})
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(val))
		w.buf.Write(b[:])
		return nil
	case float64:
		w.Write([]byte{'d'})
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(val))
		w.buf.Write(b[:])
		return nil
	case Decimal:
		return w.WriteDecimal(val)
	case time.Time:
		w.Write([]byte{'T'})
		return w.WriteTimestamp(val)
	case Table:
		w.Write([]byte{'F'})
		return w.WriteTable(val)
	case map[string]interface{}:
		w.Write([]byte{'F'})
		return w.WriteTable(Table(val))
	case []interface{}:
		w.Write([]byte{'A'})
		return w.WriteArray(val)
	default:
		return &FrameSyntaxError{Msg: fmt.Sprintf("field-table type %T not handled", v)}
	}
}
