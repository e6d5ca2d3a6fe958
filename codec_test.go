package amqpcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldWriterReaderPrimitivesRoundTrip(t *testing.T) {
	w := NewFieldWriter()
	require.NoError(t, w.WriteOctet(200))
	require.NoError(t, w.WriteShort(40000))
	require.NoError(t, w.WriteLong(4000000000))
	require.NoError(t, w.WriteLongLong(12345678901234))
	require.NoError(t, w.WriteShortstr("hello"))
	require.NoError(t, w.WriteLongstr("a longer string value"))
	w.WriteBit(true)
	w.WriteBit(false)
	w.WriteBit(true)

	r := NewFieldReader(w.Bytes())
	octet, err := r.ReadOctet()
	require.NoError(t, err)
	assert.EqualValues(t, 200, octet)

	short, err := r.ReadShort()
	require.NoError(t, err)
	assert.EqualValues(t, 40000, short)

	long, err := r.ReadLong()
	require.NoError(t, err)
	assert.EqualValues(t, 4000000000, long)

	longlong, err := r.ReadLongLong()
	require.NoError(t, err)
	assert.EqualValues(t, 12345678901234, longlong)

	ss, err := r.ReadShortstr()
	require.NoError(t, err)
	assert.Equal(t, "hello", ss)

	ls, err := r.ReadLongstr()
	require.NoError(t, err)
	assert.Equal(t, "a longer string value", ls)

	b1, err := r.ReadBit()
	require.NoError(t, err)
	assert.True(t, b1)
	b2, err := r.ReadBit()
	require.NoError(t, err)
	assert.False(t, b2)
	b3, err := r.ReadBit()
	require.NoError(t, err)
	assert.True(t, b3)
}

func TestFieldWriterBitPackingConsumesOnlyOneOctetFor8Bits(t *testing.T) {
	w := NewFieldWriter()
	for i := 0; i < 8; i++ {
		w.WriteBit(i%2 == 0)
	}
	require.NoError(t, w.WriteOctet(7))
	buf := w.Bytes()
	require.Len(t, buf, 2)
	assert.EqualValues(t, 7, buf[1])
}

func TestFieldTableRoundTrip(t *testing.T) {
	table := Table{
		"str":   "value",
		"num":   int32(42),
		"flag":  true,
		"nested": Table{"inner": "x"},
	}
	w := NewFieldWriter()
	require.NoError(t, w.WriteTable(table))

	r := NewFieldReader(w.Bytes())
	decoded, err := r.ReadTable()
	require.NoError(t, err)
	assert.Equal(t, "value", decoded["str"])
	assert.EqualValues(t, 42, decoded["num"])
	assert.Equal(t, true, decoded["flag"])
	nested, ok := decoded["nested"].(Table)
	require.True(t, ok)
	assert.Equal(t, "x", nested["inner"])
}

func TestFieldArrayRoundTrip(t *testing.T) {
	arr := []interface{}{"a", int32(1), true}
	w := NewFieldWriter()
	require.NoError(t, w.WriteArray(arr))

	r := NewFieldReader(w.Bytes())
	decoded, err := r.ReadArray()
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, "a", decoded[0])
	assert.EqualValues(t, 1, decoded[1])
	assert.Equal(t, true, decoded[2])
}

func TestWriteShortstrOverflowIsFrameSyntaxError(t *testing.T) {
	w := NewFieldWriter()
	big := make([]byte, 256)
	err := w.WriteShortstr(string(big))
	require.Error(t, err)
	var fse *FrameSyntaxError
	require.ErrorAs(t, err, &fse)
}

func TestWriteOctetOutOfRangeIsFrameSyntaxError(t *testing.T) {
	w := NewFieldWriter()
	err := w.WriteOctet(256)
	require.Error(t, err)
	var fse *FrameSyntaxError
	require.ErrorAs(t, err, &fse)
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	w := NewFieldWriter()
	require.NoError(t, w.WriteTimestamp(now))
	r := NewFieldReader(w.Bytes())
	decoded, err := r.ReadTimestamp()
	require.NoError(t, err)
	assert.Equal(t, now, decoded)
}

func TestReadItemUnknownTagIsFrameSyntaxError(t *testing.T) {
	r := NewFieldReader([]byte{'?'})
	_, err := r.ReadItem()
	require.Error(t, err)
	var fse *FrameSyntaxError
	require.ErrorAs(t, err, &fse)
}
