package tcpkit

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketStreamWriteReadRoundTrip(t *testing.T) {
	// given
	out := NewPacketStream()

	// when
	assert.Nil(t, out.WriteUint8(7), "WriteUint8 should succeed")
	assert.Nil(t, out.WriteBool(true), "WriteBool should succeed")
	assert.Nil(t, out.WriteInt32(-42), "WriteInt32 should succeed")
	assert.Nil(t, out.WriteFloat64(3.14), "WriteFloat64 should succeed")
	assert.Nil(t, out.WriteString("hello"), "WriteString should succeed")

	payload := out.Buffer()[lengthPrefixSize:]
	in := WrapPacketStream(payload)

	// then
	u8, err := in.ReadUint8()
	assert.Nil(t, err, "ReadUint8 should succeed")
	assert.Equal(t, uint8(7), u8, "uint8 should round-trip")

	b, err := in.ReadBool()
	assert.Nil(t, err, "ReadBool should succeed")
	assert.True(t, b, "bool should round-trip")

	i32, err := in.ReadInt32()
	assert.Nil(t, err, "ReadInt32 should succeed")
	assert.Equal(t, int32(-42), i32, "int32 should round-trip")

	f64, err := in.ReadFloat64()
	assert.Nil(t, err, "ReadFloat64 should succeed")
	assert.Equal(t, 3.14, f64, "float64 should round-trip")

	str, err := in.ReadString()
	assert.Nil(t, err, "ReadString should succeed")
	assert.Equal(t, "hello", str, "string should round-trip")
}

func TestPacketStreamBufferPrependsLengthPrefixOnce(t *testing.T) {
	// given
	out := NewPacketStream()
	_ = out.WriteString("abc")

	// when
	first := out.Buffer()
	payloadLen := uint32(len(first) - lengthPrefixSize)
	_ = out.WriteUint8(9) // mutating after Buffer() was observed must not retroactively change the header

	// then
	second := out.Buffer()
	assert.Equal(t, payloadLen, binary.LittleEndian.Uint32(second[:lengthPrefixSize]), "header is fixed at first observation")
	assert.True(t, len(second) > len(first), "buffer can still grow after the header is written")
}

func TestPacketStreamReadPastEndFailsWithEndOfStream(t *testing.T) {
	// given
	in := WrapPacketStream([]byte{0x01})

	// when
	_, err := in.ReadUint32()

	// then
	assert.ErrorIs(t, err, ErrEndOfStream, "reading past the end should fail with endOfStream")
}

func TestPacketStreamWriteOnReadableStreamFailsWithInvalidOperation(t *testing.T) {
	// given
	in := WrapPacketStream([]byte("payload"))

	// when
	err := in.WriteUint8(1)

	// then
	assert.ErrorIs(t, err, ErrInvalidOperation, "writing to a readable stream should fail")
}

func TestPacketStreamReadOnWritableStreamFailsWithInvalidOperation(t *testing.T) {
	// given
	out := NewPacketStream()

	// when
	_, err := out.ReadUint8()

	// then
	assert.ErrorIs(t, err, ErrInvalidOperation, "reading from a write-only stream should fail")
}

func TestPacketStreamArrayRoundTrip(t *testing.T) {
	// given
	out := NewPacketStream()
	values := []int32{1, -2, 3}

	// when
	err := WriteArray(out, values, (*PacketStream).WriteInt32)
	assert.Nil(t, err, "WriteArray should succeed")

	in := WrapPacketStream(out.Buffer()[lengthPrefixSize:])
	read, err := ReadArray(in, (*PacketStream).ReadInt32)

	// then
	assert.Nil(t, err, "ReadArray should succeed")
	assert.Equal(t, values, read, "array should round-trip in order")
}
