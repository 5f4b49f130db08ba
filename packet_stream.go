package tcpkit

import (
	"encoding/binary"
	"math"

	"github.com/valyala/bytebufferpool"
)

// PacketStream owns a growable byte buffer, a read/write position, and a "readable" flag: true when constructed
// from received bytes, false when being built for sending (spec §3). Its backing buffer is borrowed from
// bytebufferpool instead of allocated fresh per packet, grounded on packetd/internal/labels' use of the same
// pool for scratch buffers.
type PacketStream struct {
	buffer        *bytebufferpool.ByteBuffer
	pos           int
	readable      bool
	headerWritten bool
}

const lengthPrefixSize = 4

// NewPacketStream creates a PacketStream for building an outbound message.
// The first four bytes are reserved for the length header, written lazily the first time Buffer() is called.
func NewPacketStream() *PacketStream {
	buf := bytebufferpool.Get()
	buf.Write(make([]byte, lengthPrefixSize))

	return &PacketStream{
		buffer:   buf,
		readable: false,
	}
}

// WrapPacketStream creates a read-only PacketStream over a copy of already-framed payload bytes.
// Used by PacketProcessor.CreatePacket to hand a received frame to the application.
func WrapPacketStream(payload []byte) *PacketStream {
	buf := bytebufferpool.Get()
	buf.Write(payload)

	return &PacketStream{
		buffer:   buf,
		readable: true,
	}
}

// Dispose releases the underlying buffer back to the pool. The PacketStream must not be used afterwards.
func (s *PacketStream) Dispose() {
	s.buffer.Reset()
	bytebufferpool.Put(s.buffer)
}

// Buffer returns the current bytes. For an outbound stream, the first call prepends the 32-bit little-endian
// length prefix (payload size, i.e. total size minus the 4 header bytes) computed at that moment.
func (s *PacketStream) Buffer() []byte {
	if !s.readable && !s.headerWritten {
		payloadLen := uint32(s.buffer.Len() - lengthPrefixSize)
		binary.LittleEndian.PutUint32(s.buffer.B[0:lengthPrefixSize], payloadLen)
		s.headerWritten = true
	}

	return s.buffer.Bytes()
}

// Size returns the number of bytes currently held (excluding, for an outbound stream, any not-yet-written
// trailing header bookkeeping — there is none, the header occupies its reserved 4 bytes from construction).
func (s *PacketStream) Size() int {
	return s.buffer.Len()
}

func (s *PacketStream) requireWritable() error {
	if s.readable {
		return ErrInvalidOperation
	}

	return nil
}

func (s *PacketStream) requireReadable() error {
	if !s.readable {
		return ErrInvalidOperation
	}

	return nil
}

func (s *PacketStream) take(n int) ([]byte, error) {
	if err := s.requireReadable(); err != nil {
		return nil, err
	}

	if s.pos+n > s.buffer.Len() {
		return nil, ErrEndOfStream
	}

	b := s.buffer.B[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *PacketStream) put(b []byte) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	s.buffer.Write(b)
	return nil
}

// WriteUint8 appends an unsigned 8-bit integer.
func (s *PacketStream) WriteUint8(v uint8) error { return s.put([]byte{v}) }

// WriteInt8 appends a signed 8-bit integer.
func (s *PacketStream) WriteInt8(v int8) error { return s.put([]byte{byte(v)}) }

// WriteBool appends a boolean as a single byte (0 or 1).
func (s *PacketStream) WriteBool(v bool) error {
	if v {
		return s.WriteUint8(1)
	}
	return s.WriteUint8(0)
}

// WriteUint16 appends a little-endian unsigned 16-bit integer.
func (s *PacketStream) WriteUint16(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return s.put(b[:])
}

// WriteInt16 appends a little-endian signed 16-bit integer.
func (s *PacketStream) WriteInt16(v int16) error { return s.WriteUint16(uint16(v)) }

// WriteUint32 appends a little-endian unsigned 32-bit integer.
func (s *PacketStream) WriteUint32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return s.put(b[:])
}

// WriteInt32 appends a little-endian signed 32-bit integer.
func (s *PacketStream) WriteInt32(v int32) error { return s.WriteUint32(uint32(v)) }

// WriteUint64 appends a little-endian unsigned 64-bit integer.
func (s *PacketStream) WriteUint64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return s.put(b[:])
}

// WriteInt64 appends a little-endian signed 64-bit integer.
func (s *PacketStream) WriteInt64(v int64) error { return s.WriteUint64(uint64(v)) }

// WriteFloat32 appends a little-endian IEEE-754 single-precision float.
func (s *PacketStream) WriteFloat32(v float32) error { return s.WriteUint32(math.Float32bits(v)) }

// WriteFloat64 appends a little-endian IEEE-754 double-precision float.
func (s *PacketStream) WriteFloat64(v float64) error { return s.WriteUint64(math.Float64bits(v)) }

// WriteString appends a 32-bit little-endian length followed by the UTF-8 bytes of v.
func (s *PacketStream) WriteString(v string) error {
	if err := s.WriteUint32(uint32(len(v))); err != nil {
		return err
	}

	return s.put([]byte(v))
}

// ReadUint8 reads an unsigned 8-bit integer.
func (s *PacketStream) ReadUint8() (uint8, error) {
	b, err := s.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads a signed 8-bit integer.
func (s *PacketStream) ReadInt8() (int8, error) {
	v, err := s.ReadUint8()
	return int8(v), err
}

// ReadBool reads a boolean (true when the byte is non-zero).
func (s *PacketStream) ReadBool() (bool, error) {
	v, err := s.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadUint16 reads a little-endian unsigned 16-bit integer.
func (s *PacketStream) ReadUint16() (uint16, error) {
	b, err := s.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt16 reads a little-endian signed 16-bit integer.
func (s *PacketStream) ReadInt16() (int16, error) {
	v, err := s.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian unsigned 32-bit integer.
func (s *PacketStream) ReadUint32() (uint32, error) {
	b, err := s.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads a little-endian signed 32-bit integer.
func (s *PacketStream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little-endian unsigned 64-bit integer.
func (s *PacketStream) ReadUint64() (uint64, error) {
	b, err := s.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads a little-endian signed 64-bit integer.
func (s *PacketStream) ReadInt64() (int64, error) {
	v, err := s.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads a little-endian IEEE-754 single-precision float.
func (s *PacketStream) ReadFloat32() (float32, error) {
	v, err := s.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadFloat64 reads a little-endian IEEE-754 double-precision float.
func (s *PacketStream) ReadFloat64() (float64, error) {
	v, err := s.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads a 32-bit little-endian length followed by that many UTF-8 bytes.
func (s *PacketStream) ReadString() (string, error) {
	n, err := s.ReadUint32()
	if err != nil {
		return "", err
	}

	b, err := s.take(int(n))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// WriteArray appends a 32-bit count followed by each element encoded via write.
func WriteArray[T any](s *PacketStream, values []T, write func(*PacketStream, T) error) error {
	if err := s.WriteUint32(uint32(len(values))); err != nil {
		return err
	}

	for _, v := range values {
		if err := write(s, v); err != nil {
			return err
		}
	}

	return nil
}

// ReadArray reads a 32-bit count followed by that many elements decoded via read.
func ReadArray[T any](s *PacketStream, read func(*PacketStream) (T, error)) ([]T, error) {
	n, err := s.ReadUint32()
	if err != nil {
		return nil, err
	}

	// cap the preallocation hint at the bytes actually remaining: n comes straight off the wire and each
	// element consumes at least one byte, so the buffer size is a safe upper bound regardless of n.
	hint := n
	if remaining := uint32(s.buffer.Len() - s.pos); remaining < hint {
		hint = remaining
	}

	values := make([]T, 0, hint)
	for i := uint32(0); i < n; i++ {
		v, err := read(s)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, nil
}
