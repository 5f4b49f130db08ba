package tcpkit

import "encoding/binary"

// PacketProcessor frames an inbound byte stream into discrete messages (spec §4.B).
// Applications may supply a custom framing discipline by implementing this interface and setting it on
// ServerConfig.PacketProcessor / ClientConfig.PacketProcessor; the default frames by "length prefix covers
// payload only".
type PacketProcessor interface {
	// HeaderSize returns the fixed size, in bytes, of the length header.
	HeaderSize() int

	// GetLength decodes the message size (payload only, not including the header itself) from a header-sized
	// slice of the most recently received bytes.
	GetLength(header []byte) (int, error)

	// CreatePacket wraps a complete, extracted payload as a readable PacketStream.
	CreatePacket(payload []byte) *PacketStream
}

// defaultPacketProcessor implements the wire format of spec §6: u32 little-endian payload_length followed by
// that many payload bytes.
type defaultPacketProcessor struct{}

func (defaultPacketProcessor) HeaderSize() int {
	return lengthPrefixSize
}

func (defaultPacketProcessor) GetLength(header []byte) (int, error) {
	return int(binary.LittleEndian.Uint32(header)), nil
}

func (defaultPacketProcessor) CreatePacket(payload []byte) *PacketStream {
	return WrapPacketStream(payload)
}
