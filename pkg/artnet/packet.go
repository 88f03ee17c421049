// Package artnet provides Art-Net protocol packet building and parsing.
package artnet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// HeaderSize is the size of the ArtDMX header preceding the channel data.
	HeaderSize = 18
	// PacketSize is the total size of an Art-Net DMX packet.
	PacketSize = HeaderSize + DMXDataLength // Header (18) + Data (512)
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

var (
	// ErrNotArtNet is returned for packets without the Art-Net identifier.
	ErrNotArtNet = errors.New("not an Art-Net packet")
	// ErrNotDMX is returned for Art-Net packets other than ArtDMX.
	ErrNotDMX = errors.New("not an ArtDMX packet")
	// ErrMalformed is returned when the declared length does not fit the packet.
	ErrMalformed = errors.New("malformed ArtDMX packet")
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// DMXPacket is a decoded ArtDMX packet.
type DMXPacket struct {
	// Universe is 1-based, matching BuildDMXPacket.
	Universe int
	Sequence byte
	Physical byte
	// Channels always holds 512 values; channels beyond the declared length are zero.
	Channels []byte
}

// BuildDMXPacket creates an Art-Net DMX packet for the specified universe.
// Universe should be 1-based, as used in the application.
// Channels should be exactly 512 bytes.
// Sequence should increment for each packet (0-255, wraps around) to enable receivers
// to detect and handle out-of-order UDP packets.
func BuildDMXPacket(universe int, channels []byte, sequence byte) []byte {
	packet := make([]byte, PacketSize)

	// Art-Net header
	copy(packet[0:8], ArtNetID)                                      // ID (8 bytes): "Art-Net\0"
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)           // OpCode (2 bytes): 0x5000 for DMX
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)       // Protocol version (2 bytes): 14
	packet[12] = sequence                                            // Sequence (1 byte): increments for each packet
	packet[13] = 0                                                   // Physical input port (1 byte): 0
	binary.LittleEndian.PutUint16(packet[14:16], uint16(universe-1)) // Universe (2 bytes): 0-based
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)         // Data length (2 bytes): 512

	// DMX data (512 channels)
	if len(channels) >= 512 {
		copy(packet[HeaderSize:PacketSize], channels[:512])
	} else {
		// Pad with zeros if less than 512 channels provided
		copy(packet[HeaderSize:HeaderSize+len(channels)], channels)
	}

	return packet
}

// ParseDMXPacket decodes an ArtDMX packet received from a console.
func ParseDMXPacket(packet []byte) (*DMXPacket, error) {
	if len(packet) < 10 || !bytes.Equal(packet[0:8], ArtNetID) {
		return nil, ErrNotArtNet
	}
	if op := binary.LittleEndian.Uint16(packet[8:10]); op != OpCodeDMX {
		return nil, fmt.Errorf("%w: opcode 0x%04x", ErrNotDMX, op)
	}
	if len(packet) < HeaderSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrMalformed, len(packet))
	}

	length := int(binary.BigEndian.Uint16(packet[16:18]))
	if length < 2 || length > int(DMXDataLength) {
		return nil, fmt.Errorf("%w: data length %d", ErrMalformed, length)
	}
	if len(packet) < HeaderSize+length {
		return nil, fmt.Errorf("%w: data length %d exceeds %d payload bytes", ErrMalformed, length, len(packet)-HeaderSize)
	}

	channels := make([]byte, DMXDataLength)
	copy(channels, packet[HeaderSize:HeaderSize+length])

	return &DMXPacket{
		Universe: int(binary.LittleEndian.Uint16(packet[14:16])&0x7FFF) + 1,
		Sequence: packet[12],
		Physical: packet[13],
		Channels: channels,
	}, nil
}
