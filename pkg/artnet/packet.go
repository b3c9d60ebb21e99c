// Package artnet provides Art-Net ArtDmx packet building and parsing.
package artnet

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// MaxChannels is the number of DMX channels per universe.
	MaxChannels = 512
	// HeaderSize is the size of the ArtDmx header preceding the data.
	HeaderSize = 18
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
	// MaxUniverse is the largest 15-bit Port-Address.
	MaxUniverse = 0x7FFF
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// ErrNotArtDmx is returned by ParseDMXPacket for anything but an ArtDmx packet.
var ErrNotArtDmx = errors.New("not an ArtDmx packet")

// BuildDMXPacket creates an ArtDmx packet for a 0-based Port-Address.
//
// Only the channels that are provided are sent: the data length is the
// channel count rounded up to an even number, between 2 and 512, as the
// protocol requires. Sequence should increment for each packet so receivers
// can reorder UDP datagrams; 0 disables reordering on the receiver.
func BuildDMXPacket(universe uint16, channels []byte, sequence byte) []byte {
	length := len(channels)
	if length > MaxChannels {
		length = MaxChannels
	}
	if length < 2 {
		length = 2
	}
	if length%2 != 0 {
		length++
	}

	packet := make([]byte, HeaderSize+length)
	copy(packet[0:8], ArtNetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = sequence
	packet[13] = 0 // physical port
	binary.LittleEndian.PutUint16(packet[14:16], universe&MaxUniverse)
	binary.BigEndian.PutUint16(packet[16:18], uint16(length))
	copy(packet[HeaderSize:], channels)

	return packet
}

// DMXPacket is a decoded ArtDmx packet.
type DMXPacket struct {
	Sequence byte
	Universe uint16
	Data     []byte
}

// ParseDMXPacket decodes an ArtDmx packet.
func ParseDMXPacket(packet []byte) (*DMXPacket, error) {
	if len(packet) < HeaderSize || !bytes.Equal(packet[0:8], ArtNetID) {
		return nil, ErrNotArtDmx
	}
	if binary.LittleEndian.Uint16(packet[8:10]) != OpCodeDMX {
		return nil, ErrNotArtDmx
	}
	length := int(binary.BigEndian.Uint16(packet[16:18]))
	if length > MaxChannels || len(packet) < HeaderSize+length {
		return nil, errors.New("truncated ArtDmx packet")
	}
	return &DMXPacket{
		Sequence: packet[12],
		Universe: binary.LittleEndian.Uint16(packet[14:16]),
		Data:     append([]byte(nil), packet[HeaderSize:HeaderSize+length]...),
	}, nil
}
