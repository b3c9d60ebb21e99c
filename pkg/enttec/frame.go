// Package enttec builds frames for the Enttec DMX USB Pro widget.
package enttec

import (
	"encoding/binary"
)

const (
	// StartDelimiter opens every widget message.
	StartDelimiter byte = 0x7E
	// EndDelimiter closes every widget message.
	EndDelimiter byte = 0xE7
	// LabelSendDMX is the "Output Only Send DMX Packet" request.
	LabelSendDMX byte = 6
	// MaxChannels is the number of DMX channels per universe.
	MaxChannels = 512
	// DefaultBaudRate is ignored by the widget's FTDI chip but needed to open the port.
	DefaultBaudRate = 57600
)

// BuildDMXFrame wraps channel values in a Send DMX message. The payload is
// the DMX start code (0) followed by the channels, padded to the minimum of
// 24 channels the widget accepts.
func BuildDMXFrame(channels []byte) []byte {
	n := len(channels)
	if n > MaxChannels {
		n = MaxChannels
	}
	if n < 24 {
		n = 24
	}
	payload := n + 1

	frame := make([]byte, 4+payload+1)
	frame[0] = StartDelimiter
	frame[1] = LabelSendDMX
	binary.LittleEndian.PutUint16(frame[2:4], uint16(payload))
	frame[4] = 0 // start code
	copy(frame[5:5+n], channels)
	frame[len(frame)-1] = EndDelimiter
	return frame
}
