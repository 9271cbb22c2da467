// Package frame implements the sensor wire framing: a sync marker, a
// little-endian length, the payload, and a one-byte checksum. The streaming
// Framer reassembles complete frames from arbitrarily fragmented transport
// reads and resynchronises after corruption.
package frame

import (
	"encoding/binary"
	"fmt"
)

const (
	// Sync marks the start of every frame.
	Sync = 0xCC

	// headerSize is sync byte plus the 2-byte length field.
	headerSize = 3

	// overhead is everything on the wire besides the payload.
	overhead = headerSize + 1

	// MaxPayload bounds the declared length field. A length above this is
	// treated as corruption and triggers resynchronisation instead of
	// waiting for bytes that will never arrive.
	MaxPayload = 16384
)

// Frame is one validated wire unit. The payload is owned by the Frame; the
// framer copies it out of its reassembly buffer before returning it.
type Frame struct {
	Payload []byte
}

// Checksum computes the frame checksum: the sum modulo 256 of the length
// field bytes and the payload.
func Checksum(payload []byte) byte {
	var lenBytes [2]byte
	binary.LittleEndian.PutUint16(lenBytes[:], uint16(len(payload)))
	sum := lenBytes[0] + lenBytes[1]
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Marshal serialises the frame for the wire.
func Marshal(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds maximum %d", len(payload), MaxPayload)
	}
	buf := make([]byte, 0, len(payload)+overhead)
	buf = append(buf, Sync)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, Checksum(payload))
	return buf, nil
}
