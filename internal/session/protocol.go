package session

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/radarlink/internal/frame"
	"github.com/banshee-data/radarlink/internal/regmap"
)

// Control payload kinds. Streamed measurement frames use
// result.KindStreamData (0x10); everything below 0x10 is command traffic.
const (
	kindIdentify          = 0x01
	kindIdentifyResponse  = 0x02
	kindConfigure         = 0x03
	kindConfigureResponse = 0x04
	kindRegisterWrite     = 0x05
	kindRegisterWriteAck  = 0x06
	kindRegisterRead      = 0x07
	kindRegisterReadResp  = 0x08
	kindStart             = 0x09
	kindStartAck          = 0x0A
	kindStop              = 0x0B
	kindStopAck           = 0x0C
)

const (
	statusOK       = 0x00
	statusRejected = 0x01
)

// controlPayload prefixes a JSON body with its kind byte.
func controlPayload(kind byte, body []byte) []byte {
	p := make([]byte, 0, 1+len(body))
	p = append(p, kind)
	return append(p, body...)
}

// registerWritePayload builds a register write command:
// [kind][addr:2 LE][value bytes per descriptor width].
func registerWritePayload(d *regmap.Descriptor, value any) ([]byte, error) {
	encoded, err := regmap.Encode(d, value)
	if err != nil {
		return nil, err
	}
	p := make([]byte, 3, 3+len(encoded))
	p[0] = kindRegisterWrite
	binary.LittleEndian.PutUint16(p[1:3], d.Address)
	return append(p, encoded...), nil
}

// registerReadPayload builds a register read command: [kind][addr:2 LE].
func registerReadPayload(d *regmap.Descriptor) []byte {
	p := make([]byte, 3)
	p[0] = kindRegisterRead
	binary.LittleEndian.PutUint16(p[1:3], d.Address)
	return p
}

// parseRegisterAck validates a write acknowledgement frame against the
// register it acknowledges and returns its status byte.
func parseRegisterAck(f frame.Frame, d *regmap.Descriptor) (byte, error) {
	if len(f.Payload) < 4 {
		return 0, fmt.Errorf("truncated register ack (%d bytes)", len(f.Payload))
	}
	addr := binary.LittleEndian.Uint16(f.Payload[1:3])
	if addr != d.Address {
		return 0, fmt.Errorf("register ack for address 0x%02x, expected 0x%02x", addr, d.Address)
	}
	return f.Payload[3], nil
}

// parseRegisterReadResp validates a read response and returns the raw value
// bytes.
func parseRegisterReadResp(f frame.Frame, d *regmap.Descriptor) ([]byte, error) {
	if len(f.Payload) < 3+d.Type.Width() {
		return nil, fmt.Errorf("truncated register read response (%d bytes)", len(f.Payload))
	}
	addr := binary.LittleEndian.Uint16(f.Payload[1:3])
	if addr != d.Address {
		return nil, fmt.Errorf("register response for address 0x%02x, expected 0x%02x", addr, d.Address)
	}
	return f.Payload[3 : 3+d.Type.Width()], nil
}
