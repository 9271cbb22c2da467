package result

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/radarlink/internal/frame"
)

// KindStreamData is the payload kind byte carried by streamed measurement
// frames.
const KindStreamData = 0x10

// streamHeaderSize is kind(1) + tick(4) + sensor(1) + status(2).
const streamHeaderSize = 8

// sampleScale converts the int16 fixed-point wire samples to physical
// units.
const sampleScale = 1.0 / 256.0

// ShapeError reports a stream payload whose sample count disagrees with the
// session metadata. It is session-fatal: the metadata is presumed stale and
// no further payloads can be trusted.
type ShapeError struct {
	Tick     uint32
	Got      int
	Expected int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("result shape mismatch at tick %d: %d samples on the wire, metadata expects %d",
		e.Tick, e.Got, e.Expected)
}

// IsStreamData reports whether the frame carries a streamed measurement.
func IsStreamData(f frame.Frame) bool {
	return len(f.Payload) > 0 && f.Payload[0] == KindStreamData
}

// Decode maps a validated stream frame into a typed Result shaped by the
// session metadata.
//
// Payload layout: [kind:1][tick:4 LE][sensor:1][status:2 LE][samples:2n int16 LE]
func Decode(meta *Metadata, f frame.Frame) (*Result, error) {
	p := f.Payload
	if len(p) < streamHeaderSize {
		return nil, &ShapeError{Got: len(p), Expected: streamHeaderSize}
	}
	if p[0] != KindStreamData {
		return nil, fmt.Errorf("frame kind 0x%02x is not stream data", p[0])
	}

	tick := binary.LittleEndian.Uint32(p[1:5])
	sensorID := p[5]
	status := StatusFlags(binary.LittleEndian.Uint16(p[6:8]))

	body := p[streamHeaderSize:]
	if len(body)%2 != 0 {
		return nil, &ShapeError{Tick: tick, Got: len(body), Expected: 2 * meta.SamplesPerResult()}
	}
	n := len(body) / 2
	if n != meta.SamplesPerResult() {
		return nil, &ShapeError{Tick: tick, Got: n, Expected: meta.SamplesPerResult()}
	}

	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		raw := int16(binary.LittleEndian.Uint16(body[2*i:]))
		samples[i] = float64(raw) * sampleScale
	}

	return &Result{
		Tick:     tick,
		SensorID: sensorID,
		Status:   status,
		Samples:  samples,
	}, nil
}

// EncodeStream builds a stream payload from a Result. The session never
// sends these; the mock sensor in tests and the replay feeder do.
func EncodeStream(meta *Metadata, r *Result) []byte {
	p := make([]byte, streamHeaderSize, streamHeaderSize+2*len(r.Samples))
	p[0] = KindStreamData
	binary.LittleEndian.PutUint32(p[1:5], r.Tick)
	p[5] = r.SensorID
	binary.LittleEndian.PutUint16(p[6:8], uint16(r.Status))
	for _, s := range r.Samples {
		p = binary.LittleEndian.AppendUint16(p, uint16(int16(s/sampleScale)))
	}
	return p
}
