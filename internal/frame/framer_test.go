package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// payloads deliberately avoid the sync byte so resynchronisation tests can
// count checksum events precisely.
func testPayloads() [][]byte {
	return [][]byte{
		{0x01, 0x02, 0x03},
		{0x10, 0x20, 0x30, 0x40, 0x50},
		{0x7f},
		bytes.Repeat([]byte{0x42}, 300),
	}
}

func testStream(t *testing.T) []byte {
	t.Helper()
	var stream []byte
	for _, p := range testPayloads() {
		b, err := Marshal(p)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		stream = append(stream, b...)
	}
	return stream
}

func collect(f *Framer, stream []byte, chunk func(i int) int) []Frame {
	var frames []Frame
	for off := 0; off < len(stream); {
		n := chunk(off)
		if off+n > len(stream) {
			n = len(stream) - off
		}
		frames = append(frames, f.Feed(stream[off:off+n])...)
		off += n
	}
	return frames
}

func framePayloads(frames []Frame) [][]byte {
	out := make([][]byte, len(frames))
	for i, fr := range frames {
		out[i] = fr.Payload
	}
	return out
}

// Feeding the same byte stream in any chunking must produce the identical
// frame sequence.
func TestFramerChunkingDeterminism(t *testing.T) {
	stream := testStream(t)
	want := testPayloads()

	chunkings := map[string]func(i int) int{
		"whole buffer": func(int) int { return len(stream) },
		"byte by byte": func(int) int { return 1 },
		"two bytes":    func(int) int { return 2 },
		"seven bytes":  func(int) int { return 7 },
	}

	rng := rand.New(rand.NewSource(1))
	chunkings["random splits"] = func(int) int { return 1 + rng.Intn(13) }

	for name, chunk := range chunkings {
		t.Run(name, func(t *testing.T) {
			var f Framer
			frames := collect(&f, stream, chunk)
			if diff := cmp.Diff(want, framePayloads(frames)); diff != "" {
				t.Errorf("frame sequence mismatch (-want +got):\n%s", diff)
			}
			if f.ChecksumErrors() != 0 {
				t.Errorf("unexpected checksum errors: %d", f.ChecksumErrors())
			}
			if f.Buffered() != 0 {
				t.Errorf("framer left %d bytes buffered", f.Buffered())
			}
		})
	}
}

// Corrupting one checksum byte must cost exactly the corrupted frame: one
// checksum event, every frame before and after it intact.
func TestFramerResynchronisation(t *testing.T) {
	stream := testStream(t)
	payloads := testPayloads()

	// checksum byte of the second frame
	secondStart := len(payloads[0]) + 4
	corruptAt := secondStart + 3 + len(payloads[1])
	corrupted := append([]byte(nil), stream...)
	corrupted[corruptAt] ^= 0xFF

	var f Framer
	var events int
	f.OnChecksumError = func(int64) { events++ }

	frames := f.Feed(corrupted)

	want := [][]byte{payloads[0], payloads[2], payloads[3]}
	if diff := cmp.Diff(want, framePayloads(frames)); diff != "" {
		t.Errorf("frame sequence mismatch (-want +got):\n%s", diff)
	}
	if f.ChecksumErrors() != 1 {
		t.Errorf("ChecksumErrors() = %d, want 1", f.ChecksumErrors())
	}
	if events != 1 {
		t.Errorf("OnChecksumError fired %d times, want 1", events)
	}
}

func TestFramerSkipsGarbagePrefix(t *testing.T) {
	payload := []byte{0x11, 0x22}
	marshalled, err := Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	stream := append([]byte{0x00, 0x01, 0x02, 0x03}, marshalled...)

	var f Framer
	frames := f.Feed(stream)
	if len(frames) != 1 || !bytes.Equal(frames[0].Payload, payload) {
		t.Fatalf("expected one frame with payload %x, got %v", payload, frames)
	}
}

func TestFramerHoldsPartialFrame(t *testing.T) {
	marshalled, err := Marshal([]byte{0xAA, 0xBB, 0xCD})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var f Framer
	if frames := f.Feed(marshalled[:4]); len(frames) != 0 {
		t.Fatalf("incomplete frame extracted: %v", frames)
	}
	frames := f.Feed(marshalled[4:])
	if len(frames) != 1 {
		t.Fatalf("expected one frame after completion, got %d", len(frames))
	}
}

// A corrupted length field that declares an absurd payload must trigger a
// resync instead of buffering forever.
func TestFramerRejectsOversizedLength(t *testing.T) {
	valid, err := Marshal([]byte{0x01})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	stream := append([]byte{Sync, 0xFF, 0xFF}, valid...)

	var f Framer
	frames := f.Feed(stream)
	if len(frames) != 1 {
		t.Fatalf("expected recovery of the valid frame, got %d frames", len(frames))
	}
	if f.ChecksumErrors() == 0 {
		t.Error("expected the oversized length to be counted as corruption")
	}
}

func TestMarshalRejectsOversizedPayload(t *testing.T) {
	if _, err := Marshal(make([]byte, MaxPayload+1)); err == nil {
		t.Fatal("expected Marshal to reject oversized payload")
	}
}

func TestChecksumCoversLengthField(t *testing.T) {
	// same payload bytes, different lengths must not share a checksum with
	// a zero-extended sibling
	a := Checksum([]byte{0x01})
	b := Checksum([]byte{0x01, 0x00})
	if a == b {
		t.Error("checksum should differ when the length field differs")
	}
}
