package frame

import (
	"bytes"
	"encoding/binary"
)

// Framer incrementally extracts frames from a byte stream. Feed may be
// called with reads of any size relative to frame boundaries; the sequence
// of extracted frames is identical regardless of how the stream is chunked.
//
// A checksum mismatch is not fatal: the framer drops the sync byte it was
// anchored on, rescans, and counts the event. The protocol self-heals on
// the next intact frame.
type Framer struct {
	buf []byte

	checksumErrors uint64

	// OnChecksumError, if set, is called with the raw stream offset of the
	// rejected sync byte. Used for logging and metrics, never for control
	// flow.
	OnChecksumError func(offset int64)

	discarded int64
}

// Feed appends bytes to the reassembly buffer and returns every complete,
// checksum-valid frame that can be extracted.
func (f *Framer) Feed(p []byte) []Frame {
	f.buf = append(f.buf, p...)

	var frames []Frame
	for {
		frame, ok := f.next()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}
	return frames
}

// next attempts to extract one frame. Returns false when more bytes are
// needed.
func (f *Framer) next() (Frame, bool) {
	for {
		// discard everything before the first sync marker
		if i := bytes.IndexByte(f.buf, Sync); i < 0 {
			f.drop(len(f.buf))
			return Frame{}, false
		} else if i > 0 {
			f.drop(i)
		}

		if len(f.buf) < headerSize {
			return Frame{}, false
		}

		length := int(binary.LittleEndian.Uint16(f.buf[1:3]))
		if length > MaxPayload {
			// corrupt length field; treat like a failed checksum
			f.reject()
			continue
		}

		total := length + overhead
		if len(f.buf) < total {
			return Frame{}, false
		}

		payload := f.buf[headerSize : headerSize+length]
		if f.buf[total-1] != Checksum(payload) {
			f.reject()
			continue
		}

		out := Frame{Payload: append([]byte(nil), payload...)}
		f.drop(total)
		return out, true
	}
}

// reject abandons the sync byte the framer is anchored on and rescans from
// the next byte.
func (f *Framer) reject() {
	f.checksumErrors++
	if f.OnChecksumError != nil {
		f.OnChecksumError(f.discarded)
	}
	f.drop(1)
}

func (f *Framer) drop(n int) {
	f.buf = f.buf[n:]
	f.discarded += int64(n)
	if len(f.buf) == 0 {
		// release the backing array between bursts
		f.buf = nil
	}
}

// ChecksumErrors returns the number of rejected sync candidates since the
// framer was created.
func (f *Framer) ChecksumErrors() uint64 { return f.checksumErrors }

// Buffered returns the number of bytes awaiting more input.
func (f *Framer) Buffered() int { return len(f.buf) }
