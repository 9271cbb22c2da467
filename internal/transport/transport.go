// Package transport abstracts the duplex byte stream between the host and a
// radar sensor module. Implementations exist for serial lines, TCP sockets,
// SPI character devices, and an in-memory port for tests and simulation.
package transport

import (
	"errors"
	"time"
)

var (
	// ErrTimedOut is returned by Read when no bytes arrive within the
	// caller's timeout. It is an expected condition, not a failure.
	ErrTimedOut = errors.New("transport: read timed out")

	// ErrClosed is returned once the transport has been closed. Close may
	// be called from a different goroutine than the one reading, which is
	// how a blocked Read is cancelled.
	ErrClosed = errors.New("transport: closed")
)

// Transport is a duplex byte stream to a sensor. Reads may return fewer
// bytes than requested; callers must never assume frame-aligned reads.
// Close is idempotent and unblocks a pending Read.
type Transport interface {
	Write(p []byte) (int, error)
	Read(p []byte, timeout time.Duration) (int, error)
	Close() error
}
