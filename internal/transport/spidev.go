package transport

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// SPIDev is a Transport over a spidev-style character device. The sensor
// module's SPI slave interface is half duplex at the application layer, so
// plain read/write against the device node is sufficient; bus clocking and
// chip select are the kernel driver's concern.
type SPIDev struct {
	file *os.File

	mu     sync.Mutex
	closed bool
}

// OpenSPIDev opens the SPI character device at the given path
// (e.g. /dev/spidev0.0).
func OpenSPIDev(path string) (*SPIDev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", path, err)
	}
	return &SPIDev{file: f}, nil
}

func (s *SPIDev) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.mu.Unlock()
	return s.file.Write(p)
}

func (s *SPIDev) Read(p []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.mu.Unlock()

	if err := s.file.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("device does not support read deadlines: %w", err)
	}
	n, err := s.file.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ErrTimedOut
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed || errors.Is(err, os.ErrClosed) {
			return n, ErrClosed
		}
		return n, err
	}
	return n, nil
}

func (s *SPIDev) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.file.Close()
}
