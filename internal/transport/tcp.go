package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// TCP is a Transport over a socket to a sensor module's streaming server.
type TCP struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// DialTCP connects to the sensor at addr ("host:port").
func DialTCP(addr string, connectTimeout time.Duration) (*TCP, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// measurement frames are latency-sensitive
		tc.SetNoDelay(true)
	}
	return &TCP{conn: conn}, nil
}

func (t *TCP) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	t.mu.Unlock()
	return t.conn.Write(p)
}

func (t *TCP) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	t.mu.Unlock()

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ErrTimedOut
		}
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed || errors.Is(err, net.ErrClosed) {
			return n, ErrClosed
		}
		return n, err
	}
	return n, nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
