package transport

import (
	"bytes"
	"sync"
	"time"
)

// Mock implements Transport in memory with configurable behaviour. It
// provides fine-grained control over read chunking, latency, and errors so
// higher layers can be exercised without sensor hardware.
type Mock struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// chunks, when non-empty, caps the size of successive reads so tests
	// can force arbitrary fragmentation of the incoming byte stream.
	chunks []int

	// ReadError and WriteError are returned by the next Read/Write call if
	// set, then cleared.
	ReadError  error
	WriteError error

	// ReadLatency delays every Read call.
	ReadLatency time.Duration

	// OnWrite, if set, is invoked with each written payload while holding
	// no locks. Tests use it to script the peer's responses.
	OnWrite func(p []byte)

	ReadCalls  int
	WriteCalls int

	closed bool
}

// NewMock creates an empty in-memory transport.
func NewMock() *Mock {
	m := &Mock{}
	m.readCond = sync.NewCond(&m.mu)
	return m
}

// QueueRead appends bytes to be returned by subsequent Read calls and wakes
// a blocked reader.
func (m *Mock) QueueRead(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(data)
	m.readCond.Broadcast()
}

// QueueReadChunks appends bytes and schedules them to be delivered in reads
// of exactly the given sizes, regardless of the reader's buffer size.
func (m *Mock) QueueReadChunks(data []byte, sizes []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(data)
	m.chunks = append(m.chunks, sizes...)
	m.readCond.Broadcast()
}

func (m *Mock) Read(p []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()

	m.ReadCalls++
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		m.mu.Unlock()
		return 0, err
	}
	if m.ReadLatency > 0 {
		latency := m.ReadLatency
		m.mu.Unlock()
		time.Sleep(latency)
		m.mu.Lock()
	}

	deadline := time.Now().Add(timeout)
	for !m.closed && m.readBuf.Len() == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.mu.Unlock()
			return 0, ErrTimedOut
		}
		// wake periodically so the deadline is honoured even when no
		// writer signals the condition
		waker := time.AfterFunc(remaining, func() {
			m.mu.Lock()
			m.readCond.Broadcast()
			m.mu.Unlock()
		})
		m.readCond.Wait()
		waker.Stop()
	}
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}

	limit := len(p)
	if len(m.chunks) > 0 {
		if m.chunks[0] < limit {
			limit = m.chunks[0]
		}
		m.chunks = m.chunks[1:]
	}
	n, _ := m.readBuf.Read(p[:limit])
	m.mu.Unlock()
	return n, nil
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.WriteCalls++
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if m.WriteError != nil {
		err := m.WriteError
		m.WriteError = nil
		m.mu.Unlock()
		return 0, err
	}
	m.writeBuf.Write(p)
	onWrite := m.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(append([]byte(nil), p...))
	}
	return len(p), nil
}

// Close marks the transport closed and wakes any blocked reader.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.readCond.Broadcast()
	return nil
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Written returns a copy of everything written to the transport.
func (m *Mock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.writeBuf.Bytes()...)
}

// ResetWritten clears the captured write buffer.
func (m *Mock) ResetWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBuf.Reset()
}
