package transport

import (
	"errors"
	"testing"
	"time"
)

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "zero value gets defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "parity spelled out",
			in:   PortOptions{BaudRate: 921600, Parity: "even"},
			want: PortOptions{BaudRate: 921600, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name:    "invalid data bits",
			in:      PortOptions{DataBits: 9},
			wantErr: true,
		},
		{
			name:    "invalid stop bits",
			in:      PortOptions{StopBits: 3},
			wantErr: true,
		},
		{
			name:    "unsupported parity",
			in:      PortOptions{Parity: "M"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMockShortReads(t *testing.T) {
	m := NewMock()
	m.QueueReadChunks([]byte{1, 2, 3, 4, 5, 6}, []int{2, 1, 3})

	sizes := []int{}
	buf := make([]byte, 16)
	for total := 0; total < 6; {
		n, err := m.Read(buf, time.Second)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		sizes = append(sizes, n)
		total += n
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 1 || sizes[2] != 3 {
		t.Errorf("chunk sizes = %v, want [2 1 3]", sizes)
	}
}

func TestMockReadTimeout(t *testing.T) {
	m := NewMock()
	start := time.Now()
	_, err := m.Read(make([]byte, 8), 20*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Read returned after %v, before the timeout", elapsed)
	}
}

// Close must unblock a Read pending in another goroutine. This is the
// cancellation path the session relies on for bounded shutdown.
func TestMockCloseUnblocksRead(t *testing.T) {
	m := NewMock()

	done := make(chan error, 1)
	go func() {
		_, err := m.Read(make([]byte, 8), time.Minute)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestMockCloseIsIdempotent(t *testing.T) {
	m := NewMock()
	if err := m.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestMockWriteCapture(t *testing.T) {
	m := NewMock()
	var observed []byte
	m.OnWrite = func(p []byte) { observed = append(observed, p...) }

	if _, err := m.Write([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := m.Written(); len(got) != 2 || got[0] != 0xAA {
		t.Errorf("Written() = %x, want aabb", got)
	}
	if len(observed) != 2 {
		t.Errorf("OnWrite saw %d bytes, want 2", len(observed))
	}

	m.Close()
	if _, err := m.Write([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close: expected ErrClosed, got %v", err)
	}
}
