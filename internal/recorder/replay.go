package recorder

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/radarlink/internal/frame"
	"github.com/banshee-data/radarlink/internal/result"
	"github.com/banshee-data/radarlink/internal/session"
	"github.com/banshee-data/radarlink/internal/transport"
)

// ErrNoRecording is returned when the store holds no recording to replay.
var ErrNoRecording = errors.New("recorder: no such recording")

// Replayer provides random access to the results of one recording.
type Replayer struct {
	store *Store

	ID     string
	Info   session.ServerInfo
	Config session.SessionConfig
	Meta   result.Metadata

	count int
}

// OpenReplay loads the recording with the given ID. An empty ID selects
// the most recently started recording in the store.
func (s *Store) OpenReplay(id string) (*Replayer, error) {
	row := s.QueryRow(
		`SELECT id, server_info, session_config, metadata, result_count
		 FROM recordings WHERE id = ? OR ? = '' ORDER BY started_at DESC LIMIT 1`,
		id, id,
	)

	r := &Replayer{store: s}
	var infoJSON, cfgJSON, metaJSON string
	err := row.Scan(&r.ID, &infoJSON, &cfgJSON, &metaJSON, &r.count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecording
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recording: %w", err)
	}

	if err := json.Unmarshal([]byte(infoJSON), &r.Info); err != nil {
		return nil, fmt.Errorf("corrupt server info in recording %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, fmt.Errorf("corrupt session config in recording %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &r.Meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata in recording %s: %w", r.ID, err)
	}

	// a recording closed mid-capture may have a stale count; trust the rows
	if r.count == 0 {
		row := s.QueryRow(`SELECT COUNT(*) FROM results WHERE recording_id = ?`, r.ID)
		if err := row.Scan(&r.count); err != nil {
			return nil, fmt.Errorf("failed to count results: %w", err)
		}
	}
	return r, nil
}

// Count reports the number of recorded results.
func (r *Replayer) Count() int { return r.count }

// ResultAt loads the i'th result in arrival order.
func (r *Replayer) ResultAt(i int) (*result.Result, error) {
	if i < 0 || i >= r.count {
		return nil, fmt.Errorf("recorder: result index %d out of range [0,%d)", i, r.count)
	}
	var payload []byte
	row := r.store.QueryRow(
		`SELECT payload FROM results WHERE recording_id = ? AND seq = ?`, r.ID, i,
	)
	if err := row.Scan(&payload); err != nil {
		return nil, fmt.Errorf("failed to load result %d: %w", i, err)
	}
	return result.Decode(&r.Meta, frame.Frame{Payload: payload})
}

// Transport adapts a replay into a read-only transport: reads serve the
// recorded results framed exactly as the sensor sent them, writes are
// accepted and discarded. When the recording is exhausted reads time out,
// matching an idle sensor.
type Transport struct {
	mu     sync.Mutex
	rp     *Replayer
	next   int
	buf    []byte
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns a transport serving the replayer's results.
func NewTransport(rp *Replayer) *Transport {
	return &Transport{rp: rp}
}

func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, transport.ErrClosed
	}
	return len(p), nil
}

func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, transport.ErrClosed
	}

	if len(t.buf) == 0 {
		if t.next >= t.rp.Count() {
			return 0, transport.ErrTimedOut
		}
		res, err := t.rp.ResultAt(t.next)
		if err != nil {
			return 0, err
		}
		t.next++
		wire, err := frame.Marshal(result.EncodeStream(&t.rp.Meta, res))
		if err != nil {
			return 0, err
		}
		t.buf = wire
	}

	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
