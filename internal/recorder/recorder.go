// Package recorder persists streamed measurement results to SQLite so a
// capture can be replayed later without the sensor attached.
package recorder

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/radarlink/internal/result"
	"github.com/banshee-data/radarlink/internal/session"
)

//go:embed schema.sql
var schemaSQL string

// Store is a handle to a recording database.
type Store struct {
	*sql.DB
}

// Open opens (creating if necessary) the recording database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise recording schema: %w", err)
	}
	return &Store{db}, nil
}

// Recording is an append-only capture of one streaming session. It
// satisfies the session's Recorder interface so it can be attached with
// SetRecorder before Start.
type Recording struct {
	store *Store
	meta  *result.Metadata

	// ID is the recording's UUID, assigned at creation.
	ID string

	seq int
}

var _ session.Recorder = (*Recording)(nil)

// StartRecording creates a recordings row capturing the session identity
// and shape alongside the results that follow.
func (s *Store) StartRecording(info *session.ServerInfo, cfg *session.SessionConfig, meta *result.Metadata) (*Recording, error) {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server info: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session config: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	id := uuid.NewString()
	_, err = s.Exec(
		`INSERT INTO recordings (id, server_info, session_config, metadata) VALUES (?, ?, ?, ?)`,
		id, string(infoJSON), string(cfgJSON), string(metaJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	m := *meta
	return &Recording{store: s, meta: &m, ID: id}, nil
}

// Record appends one result. Results are stored in arrival order; seq is
// assigned by the recording, not taken from the tick.
func (r *Recording) Record(res *result.Result) error {
	payload := result.EncodeStream(r.meta, res)
	_, err := r.store.Exec(
		`INSERT INTO results (recording_id, seq, tick, sensor_id, status, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.seq, res.Tick, res.SensorID, uint16(res.Status), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to record result %d: %w", r.seq, err)
	}
	r.seq++
	return nil
}

// Close stamps the recording's end time and final result count. The
// underlying store stays open for further recordings.
func (r *Recording) Close() error {
	_, err := r.store.Exec(
		`UPDATE recordings SET ended_at = UNIXEPOCH('subsec'), result_count = ? WHERE id = ?`,
		r.seq, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalise recording %s: %w", r.ID, err)
	}
	return nil
}
