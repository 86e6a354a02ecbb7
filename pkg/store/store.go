// Package store archives study sessions in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/study"
)

// Store implements study.Archive on a single pgx connection. pgx.Conn is not
// safe for concurrent use, so every query holds mu.
type Store struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// SessionSummary is a row of ListSessions.
type SessionSummary struct {
	ID       string
	Started  time.Time
	Ended    *time.Time
	Device   int
	Blinks   int
	Segments int
}

// New connects and creates the schema if needed.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func migrate(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blink_sessions (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			device INT NOT NULL,
			log_dir TEXT NOT NULL DEFAULT '',
			blinks INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS blink_segments (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES blink_sessions(id) ON DELETE CASCADE,
			task TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			blinks INT NOT NULL,
			rate DOUBLE PRECISION NOT NULL
		);
		CREATE TABLE IF NOT EXISTS blink_events (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES blink_sessions(id) ON DELETE CASCADE,
			at TIMESTAMPTZ NOT NULL,
			frame_seq INT NOT NULL,
			dip_frames INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS blink_segments_session_idx ON blink_segments (session_id);
		CREATE INDEX IF NOT EXISTS blink_events_session_idx ON blink_events (session_id);
	`)
	return err
}

// Close terminates the connection.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close(ctx)
}

// BeginSession inserts the session row. Re-running it for the same id
// clears the old segments and events.
func (s *Store) BeginSession(ctx context.Context, r study.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM blink_segments WHERE session_id = $1", r.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM blink_events WHERE session_id = $1", r.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO blink_sessions (id, started_at, device, log_dir)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET started_at = EXCLUDED.started_at, ended_at = NULL, blinks = 0
	`, r.ID, r.Started, r.Device, r.LogDir); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveSegment records a finished task segment.
func (s *Store) SaveSegment(ctx context.Context, r study.SegmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO blink_segments (session_id, task, started_at, ended_at, blinks, rate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.SessionID, r.Task, r.Started, r.Ended, r.Blinks, r.Rate)
	return err
}

// SaveBlink records one blink.
func (s *Store) SaveBlink(ctx context.Context, sessionID string, b blink.Blink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO blink_events (session_id, at, frame_seq, dip_frames)
		VALUES ($1, $2, $3, $4)
	`, sessionID, b.At, b.FrameSeq, b.DipFrames)
	return err
}

// EndSession stamps the end time and total blink count.
func (s *Store) EndSession(ctx context.Context, id string, ended time.Time, blinks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, "UPDATE blink_sessions SET ended_at = $2, blinks = $3 WHERE id = $1", id, ended, blinks)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT s.id, s.started_at, s.ended_at, s.device, s.blinks,
		       (SELECT COUNT(*) FROM blink_segments g WHERE g.session_id = s.id)
		FROM blink_sessions s
		ORDER BY s.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var r SessionSummary
		if err := rows.Scan(&r.ID, &r.Started, &r.Ended, &r.Device, &r.Blinks, &r.Segments); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Segments returns the segments of a session in order.
func (s *Store) Segments(ctx context.Context, sessionID string) ([]study.SegmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT task, started_at, ended_at, blinks, rate
		FROM blink_segments WHERE session_id = $1 ORDER BY started_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []study.SegmentRecord
	for rows.Next() {
		r := study.SegmentRecord{SessionID: sessionID}
		if err := rows.Scan(&r.Task, &r.Started, &r.Ended, &r.Blinks, &r.Rate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BlinkCount returns how many blink events a session has.
func (s *Store) BlinkCount(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM blink_events WHERE session_id = $1", sessionID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// DeleteSession removes a session with its segments and events.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, "DELETE FROM blink_sessions WHERE id = $1", id)
	return err
}

var _ study.Archive = (*Store)(nil)
