package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding render session history.
type Store struct {
	conn *pgx.Conn
}

// Session is one recorded render run.
type Session struct {
	ID          string
	Mode        string
	Model       string
	Background  string
	Width       int
	Height      int
	StartedAt   time.Time
	FinishedAt  *time.Time
	Frames      int
	MeanFrameMs float64
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS render_sessions (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			model TEXT NOT NULL,
			background TEXT NOT NULL DEFAULT '',
			width INT NOT NULL,
			height INT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			frames INT NOT NULL DEFAULT 0,
			mean_frame_ms DOUBLE PRECISION NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS render_sessions_started_at_idx ON render_sessions (started_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// StartSession records the beginning of a render run.
func (s *Store) StartSession(ctx context.Context, sess Session) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO render_sessions (id, mode, model, background, width, height, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, sess.ID, sess.Mode, sess.Model, sess.Background, sess.Width, sess.Height)
	return err
}

// FinishSession stores the final frame count and mean per-frame processing time.
func (s *Store) FinishSession(ctx context.Context, id string, frames int, meanFrameMs float64) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE render_sessions SET finished_at = NOW(), frames = $2, mean_frame_ms = $3 WHERE id = $1
	`, id, frames, meanFrameMs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("render session %s not found", id)
	}
	return nil
}

// ListSessions returns the most recent sessions first. A non-positive limit returns all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `
		SELECT id, mode, model, background, width, height, started_at, finished_at, frames, mean_frame_ms
		FROM render_sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var r Session
		if err := rows.Scan(&r.ID, &r.Mode, &r.Model, &r.Background, &r.Width, &r.Height,
			&r.StartedAt, &r.FinishedAt, &r.Frames, &r.MeanFrameMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS render_sessions CASCADE;`)
	return err
}
