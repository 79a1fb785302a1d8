// Package store archives finished session transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"speech-transcript-service/internal/observability/logging"
)

// ErrNotFound is returned when a session is not in the archive.
var ErrNotFound = errors.New("session not found")

// Session is one archived listening session.
type Session struct {
	ID         string
	Language   string
	Text       string
	Confidence *float64
	Segments   int
	StartedAt  time.Time
	EndedAt    time.Time
}

// Config controls the archive location and retention.
type Config struct {
	Path      string
	Retention time.Duration // zero keeps everything
}

// Archive wraps a SQLite-backed session archive.
type Archive struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
	clock  func() time.Time
}

// Open creates or opens the archive and prunes expired sessions.
func Open(ctx context.Context, cfg Config) (*Archive, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	a := &Archive{
		db:     db,
		cfg:    cfg,
		logger: logging.WithComponent("archive"),
		clock:  time.Now,
	}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := a.Prune(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Archive prune on open failed")
	}

	a.logger.Info().
		Str("path", cfg.Path).
		Dur("retention", cfg.Retention).
		Msg("Session archive opened")
	return a, nil
}

func (a *Archive) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    language TEXT NOT NULL,
    transcript TEXT NOT NULL,
    confidence REAL,
    segments INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);
`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save writes s, replacing an earlier record with the same id.
func (a *Archive) Save(ctx context.Context, s Session) error {
	if s.EndedAt.IsZero() {
		s.EndedAt = a.clock()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = s.EndedAt
	}
	var conf sql.NullFloat64
	if s.Confidence != nil {
		conf = sql.NullFloat64{Float64: *s.Confidence, Valid: true}
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, language, transcript, confidence, segments, started_at, ended_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   language=excluded.language, transcript=excluded.transcript, confidence=excluded.confidence,
		   segments=excluded.segments, ended_at=excluded.ended_at`,
		s.ID, s.Language, s.Text, conf, s.Segments, s.StartedAt.UnixMilli(), s.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// Get returns one archived session.
func (a *Archive) Get(ctx context.Context, id string) (Session, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT session_id, language, transcript, confidence, segments, started_at, ended_at
		 FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, err
}

// List returns up to limit sessions, most recently ended first.
func (a *Archive) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT session_id, language, transcript, confidence, segments, started_at, ended_at
		 FROM sessions ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes sessions that ended before the retention window.
func (a *Archive) Prune(ctx context.Context) error {
	if a.cfg.Retention <= 0 {
		return nil
	}
	cutoff := a.clock().Add(-a.cfg.Retention).UTC()
	res, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE ended_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		a.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned archived sessions")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (Session, error) {
	var (
		s     Session
		conf  sql.NullFloat64
		start int64
		end   int64
	)
	if err := r.Scan(&s.ID, &s.Language, &s.Text, &conf, &s.Segments, &start, &end); err != nil {
		return Session{}, err
	}
	if conf.Valid {
		v := conf.Float64
		s.Confidence = &v
	}
	s.StartedAt = time.UnixMilli(start).UTC()
	s.EndedAt = time.UnixMilli(end).UTC()
	return s, nil
}
