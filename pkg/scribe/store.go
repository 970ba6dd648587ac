package scribe

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sproutlab/bud/pkg/errorsx"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	wake_score  REAL NOT NULL,
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS exchanges (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL REFERENCES sessions(id),
	turn             INTEGER NOT NULL,
	question         TEXT NOT NULL,
	answer           TEXT NOT NULL,
	transcription_ms INTEGER NOT NULL,
	llm_ms           INTEGER NOT NULL,
	tts_ms           INTEGER NOT NULL,
	total_ms         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
`

// Store archives conversations in SQLite. Opening creates the database and
// schema when they do not exist yet.
type Store struct {
	db *sql.DB
}

var _ Sink = (*Store)(nil)

func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Close() error {
	return s.db.Close()
}

// StoreSession writes the session row and its exchanges in one transaction.
func (s *Store) StoreSession(ctx context.Context, rec SessionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonScribeStore)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, wake_score, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.WakeScore, rec.WakeAt.UnixMilli(), rec.EndedAt.UnixMilli(), rec.DurationMS())
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonScribeStore)
	}

	// replaying a session replaces its exchanges rather than appending
	if _, err := tx.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, rec.ID); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonScribeStore)
	}

	for i, ex := range rec.Exchanges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO exchanges (session_id, turn, question, answer,
				transcription_ms, llm_ms, tts_ms, total_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, i+1, ex.Question, ex.Answer,
			ex.TranscriptionMS, ex.LLMMS, ex.TTSMS, ex.TotalMS)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonScribeStore)
		}
	}
	if err := tx.Commit(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonScribeStore)
	}
	return nil
}

// Count reports how many sessions have been archived.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// RecentSessions returns up to limit sessions, newest first, exchanges
// included.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wake_score, started_at, ended_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var recs []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var started, ended int64
		if err := rows.Scan(&rec.ID, &rec.WakeScore, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.WakeAt = time.UnixMilli(started)
		rec.EndedAt = time.UnixMilli(ended)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range recs {
		if err := s.loadExchanges(ctx, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *Store) loadExchanges(ctx context.Context, rec *SessionRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question, answer, transcription_ms, llm_ms, tts_ms, total_ms
		FROM exchanges
		WHERE session_id = ?
		ORDER BY turn ASC
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.Question, &ex.Answer,
			&ex.TranscriptionMS, &ex.LLMMS, &ex.TTSMS, &ex.TotalMS); err != nil {
			return fmt.Errorf("scan exchange: %w", err)
		}
		rec.Exchanges = append(rec.Exchanges, ex)
	}
	return rows.Err()
}
