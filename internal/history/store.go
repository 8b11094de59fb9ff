// Package history records handled mentions for observability. Delivery
// decisions never consult it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Web5design/MediaCrusher/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS replies (
	id         TEXT PRIMARY KEY,
	mention_id TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL,
	hash       TEXT NOT NULL DEFAULT '',
	reply      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replies_created_at ON replies(created_at);
CREATE INDEX IF NOT EXISTS idx_replies_outcome ON replies(outcome);
`

// Store persists reply records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite handles one writer at a time; serialize access through a
	// single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one reply record, assigning an ID when absent.
func (s *Store) Record(ctx context.Context, rec domain.ReplyRecord) error {
	if rec.ID == "" {
		rec.ID = "rec_" + uuid.New().String()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replies (id, mention_id, author, outcome, hash, reply, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MentionID, rec.Author, string(rec.Outcome), rec.Hash, rec.Reply, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reply record: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.ReplyRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mention_id, author, outcome, hash, reply, created_at
		 FROM replies ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	var records []domain.ReplyRecord
	for rows.Next() {
		var rec domain.ReplyRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.MentionID, &rec.Author, &outcome, &rec.Hash, &rec.Reply, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply record: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one record by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.ReplyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mention_id, author, outcome, hash, reply, created_at
		 FROM replies WHERE id = ?`, id)

	var rec domain.ReplyRecord
	var outcome string
	if err := row.Scan(&rec.ID, &rec.MentionID, &rec.Author, &outcome, &rec.Hash, &rec.Reply, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan reply record: %w", err)
	}
	rec.Outcome = domain.Outcome(outcome)
	return &rec, nil
}

// Stats returns reply counts grouped by outcome.
func (s *Store) Stats(ctx context.Context) (map[domain.Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM replies GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[domain.Outcome(outcome)] = count
	}
	return stats, rows.Err()
}
