// Package history keeps a SQLite log of handled messages and how they ended.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"linkrelay/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 20

// DSN is the modernc.org/sqlite data source for dbPath: WAL journaling and
// a five second busy timeout, applied on every new connection.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// SQLiteStore records delivery outcomes in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Record stores one delivery. A repeated request id is ignored.
func (s *SQLiteStore) Record(ctx context.Context, rec domain.DeliveryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (request_id, channel, chat_id, kind, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Channel, rec.ChatID, rec.Kind, rec.Outcome, rec.Error, rec.DurationMs, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", rec.RequestID, err)
	}
	return nil
}

// Recent returns the newest deliveries first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, channel, chat_id, kind, outcome, error, duration_ms, created_at
		 FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var rec domain.DeliveryRecord
		if err := rows.Scan(&rec.RequestID, &rec.Channel, &rec.ChatID, &rec.Kind,
			&rec.Outcome, &rec.Error, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByOutcome tallies every stored delivery by outcome.
func (s *SQLiteStore) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM deliveries GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
