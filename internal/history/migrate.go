package history

import (
	"database/sql"
	"fmt"
	"log/slog"
)

const schemaVersion = 1

type migration struct {
	Version     int
	Description string
	SQL         string
}

// Each migration is applied exactly once, tracked in the schema_version table.
// Append new versions; never edit an applied one.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: deliveries",
		SQL: `
		CREATE TABLE IF NOT EXISTS deliveries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id  TEXT NOT NULL UNIQUE,
			channel     TEXT NOT NULL,
			chat_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			error       TEXT DEFAULT '',
			duration_ms INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_time ON deliveries(created_at);
		CREATE INDEX IF NOT EXISTS idx_deliveries_chat ON deliveries(channel, chat_id, created_at);
		`,
	},
}

// RunMigrations applies all pending schema migrations, each in its own
// transaction.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := apply(db, m); err != nil {
			return err
		}
		logger.Info("migration applied", "version", m.Version)
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration v%d: %w", m.Version, err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.Version, err)
	}
	return nil
}

// GetSchemaVersion returns the highest applied migration, 0 for a fresh db.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}
