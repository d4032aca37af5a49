package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: users and their alert state
	`CREATE TABLE IF NOT EXISTS users (
		id                 TEXT PRIMARY KEY,
		username           TEXT NOT NULL UNIQUE,
		email              TEXT NOT NULL DEFAULT '',
		password_hash      TEXT NOT NULL DEFAULT '',
		mode               TEXT NOT NULL DEFAULT 'Low',
		age                INTEGER,
		conditions         TEXT NOT NULL DEFAULT '',
		joined_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		telegram_chat_id   TEXT NOT NULL DEFAULT '',
		latitude           REAL,
		longitude          REAL,
		last_alert_at      TEXT NOT NULL DEFAULT '',
		last_alert_reasons TEXT NOT NULL DEFAULT '',
		last_alert_summary TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_users_chat ON users(telegram_chat_id);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		if err := applyMigration(db, i+1, migrations[i]); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(db *sql.DB, version int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("run migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
