package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteTaskStore is the alternate TaskStore backend: completed tasks in
// a single table instead of a JSON snapshot file. Save replaces the full
// table contents inside one transaction, preserving the same
// atomic-rewrite-on-every-change semantics as JSONTaskStore.
type SQLiteTaskStore struct {
	db *sql.DB
}

// NewSQLiteTaskStore opens (creating if absent) the sqlite database at
// path and ensures the tasks table exists.
func NewSQLiteTaskStore(path string) (*SQLiteTaskStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no internal connection pooling guarantees for writers

	const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	software_name TEXT NOT NULL,
	version TEXT NOT NULL,
	bundle_id TEXT NOT NULL,
	account_hash TEXT NOT NULL,
	file_path TEXT NOT NULL,
	created_at TEXT NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &SQLiteTaskStore{db: db}, nil
}

func (s *SQLiteTaskStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteTaskStore) Load() ([]PersistedTask, error) {
	rows, err := s.db.Query(`SELECT id, software_name, version, bundle_id, account_hash, file_path, created_at FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("storage: query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []PersistedTask
	for rows.Next() {
		var t PersistedTask
		var createdAt string
		if err := rows.Scan(&t.ID, &t.SoftwareName, &t.Version, &t.BundleID, &t.AccountHash, &t.FilePath, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan task row: %w", err)
		}
		if err := t.CreatedAt.UnmarshalText([]byte(createdAt)); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteTaskStore) Save(tasks []PersistedTask) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("storage: clear tasks: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO tasks (id, software_name, version, bundle_id, account_hash, file_path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		createdAt, err := t.CreatedAt.MarshalText()
		if err != nil {
			return fmt.Errorf("storage: marshal created_at: %w", err)
		}
		if _, err := stmt.Exec(t.ID, t.SoftwareName, t.Version, t.BundleID, t.AccountHash, t.FilePath, string(createdAt)); err != nil {
			return fmt.Errorf("storage: insert task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}
