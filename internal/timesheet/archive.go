package timesheet

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists the most recent snapshot to a local sqlite database so a
// restarted process can serve requests before its first live fetch.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (or creates) the snapshot archive at path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to archive: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fetched_at DATETIME NOT NULL,
			row_count INTEGER NOT NULL,
			columns TEXT NOT NULL,
			rows TEXT NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := a.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// Save archives snap, replacing any earlier snapshots. Only the latest fetch
// cycle is kept; the archive is a restart convenience, not a history.
func (a *Archive) Save(snap *Snapshot) error {
	cols, err := json.Marshal(snap.Table.Columns)
	if err != nil {
		return fmt.Errorf("marshaling columns: %w", err)
	}
	rows, err := json.Marshal(snap.Table.Rows)
	if err != nil {
		return fmt.Errorf("marshaling rows: %w", err)
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning archive write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshots"); err != nil {
		return fmt.Errorf("clearing old snapshots: %w", err)
	}
	_, err = tx.Exec(
		"INSERT INTO snapshots (fetched_at, row_count, columns, rows) VALUES (?, ?, ?, ?)",
		snap.FetchedAt.UTC().Format(time.RFC3339), snap.Table.Len(), string(cols), string(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return tx.Commit()
}

// LoadLatest returns the archived snapshot, or nil, nil when the archive is
// empty.
func (a *Archive) LoadLatest() (*Snapshot, error) {
	var fetchedStr, cols, rows string
	err := a.db.QueryRow(
		"SELECT fetched_at, columns, rows FROM snapshots ORDER BY id DESC LIMIT 1",
	).Scan(&fetchedStr, &cols, &rows)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	t := &Table{}
	if err := json.Unmarshal([]byte(cols), &t.Columns); err != nil {
		return nil, fmt.Errorf("parsing archived columns: %w", err)
	}
	if err := json.Unmarshal([]byte(rows), &t.Rows); err != nil {
		return nil, fmt.Errorf("parsing archived rows: %w", err)
	}

	fetchedAt, err := time.Parse(time.RFC3339, fetchedStr)
	if err != nil {
		fetchedAt = time.Time{}
	}
	return &Snapshot{Table: t, FetchedAt: fetchedAt}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
