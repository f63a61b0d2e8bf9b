// Package history persists analysis results per project folder and builds the
// prompt context used by later runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nakatsu/shirabe/internal/models"
)

// maxEntriesPerFolder caps how much history one project folder accumulates.
const maxEntriesPerFolder = 50

// Store is the SQLite-backed history store.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		analyzed_at TEXT NOT NULL,
		document_type TEXT,
		summary TEXT NOT NULL,
		issues TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_folder ON analysis_history(folder);
	CREATE INDEX IF NOT EXISTS idx_history_analyzed_at ON analysis_history(analyzed_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Save stores entry, replacing any older entry for the same file name within
// the same folder, and prunes the folder to the newest entries.
func (s *Store) Save(ctx context.Context, entry *models.HistoryEntry) error {
	issuesJSON, err := json.Marshal(entry.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM analysis_history WHERE folder = ? AND file_name = ?`,
		entry.Folder, entry.FileName,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_history (folder, file_path, file_name, analyzed_at, document_type, summary, issues)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Folder, entry.FilePath, entry.FileName, entry.AnalyzedAt,
		entry.DocumentType, entry.Summary, string(issuesJSON),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM analysis_history WHERE folder = ? AND id NOT IN (
			SELECT id FROM analysis_history WHERE folder = ? ORDER BY id DESC LIMIT ?
		)`,
		entry.Folder, entry.Folder, maxEntriesPerFolder,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ByFolder returns the entries for one project folder in insertion order.
func (s *Store) ByFolder(ctx context.Context, folder string) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT folder, file_path, file_name, analyzed_at, document_type, summary, issues
		 FROM analysis_history WHERE folder = ? ORDER BY id ASC`, folder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// All returns every entry across folders, newest first.
func (s *Store) All(ctx context.Context) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT folder, file_path, file_name, analyzed_at, document_type, summary, issues
		 FROM analysis_history ORDER BY analyzed_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the newest limit entries across folders.
func (s *Store) Recent(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT folder, file_path, file_name, analyzed_at, document_type, summary, issues
		 FROM analysis_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*models.HistoryEntry, error) {
	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var docType sql.NullString
		var issuesJSON sql.NullString
		if err := rows.Scan(&e.Folder, &e.FilePath, &e.FileName, &e.AnalyzedAt,
			&docType, &e.Summary, &issuesJSON); err != nil {
			return nil, err
		}
		e.DocumentType = docType.String
		if issuesJSON.Valid && issuesJSON.String != "" {
			if err := json.Unmarshal([]byte(issuesJSON.String), &e.Issues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
