package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document is one stored slot row.
type Document struct {
	Slot      string
	Body      []byte
	UpdatedAt time.Time
}

func InitDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Writes are whole-document replacements; one connection keeps them ordered.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			slot TEXT PRIMARY KEY NOT NULL,
			body BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating documents table: %w", err)
	}

	return db, nil
}

func UpsertDocument(ctx context.Context, db *sql.DB, slot string, body []byte) error {
	query := `
		INSERT INTO documents (slot, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at;
	`
	_, err := db.ExecContext(ctx, query, slot, body)
	if err != nil {
		return fmt.Errorf("failed to upsert document '%s': %w", slot, err)
	}
	return nil
}

func GetDocument(ctx context.Context, db *sql.DB, slot string) (*Document, error) {
	row := db.QueryRowContext(ctx, `SELECT slot, body, updated_at FROM documents WHERE slot = ?`, slot)

	var doc Document
	err := row.Scan(&doc.Slot, &doc.Body, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get document '%s': %w", slot, err)
	}
	return &doc, nil
}

// SQLite is a slot backend on top of a sqlite file.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, slot string) ([]byte, bool, error) {
	doc, err := GetDocument(ctx, s.db, slot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc.Body, true, nil
}

func (s *SQLite) Save(ctx context.Context, slot string, data []byte) error {
	return UpsertDocument(ctx, s.db, slot, data)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
