// Package history records conversions in a sqlite database.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// DefaultListLimit is used by List when no limit is given.
const DefaultListLimit = 50

// Possible errors.
var (
	ErrNotFound = errors.New("history: conversion not found")
	ErrCorrupt  = errors.New("history: stored script does not match its digest")
)

// Entry is a recorded conversion.
type Entry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// Name is the source image name.
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Commands int    `json:"commands"`
	// Digest is the hex SHA-256 of the script.
	Digest string `json:"digest"`
	// Script is only set when recording.
	Script string `json:"-"`
}

// Store is a conversion history. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: empty db path")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, enc: enc, dec: dec}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			digest TEXT NOT NULL,
			script BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_digest ON conversions(digest);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Digest returns the hex SHA-256 of script.
func Digest(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

// Record stores a conversion and returns it with its ID, timestamp and digest
// filled in.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.Digest = Digest(e.Script)

	compressed := s.enc.EncodeAll([]byte(e.Script), nil)

	res, err := s.db.ExecContext(ctx, `INSERT INTO conversions
		(created_at, name, size, commands, digest, script)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.CreatedAt.Format(time.RFC3339Nano), e.Name, e.Size, e.Commands,
		e.Digest, compressed)
	if err != nil {
		return Entry{}, fmt.Errorf("history: Record: %w", err)
	}

	e.ID, err = res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("history: Record: %w", err)
	}

	e.Script = ""
	return e, nil
}

// List returns up to limit conversions, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, name, size,
		commands, digest FROM conversions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: List: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("history: List: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: List: %w", err)
	}

	return entries, nil
}

// Get returns the conversion with the given ID, without its script.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, name, size,
		commands, digest FROM conversions WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("history: %d: %w", id, ErrNotFound)
	} else if err != nil {
		return Entry{}, fmt.Errorf("history: Get: %w", err)
	}

	return e, nil
}

// Script returns the script of the conversion with the given ID.
func (s *Store) Script(ctx context.Context, id int64) (string, error) {
	var digest string
	var compressed []byte

	err := s.db.QueryRowContext(ctx, `SELECT digest, script FROM conversions
		WHERE id = ?`, id).Scan(&digest, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("history: %d: %w", id, ErrNotFound)
	} else if err != nil {
		return "", fmt.Errorf("history: Script: %w", err)
	}

	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("history: %d: %v: %w", id, err, ErrCorrupt)
	}

	script := string(data)
	if Digest(script) != digest {
		return "", fmt.Errorf("history: %d: %w", id, ErrCorrupt)
	}

	return script, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var createdAt string

	err := sc.Scan(&e.ID, &createdAt, &e.Name, &e.Size, &e.Commands, &e.Digest)
	if err != nil {
		return Entry{}, err
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, err
	}

	return e, nil
}
