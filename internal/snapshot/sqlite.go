package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"gigboard/internal/model"
	"gigboard/migrations"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveListings replaces the listing snapshot of scope.
func (s *SQLite) SaveListings(ctx context.Context, scope string, records []model.Listing) error {
	data, err := encodeListings(records)
	if err != nil {
		return err
	}
	return s.put(ctx, kindListings, scope, data)
}

// LoadListings returns the listing snapshot of scope.
func (s *SQLite) LoadListings(ctx context.Context, scope string) (*Listings, error) {
	version, savedAt, data, err := s.get(ctx, kindListings, scope)
	if err != nil {
		return nil, err
	}
	records, err := decodeListings(data)
	if err != nil {
		return nil, err
	}
	return &Listings{Version: version, Scope: scope, SavedAt: savedAt, Records: records}, nil
}

// SaveCategories replaces the category snapshot.
func (s *SQLite) SaveCategories(ctx context.Context, cats []model.Category) error {
	data, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	return s.put(ctx, kindCategories, "", data)
}

// LoadCategories returns the category snapshot.
func (s *SQLite) LoadCategories(ctx context.Context) (*Categories, error) {
	version, savedAt, data, err := s.get(ctx, kindCategories, "")
	if err != nil {
		return nil, err
	}
	var cats []model.Category
	if err := json.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return &Categories{Version: version, SavedAt: savedAt, Records: cats}, nil
}

func (s *SQLite) put(ctx context.Context, kind, scope string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (kind, scope, version, saved_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kind, scope) DO UPDATE SET
		   version = excluded.version,
		   saved_at = excluded.saved_at,
		   payload = excluded.payload`,
		kind, scope, Version, s.now().UTC().Format(timeLayout), string(payload),
	)
	if err != nil {
		return fmt.Errorf("save %s snapshot: %w", kind, err)
	}
	return nil
}

func (s *SQLite) get(ctx context.Context, kind, scope string) (int, time.Time, []byte, error) {
	var (
		version int
		saved   string
		payload string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, saved_at, payload FROM snapshots WHERE kind = ? AND scope = ?`,
		kind, scope,
	).Scan(&version, &saved, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil, ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, nil, fmt.Errorf("load %s snapshot: %w", kind, err)
	}
	if version != Version {
		return 0, time.Time{}, nil, ErrNotFound
	}
	savedAt, _ := time.Parse(timeLayout, saved)
	return version, savedAt, []byte(payload), nil
}
