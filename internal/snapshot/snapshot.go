// Package snapshot keeps the last successfully fetched listings and
// categories as a cold-start fallback. Snapshots are overwritten wholesale
// and are never authoritative.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gigboard/internal/model"
)

// Version is the current snapshot format. Snapshots written with another
// version are treated as missing.
const Version = 1

// ErrNotFound is returned when no usable snapshot exists.
var ErrNotFound = errors.New("snapshot not found")

// Listings is the saved listing set of one scope.
type Listings struct {
	Version int
	Scope   string
	SavedAt time.Time
	Records []model.Listing
}

// Categories is the saved category list.
type Categories struct {
	Version int
	SavedAt time.Time
	Records []model.Category
}

// Store is the interface for snapshot persistence.
type Store interface {
	SaveListings(ctx context.Context, scope string, records []model.Listing) error
	LoadListings(ctx context.Context, scope string) (*Listings, error)
	SaveCategories(ctx context.Context, cats []model.Category) error
	LoadCategories(ctx context.Context) (*Categories, error)
	Close() error
}

// Snapshot kinds, used as keys by the backends.
const (
	kindListings   = "listings"
	kindCategories = "categories"
)

// record keeps the derived application count, which a listing's own JSON
// form does not carry.
type record struct {
	Listing          model.Listing `json:"listing"`
	ApplicationCount int           `json:"application_count"`
}

func encodeListings(records []model.Listing) ([]byte, error) {
	out := make([]record, len(records))
	for i, l := range records {
		out[i] = record{Listing: l, ApplicationCount: l.ApplicationCount}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode listings: %w", err)
	}
	return data, nil
}

func decodeListings(data []byte) ([]model.Listing, error) {
	var in []record
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	out := make([]model.Listing, len(in))
	for i, r := range in {
		out[i] = r.Listing
		out[i].ApplicationCount = r.ApplicationCount
	}
	return out, nil
}

// envelope is the on-disk form shared by the key/value backends.
type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Payload json.RawMessage `json:"payload"`
}

// Nop is a Store that keeps nothing.
type Nop struct{}

var _ Store = Nop{}

func (Nop) SaveListings(context.Context, string, []model.Listing) error { return nil }

func (Nop) LoadListings(context.Context, string) (*Listings, error) { return nil, ErrNotFound }

func (Nop) SaveCategories(context.Context, []model.Category) error { return nil }

func (Nop) LoadCategories(context.Context) (*Categories, error) { return nil, ErrNotFound }

func (Nop) Close() error { return nil }

// Open returns the Store for backend: "sqlite", "redis" or "none".
func Open(ctx context.Context, backend, databasePath, redisURL string) (Store, error) {
	switch backend {
	case "", "sqlite":
		return NewSQLite(databasePath)
	case "redis":
		return NewRedis(ctx, redisURL)
	case "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", backend)
}
