package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"gigboard/internal/model"
)

var ignoreSavedAt = cmpopts.IgnoreFields(Listings{}, "SavedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleListings() []model.Listing {
	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	return []model.Listing{
		{
			ID: 1, Title: "Algebra", Budget: 1500, BudgetPeriod: model.PeriodHourly,
			Location: "Buea", Status: model.StatusOpen, CategoryID: 2,
			Category:         &model.Category{ID: 2, Name: "Mathematics"},
			ApplicationCount: 4, CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: 2, Title: "French", Budget: 3000, BudgetPeriod: model.PeriodWeekly,
			Location: "Online", Status: model.StatusPending, CreatedAt: created, UpdatedAt: created,
		},
	}
}

func TestListingSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	if _, err := s.LoadListings(ctx, "public"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	records := sampleListings()
	if err := s.SaveListings(ctx, "public", records); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadListings(ctx, "public")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Listings{Version: Version, Scope: "public", Records: records}
	if diff := cmp.Diff(want, got, ignoreSavedAt); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if !got.SavedAt.Equal(s.now()) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, s.now())
	}

	// Overwritten wholesale, other scopes untouched.
	if err := s.SaveListings(ctx, "public", records[:1]); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = s.LoadListings(ctx, "public")
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if diff := cmp.Diff(1, len(got.Records)); diff != "" {
		t.Errorf("record count mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.LoadListings(ctx, "mine:3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected other scope to be empty, got %v", err)
	}
}

func TestCategorySnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	cats := []model.Category{{ID: 1, Name: "Mathematics"}, {ID: 2, Name: "Languages", Description: "Spoken"}}
	if err := s.SaveCategories(ctx, cats); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadCategories(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(cats, got.Records); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestStaleVersionIgnored(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.SaveListings(ctx, "public", sampleListings()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE snapshots SET version = ?`, Version+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if _, err := s.LoadListings(ctx, "public"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign version, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{backend: "none"},
		{backend: "sqlite"},
		{backend: "memcached", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(context.Background(), tt.backend, ":memory:", "")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			_ = s.Close()
		})
	}
}
