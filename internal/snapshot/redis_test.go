package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/go-cmp/cmp"
)

func TestRedisListings(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	r := NewRedisWithClient(client)
	r.TTL = time.Hour
	saved := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return saved }

	records := sampleListings()
	payload, err := encodeListings(records)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	value, err := json.Marshal(envelope{Version: Version, SavedAt: saved, Payload: payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.ExpectSet("gigboard:snapshot:listings:public", string(value), time.Hour).SetVal("OK")
	mock.ExpectGet("gigboard:snapshot:listings:public").SetVal(string(value))
	mock.ExpectGet("gigboard:snapshot:listings:mine:3").RedisNil()

	if err := r.SaveListings(ctx, "public", records); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := r.LoadListings(ctx, "public")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Listings{Version: Version, Scope: "public", SavedAt: saved, Records: records}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.LoadListings(ctx, "mine:3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisCategoriesVersion(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	r := NewRedisWithClient(client)

	stale, _ := json.Marshal(envelope{Version: Version + 1, Payload: json.RawMessage(`[]`)})
	mock.ExpectGet("gigboard:snapshot:categories").SetVal(string(stale))
	mock.ExpectGet("gigboard:snapshot:categories").SetErr(errors.New("connection refused"))

	if _, err := r.LoadCategories(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign version, got %v", err)
	}
	_, err := r.LoadCategories(ctx)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected transport error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
