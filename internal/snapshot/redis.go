package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gigboard/internal/model"
)

const keyPrefix = "gigboard:snapshot:"

// Redis implements Store on a Redis server. Each snapshot is one JSON value.
type Redis struct {
	client *redis.Client
	// TTL expires snapshots that are never refreshed. Zero keeps them forever.
	TTL time.Duration
	now func() time.Time
}

var _ Store = (*Redis)(nil)

// NewRedis connects to the server at url and pings it.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// SaveListings replaces the listing snapshot of scope.
func (r *Redis) SaveListings(ctx context.Context, scope string, records []model.Listing) error {
	data, err := encodeListings(records)
	if err != nil {
		return err
	}
	return r.put(ctx, listingsKey(scope), data)
}

// LoadListings returns the listing snapshot of scope.
func (r *Redis) LoadListings(ctx context.Context, scope string) (*Listings, error) {
	env, err := r.get(ctx, listingsKey(scope))
	if err != nil {
		return nil, err
	}
	records, err := decodeListings(env.Payload)
	if err != nil {
		return nil, err
	}
	return &Listings{Version: env.Version, Scope: scope, SavedAt: env.SavedAt, Records: records}, nil
}

// SaveCategories replaces the category snapshot.
func (r *Redis) SaveCategories(ctx context.Context, cats []model.Category) error {
	data, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	return r.put(ctx, keyPrefix+kindCategories, data)
}

// LoadCategories returns the category snapshot.
func (r *Redis) LoadCategories(ctx context.Context) (*Categories, error) {
	env, err := r.get(ctx, keyPrefix+kindCategories)
	if err != nil {
		return nil, err
	}
	var cats []model.Category
	if err := json.Unmarshal(env.Payload, &cats); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return &Categories{Version: env.Version, SavedAt: env.SavedAt, Records: cats}, nil
}

func listingsKey(scope string) string {
	return keyPrefix + kindListings + ":" + scope
}

func (r *Redis) put(ctx context.Context, key string, payload []byte) error {
	data, err := json.Marshal(envelope{Version: Version, SavedAt: r.now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, key, string(data), r.TTL).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, key string) (*envelope, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if env.Version != Version {
		return nil, ErrNotFound
	}
	return &env, nil
}
