// Package redis stores run status records in Redis as JSON documents with a
// TTL, so several ops servers can report on the same runs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/yacrawler/internal/status"
)

// DefaultPrefix namespaces status keys.
const DefaultPrefix = "yacrawler:run:"

// kv is the subset of the go-redis client the store uses.
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
	Close() error
}

// Store is a status.Store backed by Redis.
type Store struct {
	client kv
	prefix string
	ttl    time.Duration
}

// Options configures New.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires records; zero keeps them forever.
	TTL time.Duration
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return newStore(client, opts.Prefix, opts.TTL), nil
}

func newStore(client kv, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Put implements status.Store.
func (s *Store) Put(ctx context.Context, st status.RunStatus) error {
	if st.RunID == "" {
		return errors.New("run id is required")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal run status: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+st.RunID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", st.RunID, err)
	}
	return nil
}

// Get implements status.Store. Missing keys map to status.ErrNotFound.
func (s *Store) Get(ctx context.Context, runID string) (status.RunStatus, error) {
	val, err := s.client.Get(ctx, s.prefix+runID).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return status.RunStatus{}, status.ErrNotFound
		}
		return status.RunStatus{}, fmt.Errorf("redis get %s: %w", runID, err)
	}
	var st status.RunStatus
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return status.RunStatus{}, fmt.Errorf("decode run status %s: %w", runID, err)
	}
	return st, nil
}
