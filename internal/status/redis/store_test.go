package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacrawler/internal/status"
)

type fakeKV struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Set(_ context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return goredis.NewStatusResult("", f.failSet)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(val, nil)
}

func (f *fakeKV) Close() error { return nil }

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	store := newStore(kv, "", time.Hour)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, status.RunStatus{
		RunID:     "run-7",
		State:     status.StateRunning,
		StartedAt: started,
		Fetched:   3,
	}))
	require.Equal(t, time.Hour, kv.ttls[DefaultPrefix+"run-7"])

	got, err := store.Get(ctx, "run-7")
	require.NoError(t, err)
	require.Equal(t, status.StateRunning, got.State)
	require.Equal(t, 3, got.Fetched)
	require.True(t, started.Equal(got.StartedAt))
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := newStore(newFakeKV(), "test:", 0)
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, status.ErrNotFound)
}

func TestStoreGetCorrupt(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	kv.data["test:bad"] = "{not json"
	store := newStore(kv, "test:", 0)
	_, err := store.Get(context.Background(), "bad")
	require.Error(t, err)
	require.NotErrorIs(t, err, status.ErrNotFound)
}

func TestStorePutErrors(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	kv.failSet = errors.New("connection refused")
	store := newStore(kv, "", 0)

	require.Error(t, store.Put(context.Background(), status.RunStatus{}))
	err := store.Put(context.Background(), status.RunStatus{RunID: "r"})
	require.ErrorContains(t, err, "connection refused")
}

func TestNewRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Options{})
	require.Error(t, err)
}
