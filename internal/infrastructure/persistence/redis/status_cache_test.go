package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboxon/student-app/internal/domain/report"
)

// unreachable points at a port nothing listens on.
func unreachable() *Cache {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewCacheWithClient(client, "test:")
}

func TestStatusKey(t *testing.T) {
	key := report.NewKey("s1", time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "status:s1/2024-01-08", StatusKey(key))
	assert.Equal(t, "test:status:s1/2024-01-08", unreachable().Key(StatusKey(key)))
}

func TestNewCache_FailsFastWhenUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = -1

	_, err := NewCache(cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestStatusCache_SurfacesConnectionErrors(t *testing.T) {
	cache := unreachable()
	defer cache.Close()
	sc := NewStatusCache(cache)
	ctx := context.Background()
	key := report.NewKey("s1", time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC))

	_, ok, err := sc.Get(ctx, key)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, sc.Set(ctx, key, report.StatusEntry{Status: report.StatusPartial}))
	assert.Error(t, sc.Delete(ctx, key))
}

func TestCache_ArgumentChecks(t *testing.T) {
	cache := unreachable()
	defer cache.Close()
	ctx := context.Background()

	assert.ErrorIs(t, cache.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, cache.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.NoError(t, cache.Delete(ctx))
	assert.ErrorIs(t, cache.DeleteByPattern(ctx, ""), ErrCacheKeyEmpty)
}

func TestStatusEntryEncoding(t *testing.T) {
	entry := report.StatusEntry{Status: report.StatusComplete, Reported: 3 * time.Hour, Required: 2 * time.Hour}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"complete"`)

	var back report.StatusEntry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, entry, back)
}
