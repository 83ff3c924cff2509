package mpesa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTokenCache(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	cache := NewRedisTokenCache(rdb)

	mock.ExpectGet("mpesa:access_token").RedisNil()
	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("mpesa:access_token", "tok-1", 3539*time.Second).SetVal("OK")
	require.NoError(t, cache.Set(ctx, "tok-1", 3539*time.Second))

	mock.ExpectGet("mpesa:access_token").SetVal("tok-1")
	token, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)

	mock.ExpectGet("mpesa:access_token").SetErr(errors.New("connection refused"))
	_, _, err = cache.Get(ctx)
	assert.Error(t, err)

	mock.ExpectDel("mpesa:access_token").SetVal(1)
	require.NoError(t, cache.Delete(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryTokenCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryTokenCache()
	cache.now = func() time.Time { return now }

	_, ok, _ := cache.Get(ctx)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "tok", time.Minute))
	token, ok, _ := cache.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)

	now = now.Add(time.Minute)
	_, ok, _ = cache.Get(ctx)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "tok", time.Minute))
	require.NoError(t, cache.Delete(ctx))
	_, ok, _ = cache.Get(ctx)
	assert.False(t, ok)
}

func TestNewTokenCacheFallsBackToMemory(t *testing.T) {
	_, isMemory := NewTokenCache(nil).(*MemoryTokenCache)
	assert.True(t, isMemory)
}
