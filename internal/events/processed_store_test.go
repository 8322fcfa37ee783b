package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProcessedStore(t *testing.T) {
	store := NewMemoryProcessedStore(time.Hour)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok, "first sighting should be new")

	ok, err = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.False(t, ok, "second sighting should be a duplicate")

	ok, err = store.MarkProcessed(ctx, "other", "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok, "providers are independent")

	now = now.Add(2 * time.Hour)
	ok, err = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok, "expired id should be accepted again")
}

func TestMemoryProcessedStoreSweepsExpired(t *testing.T) {
	store := NewMemoryProcessedStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < sweepEvery-1; i++ {
		_, _ = store.MarkProcessed(ctx, ProviderWhatsApp, time.Duration(i).String())
	}
	now = now.Add(time.Hour)
	_, _ = store.MarkProcessed(ctx, ProviderWhatsApp, "trigger")
	assert.Equal(t, 1, store.Len())
}

func TestMemoryProcessedStoreNoTTL(t *testing.T) {
	store := NewMemoryProcessedStore(0)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.forever")
	assert.True(t, ok)
	now = now.Add(365 * 24 * time.Hour)
	ok, _ = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.forever")
	assert.False(t, ok)
}

func TestRedisProcessedStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisProcessedStore(client, time.Minute)
	ctx := context.Background()

	ok, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("processed_event:whatsapp:wamid.2"))
	assert.Equal(t, time.Minute, mr.TTL("processed_event:whatsapp:wamid.2"))

	ok, err = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.2")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisProcessedStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	store := NewRedisProcessedStore(client, time.Minute)
	_, err := store.MarkProcessed(context.Background(), ProviderWhatsApp, "wamid.3")
	require.Error(t, err)
}

func TestPostgresProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresProcessedStoreWithExec(mock, 24*time.Hour)
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS processed_events").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(ctx))

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs(ProviderWhatsApp, "wamid.new", float64(86400)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.new")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs(ProviderWhatsApp, "wamid.new", float64(86400)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.new")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs(ProviderWhatsApp, "wamid.err", float64(86400)).
		WillReturnError(errors.New("connection reset"))
	_, err = store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.err")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
