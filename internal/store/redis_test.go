package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/facemood/internal/emotion"
)

func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_LatestNotFound(t *testing.T) {
	store, _ := setupRedisStore(t)

	_, err := store.Latest(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_UpsertLastWriteWins(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.UpsertLatest(ctx, "carol", emotion.Fear, t0))
	require.NoError(t, store.UpsertLatest(ctx, "carol", emotion.Happy, t0.Add(2*time.Second)))
	require.NoError(t, store.UpsertLatest(ctx, "carol", emotion.Sad, t0.Add(time.Second)))

	got, err := store.Latest(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", got.Subject)
	assert.Equal(t, emotion.Happy, got.Label)
	assert.True(t, got.ObservedAt.Equal(t0.Add(2*time.Second)))
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store, mr := setupRedisStore(t, WithPrefix("moods"))
	ctx := context.Background()

	require.NoError(t, store.UpsertLatest(ctx, "dave", emotion.Neutral, time.Now()))
	assert.True(t, mr.Exists("moods:subject:dave"))
	assert.Equal(t, "neutral", mr.HGet("moods:subject:dave", "emotion"))
}

func TestRedisStore_EventsNewestFirst(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.AppendObservation(ctx, Observation{Label: emotion.Angry, ObservedAt: base}))
	require.NoError(t, store.AppendObservation(ctx, Observation{Subject: "erin", Label: emotion.Disgust, ObservedAt: base.Add(time.Second)}))

	got, err := store.RecentObservations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, emotion.Disgust, got[0].Label)
	assert.Equal(t, "erin", got[0].Subject)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, emotion.Angry, got[1].Label)
	assert.True(t, got[1].ObservedAt.Equal(base))
}
