package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func idempotencyContract(t *testing.T, store IdempotencyStore) {
	ctx := context.Background()

	prior, err := store.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, prior)

	_, err = store.Begin(ctx, "k1")
	assert.True(t, errors.Is(err, ErrSubmissionInFlight))

	res := intake.SubmitResult{Success: true, RecordID: "r1", AuthorizationToken: "t1"}
	require.NoError(t, store.Complete(ctx, "k1", res))

	prior, err = store.Begin(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, res, *prior)

	_, err = store.Begin(ctx, "k2")
	require.NoError(t, err)
	require.NoError(t, store.Abandon(ctx, "k2"))
	prior, err = store.Begin(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, prior, "abandoned key should be claimable again")
}

func TestRedisIdempotencyStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisIdempotencyStore(client, time.Hour)
	idempotencyContract(t, store)

	assert.True(t, mr.Exists("idem:intake:k1"))
	mr.FastForward(2 * time.Hour)
	prior, err := store.Begin(context.Background(), "k1")
	require.NoError(t, err)
	assert.Nil(t, prior, "expired key should be claimable")
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Hour)
	idempotencyContract(t, store)

	now := time.Now()
	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	prior, err := store.Begin(context.Background(), "k1")
	require.NoError(t, err)
	assert.Nil(t, prior)
}
