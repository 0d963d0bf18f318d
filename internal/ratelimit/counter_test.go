package ratelimit

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisCounter_Allow(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	ctr := NewRedisCounter(client, "test:ctr:", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := ctr.Allow(ctx, "reset:alice")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d should be allowed", i+1)
	}

	ok, err := ctr.Allow(ctx, "reset:alice")
	require.NoError(t, err)
	require.False(t, ok)

	// other keys are budgeted independently
	ok, err = ctr.Allow(ctx, "reset:bob")
	require.NoError(t, err)
	require.True(t, ok)
}
