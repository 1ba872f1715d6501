package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_RoundTrip(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	_, err = c.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_EvictsExpiredOnRead(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// The expired entry is removed, not just hidden until the next sweep.
	c.mu.RLock()
	_, present := c.data["k"]
	c.mu.RUnlock()
	assert.False(t, present)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "embed:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "embed:b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "other:c", []byte("3"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "embed:"))

	_, err := c.Get(ctx, "embed:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "other:c")
	assert.NoError(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a:b:c", Key("a", "b", "c"))
}
