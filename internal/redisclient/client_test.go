package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests; set TEST_REDIS_ADDR to run them.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis")
	}
	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestObserveSaleFlagsRepeatAmount(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	loc := uuid.New().String()

	dup, err := c.ObserveSale(ctx, loc, 2500)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = c.ObserveSale(ctx, loc, 2500)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = c.ObserveSale(ctx, loc, 2501)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestLockIsExclusiveAndReleasable(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	name := "test-" + uuid.New().String()

	lock, ok, err := c.AcquireLock(ctx, name, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, name, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, lock))

	again, ok, err := c.AcquireLock(ctx, name, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.ReleaseLock(ctx, again))
}
