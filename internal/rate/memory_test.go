package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterEnforcesLimit(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.AllowWithLimits(ctx, "mfa:tech@taller.om", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, int64(3-i-1), res.Remaining)
	}

	res, err := l.AllowWithLimits(ctx, "mfa:tech@taller.om", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.AllowWithLimits(ctx, "sessions:a@taller.om", 2, time.Hour)
		require.NoError(t, err)
	}
	res, err := l.AllowWithLimits(ctx, "sessions:a@taller.om", 2, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	other, err := l.AllowWithLimits(ctx, "sessions:b@taller.om", 2, time.Hour)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestMemoryLimiterWindowExpires(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	window := 100 * time.Millisecond
	res, err := l.AllowWithLimits(ctx, "alerts:ip", 1, window)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	time.Sleep(2 * window)
	res, err = l.AllowWithLimits(ctx, "alerts:ip", 1, window)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
