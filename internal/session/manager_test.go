package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

func newTestManager(t *testing.T, opts Options) (*Manager, *memory.Store) {
	t.Helper()
	st := memory.New()
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = 3
	}
	if opts.AbsoluteTTL == 0 {
		opts.AbsoluteTTL = 12 * time.Hour
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	m := NewManager(st.Sessions(), audit.NewRecorder(st.Audit()), nil, opts)
	return m, st
}

func TestCreateAndResolve(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	created, err := m.Create(ctx, "tech@taller.om", DeviceInfo{IPAddress: "10.0.0.5", UserAgent: "cli"})
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)
	assert.Nil(t, created.Evicted)
	assert.False(t, created.Session.Elevated)

	resolved, err := m.Resolve(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Session.ID, resolved.ID)
	assert.Equal(t, "tech@taller.om", resolved.UserEmail)
}

func TestResolveUnknownToken(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	_, err := m.Resolve(context.Background(), "no-such-token")
	assert.True(t, repository.IsNotFound(err))
}

func TestConcurrencyLimitEvictsExactlyOldest(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxConcurrent: 2})
	ctx := context.Background()

	first, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)
	// la segunda sesión tiene actividad más reciente
	time.Sleep(5 * time.Millisecond)
	second, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)
	require.Nil(t, second.Evicted)

	third, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)
	require.NotNil(t, third.Evicted)
	assert.Equal(t, first.Session.ID, third.Evicted.ID)

	// la desplazada ya no autentica; la segunda y la tercera siguen vivas
	_, err = m.Resolve(ctx, first.Token)
	assert.True(t, repository.IsNotFound(err))
	_, err = m.Resolve(ctx, second.Token)
	assert.NoError(t, err)
	_, err = m.Resolve(ctx, third.Token)
	assert.NoError(t, err)

	active, limit, err := m.Status(ctx, "tech@taller.om")
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, 2, limit)
}

func TestEvictionDoesNotTouchOtherUsers(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxConcurrent: 1})
	ctx := context.Background()

	other, err := m.Create(ctx, "super@taller.om", DeviceInfo{})
	require.NoError(t, err)

	_, err = m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)
	replaced, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)
	require.NotNil(t, replaced.Evicted)

	_, err = m.Resolve(ctx, other.Token)
	assert.NoError(t, err)
}

func TestRevokeIsIdempotent(t *testing.T) {
	m, st := newTestManager(t, Options{})
	ctx := context.Background()

	created, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)

	_, err = m.Revoke(ctx, created.Session.ID, "tech@taller.om", "manual")
	require.NoError(t, err)

	// segunda revocación: sin error y sin evento de auditoría duplicado
	_, err = m.Revoke(ctx, created.Session.ID, "tech@taller.om", "manual")
	require.NoError(t, err)

	events, err := st.Audit().Query(ctx, time.Now().Add(-time.Hour), []string{"session_revoked"}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = m.Resolve(ctx, created.Token)
	assert.True(t, repository.IsNotFound(err))
}

func TestRevokeUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	_, err := m.Revoke(context.Background(), "missing-id", "admin", "")
	assert.True(t, repository.IsNotFound(err))
}

func TestRevokeAllKeepsExcluded(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxConcurrent: 5})
	ctx := context.Background()

	var tokens []string
	var keepID string
	for i := 0; i < 3; i++ {
		c, err := m.Create(ctx, "tech@taller.om", DeviceInfo{UserAgent: fmt.Sprintf("dev-%d", i)})
		require.NoError(t, err)
		tokens = append(tokens, c.Token)
		if i == 2 {
			keepID = c.Session.ID
		}
	}

	n, err := m.RevokeAll(ctx, "tech@taller.om", keepID, "tech@taller.om", "password change")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = m.Resolve(ctx, tokens[0])
	assert.True(t, repository.IsNotFound(err))
	_, err = m.Resolve(ctx, tokens[2])
	assert.NoError(t, err)
}

func TestIdleTimeoutBlocksResolve(t *testing.T) {
	m, _ := newTestManager(t, Options{IdleTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	created, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	_, err = m.Resolve(ctx, created.Token)
	assert.True(t, repository.IsNotFound(err))
}

func TestElevate(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	created, err := m.Create(ctx, "tech@taller.om", DeviceInfo{})
	require.NoError(t, err)
	require.NoError(t, m.Elevate(ctx, created.Session))
	assert.True(t, created.Session.Elevated)

	resolved, err := m.Resolve(ctx, created.Token)
	require.NoError(t, err)
	assert.True(t, resolved.Elevated)
}

func TestStatsCountsWindow(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxConcurrent: 10})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, fmt.Sprintf("user%d@taller.om", i), DeviceInfo{UserAgent: "android"})
		require.NoError(t, err)
	}
	_, err := m.Create(ctx, "user0@taller.om", DeviceInfo{UserAgent: "desktop"})
	require.NoError(t, err)

	stats, err := m.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.ActiveSessions)
	assert.Equal(t, 4, stats.LoginsToday)
	assert.Equal(t, 3, stats.UniqueUsersToday)
	require.NotEmpty(t, stats.TopDevices)
	assert.Equal(t, "android", stats.TopDevices[0].Device)
	assert.Equal(t, 3, stats.TopDevices[0].Count)
}
