package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

func newTestEngine(t *testing.T, rules []Rule) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	e := NewEngine(Config{
		Rules:   rules,
		Counter: NewMemoryCounter(),
		Repo:    st.Alerts(),
		Auditor: audit.NewRecorder(st.Audit()),
	})
	return e, st
}

func failedLoginRules() []Rule {
	return []Rule{
		{EventType: "failed_login", Count: 3, Window: 10 * time.Minute, Severity: repository.SeverityMedium, EscalationLevel: "supervisor"},
		{EventType: "failed_login", Count: 5, Window: 15 * time.Minute, Severity: repository.SeverityHigh, EscalationLevel: "manager"},
	}
}

func TestThresholdFiresExactlyOnce(t *testing.T) {
	e, _ := newTestEngine(t, failedLoginRules())
	ctx := context.Background()

	ev := Event{Type: "failed_login", UserEmail: "tech@taller.om", SourceIP: "10.0.0.5"}

	for i := 0; i < 2; i++ {
		res, err := e.Observe(ctx, ev)
		require.NoError(t, err)
		assert.Nil(t, res)
	}

	// el tercer evento cruza el umbral
	res, err := e.Observe(ctx, ev)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, repository.SeverityMedium, res.Alert.Severity)
	assert.Equal(t, "supervisor", res.Alert.EscalationLevel)

	// el cuarto no duplica: el contador se reseteó al cruzar
	res, err = e.Observe(ctx, ev)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestOverlappingRulesEscalate(t *testing.T) {
	e, _ := newTestEngine(t, failedLoginRules())
	ctx := context.Background()

	ev := Event{Type: "failed_login", UserEmail: "tech@taller.om"}

	var fired []repository.AlertSeverity
	for i := 0; i < 5; i++ {
		res, err := e.Observe(ctx, ev)
		require.NoError(t, err)
		if res != nil {
			fired = append(fired, res.Alert.Severity)
		}
	}

	// la regla de 3 dispara medium en el tercer evento; la de 5 dispara
	// high en el quinto, con su contador propio
	require.Len(t, fired, 2)
	assert.Equal(t, repository.SeverityMedium, fired[0])
	assert.Equal(t, repository.SeverityHigh, fired[1])
}

func TestCountersAreScopedPerUser(t *testing.T) {
	e, _ := newTestEngine(t, failedLoginRules())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.Observe(ctx, Event{Type: "failed_login", UserEmail: "a@taller.om"})
		require.NoError(t, err)
	}
	// dos fallos de otro usuario no aportan al umbral del primero
	res, err := e.Observe(ctx, Event{Type: "failed_login", UserEmail: "b@taller.om"})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSourceIPKeyWhenNoUser(t *testing.T) {
	e, _ := newTestEngine(t, failedLoginRules())
	ctx := context.Background()

	ev := Event{Type: "failed_login", SourceIP: "10.0.0.9"}
	var res *Result
	var err error
	for i := 0; i < 3; i++ {
		res, err = e.Observe(ctx, ev)
		require.NoError(t, err)
	}
	require.NotNil(t, res)
	require.NotNil(t, res.Alert.SourceIP)
	assert.Equal(t, "10.0.0.9", *res.Alert.SourceIP)
}

func TestTriggerBypassesThresholds(t *testing.T) {
	e, st := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := e.Trigger(ctx, "mfa_disabled", "tech@taller.om", "", "mfa disabled by user", repository.SeverityCritical, "emergency")
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, repository.SeverityCritical, res.Alert.Severity)

	stored, err := st.Alerts().Get(ctx, res.Alert.ID)
	require.NoError(t, err)
	assert.False(t, stored.Resolved)

	// la emisión queda en el audit trail
	events, err := st.Audit().Query(ctx, time.Now().Add(-time.Hour), []string{"alert_created"}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolve(t *testing.T) {
	e, st := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := e.Trigger(ctx, "suspicious_access", "tech@taller.om", "", "", repository.SeverityHigh, "manager")
	require.NoError(t, err)

	_, err = e.Resolve(ctx, res.Alert.ID, "super@taller.om", "false positive")
	require.NoError(t, err)

	stored, err := st.Alerts().Get(ctx, res.Alert.ID)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, "super@taller.om", *stored.ResolvedBy)
}

func TestResolveUnknownAlert(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.Resolve(context.Background(), "missing", "admin", "")
	assert.True(t, repository.IsNotFound(err))
}

func TestSummary(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.Trigger(ctx, "failed_login", "a@taller.om", "", "", repository.SeverityMedium, "supervisor")
	require.NoError(t, err)
	res, err := e.Trigger(ctx, "mfa_disabled", "b@taller.om", "", "", repository.SeverityCritical, "emergency")
	require.NoError(t, err)
	_, err = e.Resolve(ctx, res.Alert.ID, "admin", "handled")
	require.NoError(t, err)

	summary, err := e.Summary(ctx, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Unresolved)
	assert.Equal(t, 1, summary.Critical)
	assert.Equal(t, 1, summary.ByType["failed_login"])
	assert.Equal(t, 1, summary.ByType["mfa_disabled"])
}
