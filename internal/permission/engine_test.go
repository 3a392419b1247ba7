package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/config"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

var testRules = []config.PermissionRule{
	{Role: "admin", Resource: "*", Actions: []string{"*"}},
	{Role: "supervisor", Resource: "work_order", Actions: []string{"read", "update", "assign"}},
	{Role: "technician", Resource: "work_order", Actions: []string{"read", "update"}, OwnerOnly: true},
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	e := NewEngine(testRules, audit.NewRecorder(st.Audit()), 30*time.Minute)
	return e, st
}

func activeSession(elevated bool) *repository.Session {
	now := time.Now().UTC()
	return &repository.Session{
		ID:           "s-1",
		UserEmail:    "tech@warsha.om",
		Elevated:     elevated,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(12 * time.Hour),
	}
}

func TestCheckAllowed(t *testing.T) {
	e, _ := newTestEngine(t)

	d := e.Check(context.Background(), Input{
		User:          &repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		Session:       activeSession(false),
		Resource:      "work_order",
		Action:        "update",
		ResourceOwner: "tech@warsha.om",
	})
	assert.True(t, d.Allowed)
	assert.Contains(t, d.Reason, "session_valid: ok")
	assert.Contains(t, d.Reason, "role_grant: ok")
	assert.Contains(t, d.Reason, "ownership: ok")
}

func TestCheckDeniedNoSession(t *testing.T) {
	e, st := newTestEngine(t)

	d := e.Check(context.Background(), Input{
		User:     &repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		Resource: "work_order",
		Action:   "read",
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "session_valid: failed (no session presented)")

	// el rechazo queda en el audit trail
	events, err := st.Audit().Query(context.Background(), time.Now().Add(-time.Minute), []string{"permission_denied"}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCheckDeniedRevokedSession(t *testing.T) {
	e, _ := newTestEngine(t)

	s := activeSession(false)
	now := time.Now().UTC()
	s.RevokedAt = &now

	d := e.Check(context.Background(), Input{
		User:     &repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		Session:  s,
		Resource: "work_order",
		Action:   "read",
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "session is revoked")
}

func TestCheckMFARequiredButNotElevated(t *testing.T) {
	e, _ := newTestEngine(t)

	d := e.Check(context.Background(), Input{
		User:          &repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}, MFARequired: true},
		Session:       activeSession(false),
		Resource:      "work_order",
		Action:        "read",
		ResourceOwner: "tech@warsha.om",
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "mfa_elevated: failed")
	// las demás condiciones igual se evalúan y se reportan
	assert.Contains(t, d.Reason, "role_grant: ok")
}

func TestCheckNoRoleGrant(t *testing.T) {
	e, _ := newTestEngine(t)

	d := e.Check(context.Background(), Input{
		User:     &repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		Session:  activeSession(false),
		Resource: "business_registration",
		Action:   "update",
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "role_grant: failed")
	assert.Contains(t, d.Reason, "technician")
}

func TestCheckOwnerOnlyDeniedForOtherOwner(t *testing.T) {
	e, _ := newTestEngine(t)

	d := e.Check(context.Background(), Input{
		User:          &repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		Session:       activeSession(false),
		Resource:      "work_order",
		Action:        "update",
		ResourceOwner: "other@warsha.om",
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "ownership: failed")
}

func TestCheckAdminWildcard(t *testing.T) {
	e, _ := newTestEngine(t)

	d := e.Check(context.Background(), Input{
		User:     &repository.User{Email: "boss@warsha.om", Roles: []string{"admin"}},
		Session:  activeSession(true),
		Resource: "license",
		Action:   "rebind",
	})
	assert.True(t, d.Allowed)
}

func TestCheckForEvaluatesWithoutSession(t *testing.T) {
	e, st := newTestEngine(t)

	// la forma consultiva evalúa grant y ownership, sin sesión de por medio
	d := e.CheckFor(&repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		"work_order", "update", "tech@warsha.om")
	assert.True(t, d.Allowed)
	assert.NotContains(t, d.Reason, "session_valid")

	d = e.CheckFor(&repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		"work_order", "update", "other@warsha.om")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "ownership: failed")

	d = e.CheckFor(&repository.User{Email: "tech@warsha.om", Roles: []string{"technician"}},
		"invoice", "read", "")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "role_grant: failed")

	// consultiva: el rechazo no genera evento de auditoría
	events, err := st.Audit().Query(context.Background(), time.Now().Add(-time.Hour), []string{"permission_denied"}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
