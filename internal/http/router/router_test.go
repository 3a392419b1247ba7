package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/alert"
	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/business"
	"github.com/warshatech/trustgate/internal/cache"
	"github.com/warshatech/trustgate/internal/config"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/controllers"
	"github.com/warshatech/trustgate/internal/mfa"
	"github.com/warshatech/trustgate/internal/notify"
	"github.com/warshatech/trustgate/internal/permission"
	"github.com/warshatech/trustgate/internal/rate"
	"github.com/warshatech/trustgate/internal/security/password"
	"github.com/warshatech/trustgate/internal/security/secretbox"
	"github.com/warshatech/trustgate/internal/security/totp"
	"github.com/warshatech/trustgate/internal/session"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

const testAdminKey = "test-admin-key"

func newTestHandler(t *testing.T, mods ...func(*Deps)) (http.Handler, *memory.Store) {
	t.Helper()

	st := memory.New()
	auditor := audit.NewRecorder(st.Audit())

	engine := alert.NewEngine(alert.Config{
		Rules: []alert.Rule{
			{EventType: "failed_login", Count: 3, Window: 10 * time.Minute, Severity: repository.SeverityMedium, EscalationLevel: "supervisor"},
		},
		Counter:    alert.NewMemoryCounter(),
		Repo:       st.Alerts(),
		Auditor:    auditor,
		Dispatcher: notify.NewDispatcher(),
	})

	sessions := session.NewManager(st.Sessions(), auditor, engine, session.Options{
		MaxConcurrent: 3,
		IdleTimeout:   30 * time.Minute,
		AbsoluteTTL:   12 * time.Hour,
	})

	box, err := secretbox.New(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	mfaManager := mfa.NewManager(st.MFA(), st.Users(), cache.NewMemory("test"), box, auditor, engine, notify.NewDispatcher(), mfa.Options{})

	cfg, err := config.Load("")
	require.NoError(t, err)
	permEngine := permission.NewEngine(cfg.Permissions, auditor, 30*time.Minute)

	d := Deps{
		Auth:        controllers.NewAuthController(st.Users(), sessions, engine, auditor),
		Sessions:    controllers.NewSessionsController(sessions, permEngine),
		MFA:         controllers.NewMFAController(mfaManager, sessions),
		Alerts:      controllers.NewAlertsController(engine),
		Audit:       controllers.NewAuditController(auditor, audit.NewSummary(st.Audit()), st.Audit()),
		Permissions: controllers.NewPermissionsController(permEngine, st.Users()),
		Business:    controllers.NewBusinessController(business.NewBinder(st.Business(), auditor)),
		Health:      controllers.NewHealthController("test", nil),

		SessionManager: sessions,
		Users:          st.Users(),
		AdminKey:       testAdminKey,
	}
	for _, mod := range mods {
		mod(&d)
	}
	return New(d), st
}

func seedUser(t *testing.T, st *memory.Store, email, plain string, roles ...string) {
	t.Helper()
	hash, err := password.Hash(password.Default, plain)
	require.NoError(t, err)
	require.NoError(t, st.Users().Create(context.Background(), &repository.User{
		Email:        email,
		Phone:        "+96891234567",
		PasswordHash: hash,
		Roles:        roles,
	}))
}

type testRequest struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func do(t *testing.T, h http.Handler, req testRequest) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func login(t *testing.T, h http.Handler, email, plain string) string {
	t.Helper()
	w := do(t, h, testRequest{method: "POST", path: "/v1/auth/login", body: map[string]any{
		"email": email, "password": plain,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		SessionToken string `json:"session_token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.SessionToken)
	return resp.SessionToken
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(t, h, testRequest{method: "GET", path: "/healthz"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestLoginAndSessionStatus(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")

	token := login(t, h, "tech@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ActiveCount   int `json:"active_count"`
		MaxConcurrent int `json:"max_concurrent"`
		Sessions      []struct {
			Current bool `json:"current"`
		} `json:"sessions"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.ActiveCount)
	assert.Equal(t, 3, resp.MaxConcurrent)
	require.Len(t, resp.Sessions, 1)
	assert.True(t, resp.Sessions[0].Current)
}

func TestLoginBadPasswordFeedsAlerts(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")

	for i := 0; i < 3; i++ {
		w := do(t, h, testRequest{method: "POST", path: "/v1/auth/login", body: map[string]any{
			"email": "tech@taller.om", "password": "wrong",
		}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	summary, err := st.Alerts().Summary(context.Background(), time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ByType["failed_login"])
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{"/v1/sessions/status", "/v1/alerts/summary", "/v1/audit/summary"} {
		w := do(t, h, testRequest{method: "GET", path: path})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestMFAEnrollVerifyAndPermissionCheck(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")
	token := login(t, h, "tech@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "POST", path: "/v1/mfa/enable", token: token, body: map[string]any{"method": "totp"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var enroll struct {
		Secret      string   `json:"secret"`
		BackupCodes []string `json:"backup_codes"`
	}
	decode(t, w, &enroll)
	require.NotEmpty(t, enroll.Secret)
	require.Len(t, enroll.BackupCodes, 10)

	raw, err := totp.DecodeSecret(enroll.Secret)
	require.NoError(t, err)
	code := totp.Generate(raw, time.Now())

	w = do(t, h, testRequest{method: "POST", path: "/v1/mfa/verify", token: token, body: map[string]any{"code": code}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var verify struct {
		Verified        bool `json:"verified"`
		SessionElevated bool `json:"session_elevated"`
	}
	decode(t, w, &verify)
	assert.True(t, verify.Verified)
	assert.True(t, verify.SessionElevated)

	// con MFA confirmado y sesión elevada, el technician puede operar
	// sobre su propio recurso
	w = do(t, h, testRequest{method: "POST", path: "/v1/permissions/check", token: token, body: map[string]any{
		"resource": "work_order", "action": "update", "resource_owner": "tech@taller.om",
	}})
	require.Equal(t, http.StatusOK, w.Code)
	var decision struct {
		Allowed bool `json:"allowed"`
		Reason  string
	}
	decode(t, w, &decision)
	assert.True(t, decision.Allowed)

	// recurso ajeno: la regla owner-only lo rechaza
	w = do(t, h, testRequest{method: "POST", path: "/v1/permissions/check", token: token, body: map[string]any{
		"resource": "work_order", "action": "update", "resource_owner": "otro@taller.om",
	}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &decision)
	assert.False(t, decision.Allowed)
}

func TestMFAVerifyWrongCode(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")
	token := login(t, h, "tech@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "POST", path: "/v1/mfa/enable", token: token, body: map[string]any{"method": "totp"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, testRequest{method: "POST", path: "/v1/mfa/verify", token: token, body: map[string]any{"code": "000000"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAlertTriggerAndResolve(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "super@taller.om", "s3cret-pass", "supervisor")
	token := login(t, h, "super@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "POST", path: "/v1/alerts/trigger", token: token, body: map[string]any{
		"alert_type": "suspicious_access", "severity": "high", "details": "after-hours access",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		AlertID string `json:"alert_id"`
	}
	decode(t, w, &created)
	require.NotEmpty(t, created.AlertID)

	w = do(t, h, testRequest{method: "POST", path: "/v1/alerts/" + created.AlertID + "/resolve", token: token, body: map[string]any{
		"notes": "reviewed",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, testRequest{method: "GET", path: "/v1/alerts/summary", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Total      int `json:"total"`
		Unresolved int `json:"unresolved"`
	}
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.Unresolved)
}

func TestAlertResolveUnknownID(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "super@taller.om", "s3cret-pass", "supervisor")
	token := login(t, h, "super@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "POST", path: "/v1/alerts/no-such-id/resolve", token: token, body: map[string]any{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditRecordAndSummary(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "super@taller.om", "s3cret-pass", "supervisor")
	token := login(t, h, "super@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "POST", path: "/v1/audit/events", token: token, body: map[string]any{
		"event_type": "permission_change", "severity": "medium", "description": "role granted",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, testRequest{method: "GET", path: "/v1/audit/summary", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Total  int            `json:"total"`
		ByType map[string]int `json:"by_type"`
	}
	decode(t, w, &summary)
	// login + sesión + evento explícito, al menos
	assert.GreaterOrEqual(t, summary.Total, 2)
	assert.Equal(t, 1, summary.ByType["permission_change"])
}

func TestBusinessRoutesRequireAdminKey(t *testing.T) {
	h, _ := newTestHandler(t)

	payload := map[string]any{
		"owner_name":             "Ahmed Al-Balushi",
		"civil_id":               "12345678",
		"phone":                  "+96891234567",
		"registration_date":      "2024-03-15",
		"business_activity_type": "auto repair",
	}

	w := do(t, h, testRequest{method: "POST", path: "/v1/business/register", body: payload})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, testRequest{method: "POST", path: "/v1/business/register", body: payload,
		headers: map[string]string{"X-Admin-Key": testAdminKey}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		BusinessID string `json:"business_id"`
	}
	decode(t, w, &created)
	require.NotEmpty(t, created.BusinessID)

	w = do(t, h, testRequest{method: "POST", path: "/v1/business/" + created.BusinessID + "/verify",
		body: map[string]any{}, headers: map[string]string{"X-Admin-Key": testAdminKey}})
	require.Equal(t, http.StatusOK, w.Code)
	var verify struct {
		Verified bool `json:"verified"`
	}
	decode(t, w, &verify)
	assert.True(t, verify.Verified)
}

func TestBusinessValidationErrorNamesField(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, testRequest{method: "POST", path: "/v1/business/register", body: map[string]any{
		"owner_name":             "Ahmed",
		"civil_id":               "123", // corto
		"phone":                  "+96891234567",
		"registration_date":      "2024-03-15",
		"business_activity_type": "auto repair",
	}, headers: map[string]string{"X-Admin-Key": testAdminKey}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "civil_id")
}

// recordingLimiter registra las keys consultadas; siempre permite.
type recordingLimiter struct {
	keys []string
}

func (l *recordingLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (rate.Result, error) {
	l.keys = append(l.keys, key)
	return rate.Result{Allowed: true, Remaining: int64(limit)}, nil
}

func TestRateLimitKeyedByAuthenticatedUser(t *testing.T) {
	rec := &recordingLimiter{}
	h, st := newTestHandler(t, func(d *Deps) {
		d.Limiter = rec
		d.RateLimits = RateLimits{Sessions: Limit{Limit: 100, Window: time.Minute}}
	})
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")
	token := login(t, h, "tech@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: token})
	require.Equal(t, http.StatusOK, w.Code)

	// el request autenticado consume el bucket del usuario, no el de la IP
	assert.Contains(t, rec.keys, "sessions:tech@taller.om")
}

func TestSupervisorManagesAnotherUsersSessions(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")
	seedUser(t, st, "super@taller.om", "s3cret-pass", "supervisor")
	techToken := login(t, h, "tech@taller.om", "s3cret-pass")
	superToken := login(t, h, "super@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "GET", path: "/v1/sessions/status?user_email=tech@taller.om", token: superToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status struct {
		UserEmail   string `json:"user_email"`
		ActiveCount int    `json:"active_count"`
	}
	decode(t, w, &status)
	assert.Equal(t, "tech@taller.om", status.UserEmail)
	assert.Equal(t, 1, status.ActiveCount)

	// respuesta a incidentes: barrer la cuenta comprometida completa
	w = do(t, h, testRequest{method: "POST", path: "/v1/sessions/revoke-all", token: superToken, body: map[string]any{
		"user_email": "tech@taller.om", "reason": "compromised account",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		RevokedCount int `json:"revoked_count"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.RevokedCount)

	// cae la sesión del technician, la del supervisor sigue viva
	w = do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: techToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: superToken})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCrossUserSessionAccessDenied(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech-a@taller.om", "s3cret-pass", "technician")
	seedUser(t, st, "tech-b@taller.om", "s3cret-pass", "technician")
	tokenA := login(t, h, "tech-a@taller.om", "s3cret-pass")
	tokenB := login(t, h, "tech-b@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "GET", path: "/v1/sessions/status?user_email=tech-b@taller.om", token: tokenA})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, testRequest{method: "POST", path: "/v1/sessions/revoke-all", token: tokenA, body: map[string]any{
		"user_email": "tech-b@taller.om",
	}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// la sesión de B sigue viva
	w = do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: tokenB})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRevokeByIDRequiresOwnershipOrGrant(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech-a@taller.om", "s3cret-pass", "technician")
	seedUser(t, st, "tech-b@taller.om", "s3cret-pass", "technician")
	seedUser(t, st, "super@taller.om", "s3cret-pass", "supervisor")
	tokenA := login(t, h, "tech-a@taller.om", "s3cret-pass")
	tokenB := login(t, h, "tech-b@taller.om", "s3cret-pass")
	superToken := login(t, h, "super@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: tokenB})
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Sessions []struct {
			SessionID string `json:"session_id"`
		} `json:"sessions"`
	}
	decode(t, w, &status)
	require.Len(t, status.Sessions, 1)
	targetID := status.Sessions[0].SessionID

	// conocer el UUID de una sesión ajena no alcanza para revocarla
	w = do(t, h, testRequest{method: "POST", path: "/v1/sessions/revoke", token: tokenA, body: map[string]any{
		"session_id": targetID,
	}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: tokenB})
	assert.Equal(t, http.StatusOK, w.Code)

	// el supervisor sí, por session/manage
	w = do(t, h, testRequest{method: "POST", path: "/v1/sessions/revoke", token: superToken, body: map[string]any{
		"session_id": targetID, "reason": "device reported stolen",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: tokenB})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissionCheckForAnotherUser(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "admin@taller.om", "s3cret-pass", "admin")
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")
	adminToken := login(t, h, "admin@taller.om", "s3cret-pass")
	techToken := login(t, h, "tech@taller.om", "s3cret-pass")

	// el admin consulta qué puede hacer otra cuenta
	w := do(t, h, testRequest{method: "POST", path: "/v1/permissions/check", token: adminToken, body: map[string]any{
		"user_email": "tech@taller.om", "resource": "work_order", "action": "update", "resource_owner": "tech@taller.om",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var decision struct {
		Allowed bool `json:"allowed"`
	}
	decode(t, w, &decision)
	assert.True(t, decision.Allowed)

	// regla owner-only sobre recurso ajeno
	w = do(t, h, testRequest{method: "POST", path: "/v1/permissions/check", token: adminToken, body: map[string]any{
		"user_email": "tech@taller.om", "resource": "work_order", "action": "update", "resource_owner": "otro@taller.om",
	}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &decision)
	assert.False(t, decision.Allowed)

	// cuenta desconocida
	w = do(t, h, testRequest{method: "POST", path: "/v1/permissions/check", token: adminToken, body: map[string]any{
		"user_email": "nadie@taller.om", "resource": "work_order", "action": "read",
	}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// un technician no puede consultar por otros
	w = do(t, h, testRequest{method: "POST", path: "/v1/permissions/check", token: techToken, body: map[string]any{
		"user_email": "admin@taller.om", "resource": "work_order", "action": "read",
	}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRevokeAllEndsSession(t *testing.T) {
	h, st := newTestHandler(t)
	seedUser(t, st, "tech@taller.om", "s3cret-pass", "technician")
	token := login(t, h, "tech@taller.om", "s3cret-pass")

	w := do(t, h, testRequest{method: "POST", path: "/v1/sessions/revoke-all", token: token, body: map[string]any{
		"keep_current": false,
	}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		RevokedCount int `json:"revoked_count"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.RevokedCount)

	// la revocación toma efecto en el request siguiente
	w = do(t, h, testRequest{method: "GET", path: "/v1/sessions/status", token: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
