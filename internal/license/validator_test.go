package license

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/security/fingerprint"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

type fakeClient struct {
	token string
	err   error
	calls int
}

func (f *fakeClient) Validate(ctx context.Context, licenseKey, fp string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type testHarness struct {
	validator *Validator
	store     *memory.Store
	client    *fakeClient
	priv      *rsa.PrivateKey
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	st := memory.New()
	cl := &fakeClient{}
	v := NewValidator(
		st.License(), cl, NewVerifierFromKey(&priv.PublicKey),
		audit.NewRecorder(st.Audit()),
		Options{GracePeriod: 7 * 24 * time.Hour},
	)
	return &testHarness{validator: v, store: st, client: cl, priv: priv}
}

func (h *testHarness) signToken(t *testing.T, licenseKey, status string, iat time.Time) string {
	t.Helper()
	claims := TokenClaims{
		LicenseKey: licenseKey,
		Status:     status,
		RegisteredClaims: jwtv5.RegisteredClaims{
			IssuedAt:  jwtv5.NewNumericDate(iat),
			ExpiresAt: jwtv5.NewNumericDate(iat.Add(24 * time.Hour)),
		},
	}
	s, err := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims).SignedString(h.priv)
	require.NoError(t, err)
	return s
}

func (h *testHarness) saveLicense(t *testing.T, lic *repository.License) {
	t.Helper()
	require.NoError(t, h.store.License().Save(context.Background(), lic))
}

func activeLicense(fp string) *repository.License {
	now := time.Now().UTC()
	return &repository.License{
		LicenseKey:          "WRK-2026-0001",
		HardwareFingerprint: fp,
		ReducedFingerprint:  "",
		BusinessID:          "biz-1",
		IssuedAt:            now.Add(-30 * 24 * time.Hour),
		ExpiresAt:           now.Add(365 * 24 * time.Hour),
		MaxUsers:            10,
		Status:              repository.LicenseActive,
	}
}

func testFP() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		Hash:        "full-hash",
		ReducedHash: "reduced-hash",
		Components:  []string{"mac", "hostname", "machine_id"},
	}
}

func TestValidateExpiredAlwaysWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("full-hash")
	lic.ExpiresAt = time.Now().Add(-time.Hour)
	h.saveLicense(t, lic)
	h.client.token = h.signToken(t, lic.LicenseKey, "active", time.Now())

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateExpired, res.State)
	assert.Equal(t, ReasonExpired, res.Reason)
	// el servidor ni siquiera se consulta
	assert.Zero(t, h.client.calls)

	got, err := h.store.License().Get(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, repository.LicenseExpired, got.Status)
}

func TestValidateFirstBindAndServerOK(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("") // sin fingerprint: primer arranque
	h.saveLicense(t, lic)
	h.client.token = h.signToken(t, lic.LicenseKey, "active", time.Now())

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateValid, res.State)
	assert.True(t, res.Allowed())

	got, err := h.store.License().Get(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "full-hash", got.HardwareFingerprint)
	assert.Equal(t, "reduced-hash", got.ReducedFingerprint)
	assert.NotEmpty(t, got.CachedToken)
}

func TestValidateHardwareMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("other-hash")
	h.saveLicense(t, lic)

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateInvalid, res.State)
	assert.Equal(t, ReasonHardwareMismatch, res.Reason)
	assert.False(t, res.Allowed())

	// la denegación se audita antes de retornarse
	events, err := h.store.Audit().Query(ctx, time.Now().Add(-time.Minute), []string{"license_denied"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ReasonHardwareMismatch, events[0].Details["reason"])
}

func TestValidateDegradedReducedMatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("other-hash")
	lic.ReducedFingerprint = "reduced-hash"
	h.saveLicense(t, lic)
	h.client.token = h.signToken(t, lic.LicenseKey, "active", time.Now())

	fp := testFP()
	fp.Degraded = true

	res, err := h.validator.Validate(ctx, lic.LicenseKey, fp)
	require.NoError(t, err)
	assert.Equal(t, StateValid, res.State)
}

func TestValidateDegradedStillRejectsReducedMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("other-hash")
	lic.ReducedFingerprint = "other-reduced"
	h.saveLicense(t, lic)

	fp := testFP()
	fp.Degraded = true

	res, err := h.validator.Validate(ctx, lic.LicenseKey, fp)
	require.NoError(t, err)
	assert.Equal(t, StateInvalid, res.State)
	assert.Equal(t, ReasonHardwareMismatch, res.Reason)
}

func TestValidateGraceOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cachedAt := time.Now().UTC().Add(-48 * time.Hour)
	lic := activeLicense("full-hash")
	lic.CachedToken = h.signToken(t, lic.LicenseKey, "active", cachedAt)
	lic.CachedTokenIssuedAt = &cachedAt
	h.saveLicense(t, lic)
	h.client.err = ErrServerUnreachable

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateGraceOffline, res.State)
	assert.True(t, res.Allowed())
}

func TestValidateGraceElapsed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cachedAt := time.Now().UTC().Add(-8 * 24 * time.Hour) // fuera de los 7 días
	lic := activeLicense("full-hash")
	lic.CachedToken = h.signToken(t, lic.LicenseKey, "active", cachedAt)
	lic.CachedTokenIssuedAt = &cachedAt
	h.saveLicense(t, lic)
	h.client.err = ErrServerUnreachable

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateInvalid, res.State)
	assert.Equal(t, ReasonServerUnreachable, res.Reason)
}

func TestValidateNoCacheNoGrace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("full-hash")
	h.saveLicense(t, lic)
	h.client.err = ErrServerUnreachable

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateInvalid, res.State)
	assert.Equal(t, ReasonServerUnreachable, res.Reason)
}

func TestValidateRevokedIgnoresCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cachedAt := time.Now().UTC().Add(-time.Hour)
	lic := activeLicense("full-hash")
	lic.CachedToken = h.signToken(t, lic.LicenseKey, "active", cachedAt)
	lic.CachedTokenIssuedAt = &cachedAt
	h.saveLicense(t, lic)
	h.client.err = ErrRevokedByServer

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateRevoked, res.State)
	assert.Equal(t, ReasonRevoked, res.Reason)

	got, err := h.store.License().Get(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, repository.LicenseSuspended, got.Status)
}

func TestValidateTokenStatusRevoked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("full-hash")
	h.saveLicense(t, lic)
	h.client.token = h.signToken(t, lic.LicenseKey, "revoked", time.Now())

	res, err := h.validator.Validate(ctx, lic.LicenseKey, testFP())
	require.NoError(t, err)
	assert.Equal(t, StateRevoked, res.State)
}

func TestRebindAudited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	lic := activeLicense("old-hash")
	h.saveLicense(t, lic)

	require.NoError(t, h.validator.Rebind(ctx, lic.LicenseKey, testFP(), "boss@warsha.om"))

	got, err := h.store.License().Get(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "full-hash", got.HardwareFingerprint)

	events, err := h.store.Audit().Query(ctx, time.Now().Add(-time.Minute), []string{"license_rebind"}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
