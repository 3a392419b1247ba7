package mfa

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/cache"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/notify"
	"github.com/warshatech/trustgate/internal/security/password"
	"github.com/warshatech/trustgate/internal/security/secretbox"
	tokens "github.com/warshatech/trustgate/internal/security/token"
	"github.com/warshatech/trustgate/internal/security/totp"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

func newTestManager(t *testing.T) (*Manager, *memory.Store, cache.Client) {
	t.Helper()
	st := memory.New()
	c := cache.NewMemory("test")
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	box, err := secretbox.New(key)
	require.NoError(t, err)

	m := NewManager(
		st.MFA(), st.Users(), c, box,
		audit.NewRecorder(st.Audit()), nil, notify.NewDispatcher(),
		Options{Issuer: "TrustGate", OOBCodeTTL: time.Minute, BackupCodeCount: 10},
	)
	return m, st, c
}

func TestEnableTOTPAndVerify(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)

	res, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)
	require.NotEmpty(t, res.SecretBase32)
	assert.Contains(t, res.OTPAuthURL, "otpauth://totp/")
	require.Len(t, res.BackupCodes, 10)
	for _, c := range res.BackupCodes {
		assert.Regexp(t, `^[2-9A-Z]{4}-[2-9A-Z]{4}$`, c)
	}

	// aún no confirmado
	e, err := st.MFA().Get(ctx, "tech@warsha.om")
	require.NoError(t, err)
	assert.False(t, e.Enabled)
	// el secreto nunca se guarda en claro
	assert.NotContains(t, e.SecretEncrypted, res.SecretBase32)

	raw, err := totp.DecodeSecret(res.SecretBase32)
	require.NoError(t, err)
	code := totp.Generate(raw, time.Now())

	v, err := m.Verify(ctx, "tech@warsha.om", code, false)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, 10, v.RemainingBackupCodes)

	// la primera verificación confirma el enrolamiento
	e, err = st.MFA().Get(ctx, "tech@warsha.om")
	require.NoError(t, err)
	assert.True(t, e.Enabled)

	u, err := st.Users().Get(ctx, "tech@warsha.om")
	if err == nil {
		assert.True(t, u.MFARequired)
	}
}

func TestVerifyTOTPReplayRejected(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	res, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)
	raw, err := totp.DecodeSecret(res.SecretBase32)
	require.NoError(t, err)
	code := totp.Generate(raw, time.Now())

	_, err = m.Verify(ctx, "tech@warsha.om", code, false)
	require.NoError(t, err)

	// mismo código, segundo intento: anti-replay
	_, err = m.Verify(ctx, "tech@warsha.om", code, false)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyWrongCode(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)

	_, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)

	_, err = m.Verify(ctx, "tech@warsha.om", "000000", false)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// la falla queda auditada
	events, err := st.Audit().Query(ctx, time.Now().Add(-time.Hour), []string{"mfa_failed"}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestBackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	res, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)
	code := res.BackupCodes[0]

	v, err := m.Verify(ctx, "tech@warsha.om", code, true)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, 9, v.RemainingBackupCodes)

	// un backup code solo se consume una vez
	_, err = m.Verify(ctx, "tech@warsha.om", code, true)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestBackupCodesStoredArgon2id(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)

	res, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)

	// en reposo solo hay hashes argon2id salteados: nunca el code en
	// claro ni un digest sin sal
	hashes, err := st.MFA().ListBackupCodes(ctx, "tech@warsha.om")
	require.NoError(t, err)
	require.Len(t, hashes, 10)
	for _, h := range hashes {
		assert.True(t, strings.HasPrefix(h, "$argon2id$"), h)
		for _, c := range res.BackupCodes {
			assert.NotEqual(t, normalizeBackupCode(c), h)
			assert.NotEqual(t, tokens.SHA256Base64URL(normalizeBackupCode(c)), h)
		}
	}

	// el code en claro verifica contra exactamente un hash del set
	matched := 0
	for _, h := range hashes {
		if password.Verify(normalizeBackupCode(res.BackupCodes[0]), h) {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}

func TestGenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	res, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)
	old := res.BackupCodes[0]

	fresh, err := m.GenerateBackupCodes(ctx, "tech@warsha.om")
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	_, err = m.Verify(ctx, "tech@warsha.om", old, true)
	assert.ErrorIs(t, err, ErrInvalidCode)

	v, err := m.Verify(ctx, "tech@warsha.om", fresh[0], true)
	require.NoError(t, err)
	assert.True(t, v.Verified)
}

func TestOOBCodeSingleAttempt(t *testing.T) {
	ctx := context.Background()
	m, _, c := newTestManager(t)

	require.NoError(t, m.users.Create(ctx, &repository.User{Email: "owner@warsha.om", Phone: "+96891234567"}))
	_, err := m.Enable(ctx, "owner@warsha.om", repository.MFAMethodEmail)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, oobKey("owner@warsha.om"), tokens.SHA256Base64URL("482913"), time.Minute))

	// intento incorrecto invalida el código aunque luego llegue el correcto
	_, err = m.Verify(ctx, "owner@warsha.om", "111111", false)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = m.Verify(ctx, "owner@warsha.om", "482913", false)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// nuevo código, intento correcto al primer uso
	require.NoError(t, c.Set(ctx, oobKey("owner@warsha.om"), tokens.SHA256Base64URL("482913"), time.Minute))
	v, err := m.Verify(ctx, "owner@warsha.om", "482913", false)
	require.NoError(t, err)
	assert.True(t, v.Verified)
}

func TestDisableRequiresValidCode(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)

	res, err := m.Enable(ctx, "tech@warsha.om", repository.MFAMethodTOTP)
	require.NoError(t, err)
	raw, err := totp.DecodeSecret(res.SecretBase32)
	require.NoError(t, err)

	err = m.Disable(ctx, "tech@warsha.om", "000000", false)
	assert.ErrorIs(t, err, ErrInvalidCode)

	code := totp.Generate(raw, time.Now())
	require.NoError(t, m.Disable(ctx, "tech@warsha.om", code, false))

	_, err = st.MFA().Get(ctx, "tech@warsha.om")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestVerifyNotEnrolled(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.Verify(ctx, "nobody@warsha.om", "123456", false)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}
