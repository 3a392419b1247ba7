package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	raw, b32, err := GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, raw, 20)
	assert.NotContains(t, b32, "=")

	now := time.Now()
	code := Generate(raw, now)
	require.Len(t, code, 6)

	ok, counter := Verify(raw, code, now, 1, nil)
	assert.True(t, ok)
	assert.Equal(t, now.Unix()/30, counter)
}

func TestVerifyWindowTolerance(t *testing.T) {
	raw, _, err := GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	previous := Generate(raw, now.Add(-30*time.Second))

	ok, _ := Verify(raw, previous, now, 1, nil)
	assert.True(t, ok)

	// fuera de la ventana de un paso
	stale := Generate(raw, now.Add(-90*time.Second))
	ok, _ = Verify(raw, stale, now, 1, nil)
	assert.False(t, ok)
}

func TestVerifyRejectsReplay(t *testing.T) {
	raw, _, err := GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	code := Generate(raw, now)

	ok, counter := Verify(raw, code, now, 1, nil)
	require.True(t, ok)

	ok, _ = Verify(raw, code, now, 1, &counter)
	assert.False(t, ok)
}

func TestVerifyRejectsMalformedCode(t *testing.T) {
	raw, _, err := GenerateSecret()
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		ok, _ := Verify(raw, code, time.Now(), 1, nil)
		assert.False(t, ok, "code %q", code)
	}
}

func TestDecodeSecretRoundTrip(t *testing.T) {
	raw, b32, err := GenerateSecret()
	require.NoError(t, err)

	decoded, err := DecodeSecret(strings.ToLower(" " + b32 + " "))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestOTPAuthURL(t *testing.T) {
	u := OTPAuthURL("TrustGate", "tech@taller.om", "ABC234")
	assert.True(t, strings.HasPrefix(u, "otpauth://totp/TrustGate:tech@taller.om?"))
	assert.Contains(t, u, "secret=ABC234")
	assert.Contains(t, u, "issuer=TrustGate")
	assert.Contains(t, u, "digits=6")
	assert.Contains(t, u, "period=30")
}
