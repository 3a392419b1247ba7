package fingerprint

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCollectors() []Collector {
	return []Collector{
		{Name: "mac", Reduced: true, Read: func() (string, error) { return "aa:bb:cc:dd:ee:ff", nil }},
		{Name: "hostname", Reduced: true, Read: func() (string, error) { return "taller-01", nil }},
		{Name: "machine_id", Read: func() (string, error) { return "4c4c4544-0042", nil }},
		{Name: "board_serial", Read: func() (string, error) { return "BRD-9981", nil }},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()
	svc := NewWithCollectors(staticCollectors())

	fp1, err := svc.Fingerprint()
	require.NoError(t, err)
	fp2, err := svc.Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fp1.Hash, fp2.Hash)
	assert.Equal(t, fp1.ReducedHash, fp2.ReducedHash)
	assert.False(t, fp1.Degraded)
	assert.Len(t, fp1.Hash, 64) // sha256 hex
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	t.Parallel()
	cs := staticCollectors()
	reversed := make([]Collector, len(cs))
	for i, c := range cs {
		reversed[len(cs)-1-i] = c
	}

	fp1, err := NewWithCollectors(cs).Fingerprint()
	require.NoError(t, err)
	fp2, err := NewWithCollectors(reversed).Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fp1.Hash, fp2.Hash)
}

func TestFingerprint_DegradedKeepsReducedHash(t *testing.T) {
	t.Parallel()
	cs := staticCollectors()
	// board serial ilegible
	cs[3].Read = func() (string, error) { return "", fmt.Errorf("permission denied") }

	full, err := NewWithCollectors(staticCollectors()).Fingerprint()
	require.NoError(t, err)
	degraded, err := NewWithCollectors(cs).Fingerprint()
	require.NoError(t, err)

	assert.True(t, degraded.Degraded)
	assert.NotEqual(t, full.Hash, degraded.Hash)
	// el subconjunto reducido sigue intacto: el matching laxo funciona
	assert.Equal(t, full.ReducedHash, degraded.ReducedHash)
}

func TestFingerprint_DifferentHardwareDiffers(t *testing.T) {
	t.Parallel()
	other := staticCollectors()
	other[0].Read = func() (string, error) { return "11:22:33:44:55:66", nil }

	fp1, err := NewWithCollectors(staticCollectors()).Fingerprint()
	require.NoError(t, err)
	fp2, err := NewWithCollectors(other).Fingerprint()
	require.NoError(t, err)

	assert.NotEqual(t, fp1.Hash, fp2.Hash)
	assert.NotEqual(t, fp1.ReducedHash, fp2.ReducedHash)
}

func TestFingerprint_NoReadableIdentifiers(t *testing.T) {
	t.Parallel()
	svc := NewWithCollectors([]Collector{
		{Name: "mac", Reduced: true, Read: func() (string, error) { return "", fmt.Errorf("nope") }},
	})
	_, err := svc.Fingerprint()
	assert.Error(t, err)
}
