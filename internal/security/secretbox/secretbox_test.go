package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKey() string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msg := "JBSWY3DPEHPK3PXP — seed secreta"
	ct, err := box.Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	pt, err := box.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, err := New(testKey())
	if err != nil {
		t.Fatal(err)
	}
	ct, err := box.Encrypt("top secret")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	// corromper un byte del ciphertext (base64 -> bytes -> flip -> base64)
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0xff
	tampered := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)
	if _, err := box.Decrypt(tampered); err == nil {
		t.Fatal("expected decrypt failure on tampered ciphertext")
	}
}

func TestNew_RejectsShortKey(t *testing.T) {
	t.Parallel()
	if _, err := New(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for short key")
	}
}
