// Package secretbox cifra secretos en reposo (seeds TOTP) con AES-256-GCM.
// La clave maestra se inyecta en la construcción; no hay estado global.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Box cifra y descifra strings con una clave maestra de 32 bytes.
type Box struct {
	aead cipher.AEAD
}

// New crea un Box a partir de la clave maestra en base64 estándar.
func New(masterKeyB64 string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(masterKeyB64))
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secretbox: master key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Encrypt retorna "nonceB64|ctB64".
func (b *Box) Encrypt(plain string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + "|" + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt revierte Encrypt. Falla si el ciphertext fue manipulado.
func (b *Box) Decrypt(boxed string) (string, error) {
	parts := strings.SplitN(boxed, "|", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("secretbox: malformed ciphertext")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("secretbox: open: %w", err)
	}
	return string(pt), nil
}
