// Package license implementa la máquina de estados de validación de
// licencia: binding de hardware, re-validación contra el servidor de
// licencias y período de gracia offline.
package license

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// TokenClaims son los claims del token de validación firmado por el
// servidor de licencias (RS256).
type TokenClaims struct {
	LicenseKey string   `json:"license_key"`
	Status     string   `json:"status"` // active | suspended | revoked
	BusinessID string   `json:"business_id,omitempty"`
	MaxUsers   int      `json:"max_users,omitempty"`
	Features   []string `json:"features,omitempty"`
	jwtv5.RegisteredClaims
}

// ErrTokenInvalid indica un token que no verifica contra la clave pública.
var ErrTokenInvalid = errors.New("license: invalid validation token")

// Verifier verifica tokens de validación contra la clave pública RSA del
// servidor de licencias.
type Verifier struct {
	pub *rsa.PublicKey
}

// NewVerifier carga la clave pública PEM desde un archivo.
func NewVerifier(publicKeyPath string) (*Verifier, error) {
	b, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("license: read public key: %w", err)
	}
	pub, err := jwtv5.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("license: parse public key: %w", err)
	}
	return &Verifier{pub: pub}, nil
}

// NewVerifierFromKey construye el verifier con una clave ya parseada.
// Lo usan los tests.
func NewVerifierFromKey(pub *rsa.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Parse verifica firma y expiración del token y retorna sus claims.
func (v *Verifier) Parse(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	tk, err := jwtv5.ParseWithClaims(token, claims, func(t *jwtv5.Token) (any, error) {
		return v.pub, nil
	}, jwtv5.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tk.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseExpired verifica la firma pero tolera expiración. Se usa para leer
// el token cacheado durante el período de gracia: un token vencido sigue
// probando que el servidor validó la licencia en su momento.
func (v *Verifier) ParseExpired(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwtv5.ParseWithClaims(token, claims, func(t *jwtv5.Token) (any, error) {
		return v.pub, nil
	}, jwtv5.WithValidMethods([]string{"RS256"}))
	if err != nil && !errors.Is(err, jwtv5.ErrTokenExpired) {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}
