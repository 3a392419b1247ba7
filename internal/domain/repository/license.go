package repository

import (
	"context"
	"time"
)

// LicenseStatus es el estado persistido de una licencia.
// Derivado de expires_at y de la señal de revocación del servidor;
// nunca lo setea directamente código cliente.
type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "active"
	LicenseSuspended LicenseStatus = "suspended"
	LicenseExpired   LicenseStatus = "expired"
)

// License representa la licencia local de la instalación.
type License struct {
	LicenseKey string

	// HardwareFingerprint es el hash completo del hardware al que está
	// ligada la licencia. Inmutable salvo re-binding administrativo.
	HardwareFingerprint string

	// ReducedFingerprint es el hash del subconjunto reducido de
	// identificadores, usado para comparar fingerprints degradados.
	ReducedFingerprint string

	BusinessID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	MaxUsers   int
	Features   []string
	Status     LicenseStatus

	// Cache de la última validación exitosa contra el servidor.
	// Sostiene el período de gracia offline.
	CachedToken          string
	CachedTokenIssuedAt  *time.Time
	CachedTokenExpiresAt *time.Time
}

// HasFeature verifica si la licencia incluye un feature flag.
func (l *License) HasFeature(name string) bool {
	for _, f := range l.Features {
		if f == name {
			return true
		}
	}
	return false
}

// LicenseRepository define operaciones sobre la licencia local.
type LicenseRepository interface {
	// Get obtiene la licencia por su key. ErrNotFound si no existe.
	Get(ctx context.Context, licenseKey string) (*License, error)

	// Save persiste la licencia (alta o actualización completa).
	Save(ctx context.Context, lic *License) error

	// BindFingerprint liga el fingerprint a la licencia. Falla con
	// ErrAlreadyBound si ya hay uno distinto: el cambio de hardware pasa
	// por Rebind.
	BindFingerprint(ctx context.Context, licenseKey, full, reduced string) error

	// Rebind reemplaza el fingerprint (flujo administrativo de
	// transferencia de dispositivo).
	Rebind(ctx context.Context, licenseKey, full, reduced string) error

	// UpdateStatus transiciona el estado.
	UpdateStatus(ctx context.Context, licenseKey string, status LicenseStatus) error

	// SaveCachedToken guarda el token de validación emitido por el
	// servidor junto con sus timestamps.
	SaveCachedToken(ctx context.Context, licenseKey, token string, issuedAt, expiresAt time.Time) error
}
