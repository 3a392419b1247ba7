package repository

import (
	"context"
	"time"
)

// MFAMethod es el método de segundo factor configurado.
type MFAMethod string

const (
	MFAMethodTOTP     MFAMethod = "totp"
	MFAMethodSMS      MFAMethod = "sms"
	MFAMethodWhatsApp MFAMethod = "whatsapp"
	MFAMethodEmail    MFAMethod = "email"
)

// Valid indica si el método es uno de los soportados.
func (m MFAMethod) Valid() bool {
	switch m {
	case MFAMethodTOTP, MFAMethodSMS, MFAMethodWhatsApp, MFAMethodEmail:
		return true
	}
	return false
}

// MFAEnrollment representa el enrolamiento MFA de un usuario.
type MFAEnrollment struct {
	UserEmail       string
	Method          MFAMethod
	SecretEncrypted string // solo TOTP
	Enabled         bool   // true tras la primera verificación exitosa

	// Anti-replay TOTP: último contador de tiempo aceptado.
	LastCounterUsed *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFARepository define operaciones sobre MFA (enrolamiento y backup codes).
type MFARepository interface {
	// Upsert crea o reemplaza el enrolamiento de un usuario.
	Upsert(ctx context.Context, e *MFAEnrollment) error

	// Get obtiene el enrolamiento. ErrNotFound si no existe.
	Get(ctx context.Context, userEmail string) (*MFAEnrollment, error)

	// Confirm marca el enrolamiento como habilitado (primera verificación).
	Confirm(ctx context.Context, userEmail string) error

	// UpdateLastCounter guarda el último contador TOTP usado (anti-replay).
	UpdateLastCounter(ctx context.Context, userEmail string, counter int64) error

	// Disable elimina el enrolamiento del usuario.
	Disable(ctx context.Context, userEmail string) error

	// SetBackupCodes reemplaza el set completo de backup codes.
	// Los codes llegan ya hasheados (argon2id en formato PHC).
	SetBackupCodes(ctx context.Context, userEmail string, hashes []string) error

	// ListBackupCodes retorna los hashes no consumidos.
	ListBackupCodes(ctx context.Context, userEmail string) ([]string, error)

	// ConsumeBackupCode elimina atómicamente el hash dado si existe.
	// Retorna true solo para el caller que efectivamente lo consumió:
	// dos requests concurrentes con el mismo code no pueden ganar ambos.
	ConsumeBackupCode(ctx context.Context, userEmail, hash string) (bool, error)

	// CountBackupCodes retorna cuántos codes quedan sin consumir.
	CountBackupCodes(ctx context.Context, userEmail string) (int, error)
}
