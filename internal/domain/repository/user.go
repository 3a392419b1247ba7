package repository

import (
	"context"
	"time"
)

// User es la cuenta mínima que el trust framework necesita conocer:
// credencial primaria, roles y si la cuenta exige MFA. El perfil completo
// vive en el ERP, fuera de este subsistema.
type User struct {
	Email        string
	Phone        string // destino de códigos OOB (SMS/WhatsApp)
	PasswordHash string
	Roles        []string
	MFARequired  bool
	CreatedAt    time.Time
}

// HasRole verifica membresía de rol.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserRepository define el acceso a cuentas.
type UserRepository interface {
	// Get obtiene un usuario por email. ErrNotFound si no existe.
	Get(ctx context.Context, email string) (*User, error)

	// Create persiste un usuario. ErrConflict si ya existe.
	Create(ctx context.Context, u *User) error

	// SetMFARequired marca la cuenta como obligada a segundo factor.
	SetMFARequired(ctx context.Context, email string, required bool) error
}
