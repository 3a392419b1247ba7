package repository

import (
	"context"
	"time"
)

// BusinessRegistration representa la identidad del negocio a la que se
// liga una licencia. Los campos opcionales participan en verification_hash
// como string vacío cuando están ausentes, de modo que agregar o quitar
// un dato opcional también rompe el hash.
type BusinessRegistration struct {
	BusinessID       string
	OwnerName        string
	CivilID          string // 8 dígitos
	Phone            string // +968 + 8 dígitos
	RegistrationDate time.Time
	ActivityType     string

	TradeLicenseNumber string // opcional, 7 dígitos si está presente
	Email              string // opcional

	VerificationHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BusinessRepository define operaciones sobre registros de negocio.
// No hay Delete: el registro se crea una vez en onboarding y solo se
// edita por la vía administrativa.
type BusinessRepository interface {
	// Get obtiene un registro por su ID. ErrNotFound si no existe.
	Get(ctx context.Context, businessID string) (*BusinessRegistration, error)

	// Create persiste un registro nuevo. ErrConflict si el ID ya existe.
	Create(ctx context.Context, reg *BusinessRegistration) error

	// Update reemplaza los campos editables y el hash recalculado.
	Update(ctx context.Context, reg *BusinessRegistration) error
}
