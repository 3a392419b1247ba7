// Package business implementa el registro y la verificación de la
// identidad de negocio a la que se liga una licencia.
package business

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	tokens "github.com/warshatech/trustgate/internal/security/token"
)

var (
	civilIDRe      = regexp.MustCompile(`^\d{8}$`)
	phoneRe        = regexp.MustCompile(`^\+968\d{8}$`)
	tradeLicenseRe = regexp.MustCompile(`^\d{7}$`)
	emailRe        = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidationError señala un campo inválido o faltante. El campo viaja al
// cliente tal cual: nunca una falla genérica.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// RegisterInput son los campos de onboarding.
type RegisterInput struct {
	OwnerName        string
	CivilID          string
	Phone            string
	RegistrationDate time.Time
	ActivityType     string

	// Opcionales. Su ausencia nunca es error; su presencia malformada sí.
	TradeLicenseNumber string
	Email              string
}

// Binder valida y persiste registros de negocio.
type Binder struct {
	repo    repository.BusinessRepository
	auditor audit.Recorder
}

// NewBinder crea el binder.
func NewBinder(repo repository.BusinessRepository, auditor audit.Recorder) *Binder {
	return &Binder{repo: repo, auditor: auditor}
}

// Register valida los campos, computa el verification_hash y persiste.
func (b *Binder) Register(ctx context.Context, in RegisterInput) (*repository.BusinessRegistration, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reg := &repository.BusinessRegistration{
		BusinessID:         uuid.NewString(),
		OwnerName:          strings.TrimSpace(in.OwnerName),
		CivilID:            in.CivilID,
		Phone:              in.Phone,
		RegistrationDate:   in.RegistrationDate,
		ActivityType:       strings.TrimSpace(in.ActivityType),
		TradeLicenseNumber: in.TradeLicenseNumber,
		Email:              in.Email,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	reg.VerificationHash = VerificationHash(reg)

	if err := b.repo.Create(ctx, reg); err != nil {
		return nil, err
	}

	b.auditor.Record(ctx, audit.Entry{
		EventType:   "business_registered",
		Severity:    repository.SeverityInfo,
		UserEmail:   reg.Email,
		Description: "business registration created",
		Details:     map[string]any{"business_id": reg.BusinessID},
	})
	return reg, nil
}

// Update aplica una edición administrativa: re-valida y recalcula el hash.
func (b *Binder) Update(ctx context.Context, businessID string, in RegisterInput, editedBy string) (*repository.BusinessRegistration, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	reg, err := b.repo.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	reg.OwnerName = strings.TrimSpace(in.OwnerName)
	reg.CivilID = in.CivilID
	reg.Phone = in.Phone
	reg.RegistrationDate = in.RegistrationDate
	reg.ActivityType = strings.TrimSpace(in.ActivityType)
	reg.TradeLicenseNumber = in.TradeLicenseNumber
	reg.Email = in.Email
	reg.UpdatedAt = time.Now().UTC()
	reg.VerificationHash = VerificationHash(reg)

	if err := b.repo.Update(ctx, reg); err != nil {
		return nil, err
	}

	b.auditor.Record(ctx, audit.Entry{
		EventType:   "business_updated",
		Severity:    repository.SeverityMedium,
		UserEmail:   editedBy,
		Description: "business registration edited",
		Details:     map[string]any{"business_id": reg.BusinessID},
	})
	return reg, nil
}

// Verify recalcula el hash del registro persistido y lo compara.
// false significa manipulación de datos.
func (b *Binder) Verify(ctx context.Context, businessID string) (bool, error) {
	reg, err := b.repo.Get(ctx, businessID)
	if err != nil {
		return false, err
	}
	ok := VerificationHash(reg) == reg.VerificationHash
	if !ok {
		b.auditor.Record(ctx, audit.Entry{
			EventType:   "business_tamper_detected",
			Severity:    repository.SeverityCritical,
			Description: "business registration hash mismatch",
			Details:     map[string]any{"business_id": businessID},
		})
	}
	return ok, nil
}

// VerificationHash computa el hash canónico del registro. Los campos
// opcionales ausentes participan como string vacío, así su aparición o
// desaparición también rompe el hash.
func VerificationHash(reg *repository.BusinessRegistration) string {
	canonical := strings.Join([]string{
		reg.OwnerName,
		reg.CivilID,
		reg.Phone,
		reg.RegistrationDate.UTC().Format("2006-01-02"),
		reg.TradeLicenseNumber,
	}, "|")
	return tokens.SHA256Hex(canonical)
}

func validate(in RegisterInput) error {
	if strings.TrimSpace(in.OwnerName) == "" {
		return &ValidationError{Field: "owner_name", Reason: "required"}
	}
	if !civilIDRe.MatchString(in.CivilID) {
		return &ValidationError{Field: "civil_id", Reason: "must be exactly 8 digits"}
	}
	if !phoneRe.MatchString(in.Phone) {
		return &ValidationError{Field: "phone", Reason: "must be +968 followed by 8 digits"}
	}
	if in.RegistrationDate.IsZero() {
		return &ValidationError{Field: "registration_date", Reason: "required"}
	}
	if strings.TrimSpace(in.ActivityType) == "" {
		return &ValidationError{Field: "business_activity_type", Reason: "required"}
	}
	if in.TradeLicenseNumber != "" && !tradeLicenseRe.MatchString(in.TradeLicenseNumber) {
		return &ValidationError{Field: "trade_license_number", Reason: "must be exactly 7 digits"}
	}
	if in.Email != "" && !emailRe.MatchString(in.Email) {
		return &ValidationError{Field: "email", Reason: "invalid email syntax"}
	}
	return nil
}
