// Package memory implementa los repositorios de dominio en memoria.
//
// Pensado para desarrollo y tests. Las garantías de atomicidad
// (consumo de backup codes, eviction de sesiones) se cumplen con un
// mutex por repositorio: misma semántica observable que el adapter pg.
package memory

import (
	"github.com/warshatech/trustgate/internal/domain/repository"
)

// Store agrupa los repositorios en memoria.
type Store struct {
	sessions *sessionRepo
	mfa      *mfaRepo
	alerts   *alertRepo
	audit    *auditRepo
	license  *licenseRepo
	business *businessRepo
	users    *userRepo
}

// New crea un store vacío.
func New() *Store {
	return &Store{
		sessions: newSessionRepo(),
		mfa:      newMFARepo(),
		alerts:   newAlertRepo(),
		audit:    newAuditRepo(),
		license:  newLicenseRepo(),
		business: newBusinessRepo(),
		users:    newUserRepo(),
	}
}

func (s *Store) Sessions() repository.SessionRepository  { return s.sessions }
func (s *Store) MFA() repository.MFARepository           { return s.mfa }
func (s *Store) Alerts() repository.AlertRepository      { return s.alerts }
func (s *Store) Audit() repository.AuditRepository       { return s.audit }
func (s *Store) License() repository.LicenseRepository   { return s.license }
func (s *Store) Business() repository.BusinessRepository { return s.business }
func (s *Store) Users() repository.UserRepository        { return s.users }
