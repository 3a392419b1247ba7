// Package pg implementa los repositorios sobre PostgreSQL con pgx.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

// Store agrupa los repositorios Postgres sobre un pool compartido.
type Store struct {
	pool *pgxpool.Pool

	sessions *sessionRepo
	mfa      *mfaRepo
	alerts   *alertRepo
	audit    *auditRepo
	license  *licenseRepo
	business *businessRepo
	users    *userRepo
}

// New conecta al cluster y construye el store.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	return &Store{
		pool:     pool,
		sessions: &sessionRepo{pool: pool},
		mfa:      &mfaRepo{pool: pool},
		alerts:   &alertRepo{pool: pool},
		audit:    &auditRepo{pool: pool},
		license:  &licenseRepo{pool: pool},
		business: &businessRepo{pool: pool},
		users:    &userRepo{pool: pool},
	}, nil
}

func (s *Store) Sessions() repository.SessionRepository  { return s.sessions }
func (s *Store) MFA() repository.MFARepository           { return s.mfa }
func (s *Store) Alerts() repository.AlertRepository      { return s.alerts }
func (s *Store) Audit() repository.AuditRepository       { return s.audit }
func (s *Store) License() repository.LicenseRepository   { return s.license }
func (s *Store) Business() repository.BusinessRepository { return s.business }
func (s *Store) Users() repository.UserRepository        { return s.users }

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool.
func (s *Store) Close() { s.pool.Close() }
