package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type licenseRepo struct {
	pool *pgxpool.Pool
}

const licenseColumns = `license_key, hardware_fingerprint, reduced_fingerprint,
	business_id, issued_at, expires_at, max_users, features, status,
	cached_token, cached_token_issued_at, cached_token_expires_at`

func (r *licenseRepo) Get(ctx context.Context, licenseKey string) (*repository.License, error) {
	var l repository.License
	var status string
	var hwFP, redFP, cachedToken *string
	err := r.pool.QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM license WHERE license_key = $1`, licenseKey,
	).Scan(&l.LicenseKey, &hwFP, &redFP, &l.BusinessID, &l.IssuedAt, &l.ExpiresAt,
		&l.MaxUsers, &l.Features, &status, &cachedToken, &l.CachedTokenIssuedAt, &l.CachedTokenExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	if hwFP != nil {
		l.HardwareFingerprint = *hwFP
	}
	if redFP != nil {
		l.ReducedFingerprint = *redFP
	}
	if cachedToken != nil {
		l.CachedToken = *cachedToken
	}
	l.Status = repository.LicenseStatus(status)
	return &l, nil
}

func (r *licenseRepo) Save(ctx context.Context, lic *repository.License) error {
	const query = `
		INSERT INTO license (
			license_key, hardware_fingerprint, reduced_fingerprint, business_id,
			issued_at, expires_at, max_users, features, status,
			cached_token, cached_token_issued_at, cached_token_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (license_key) DO UPDATE SET
			hardware_fingerprint = $2, reduced_fingerprint = $3, business_id = $4,
			issued_at = $5, expires_at = $6, max_users = $7, features = $8, status = $9,
			cached_token = $10, cached_token_issued_at = $11, cached_token_expires_at = $12
	`
	_, err := r.pool.Exec(ctx, query,
		lic.LicenseKey, nullIfEmpty(lic.HardwareFingerprint), nullIfEmpty(lic.ReducedFingerprint),
		lic.BusinessID, lic.IssuedAt, lic.ExpiresAt, lic.MaxUsers, lic.Features, string(lic.Status),
		nullIfEmpty(lic.CachedToken), lic.CachedTokenIssuedAt, lic.CachedTokenExpiresAt)
	if err != nil {
		return fmt.Errorf("save license: %w", err)
	}
	return nil
}

// BindFingerprint es first-bind-only: solo escribe si no hay fingerprint
// previo o si es idéntico al que ya está ligado.
func (r *licenseRepo) BindFingerprint(ctx context.Context, licenseKey, full, reduced string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE license
		SET hardware_fingerprint = $1, reduced_fingerprint = $2
		WHERE license_key = $3
		  AND (hardware_fingerprint IS NULL OR hardware_fingerprint = $1)
	`, full, reduced, licenseKey)
	if err != nil {
		return fmt.Errorf("bind fingerprint: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM license WHERE license_key = $1)`, licenseKey).Scan(&exists); err != nil {
		return fmt.Errorf("bind fingerprint: check exists: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrAlreadyBound
}

func (r *licenseRepo) Rebind(ctx context.Context, licenseKey, full, reduced string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE license SET hardware_fingerprint = $1, reduced_fingerprint = $2
		WHERE license_key = $3
	`, full, reduced, licenseKey)
	if err != nil {
		return fmt.Errorf("rebind fingerprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *licenseRepo) UpdateStatus(ctx context.Context, licenseKey string, status repository.LicenseStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE license SET status = $1 WHERE license_key = $2`, string(status), licenseKey)
	if err != nil {
		return fmt.Errorf("update license status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *licenseRepo) SaveCachedToken(ctx context.Context, licenseKey, token string, issuedAt, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE license
		SET cached_token = $1, cached_token_issued_at = $2, cached_token_expires_at = $3
		WHERE license_key = $4
	`, token, issuedAt, expiresAt, licenseKey)
	if err != nil {
		return fmt.Errorf("save cached token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
