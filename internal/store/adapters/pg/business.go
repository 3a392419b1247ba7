package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type businessRepo struct {
	pool *pgxpool.Pool
}

const businessColumns = `business_id, owner_name, civil_id, phone, registration_date,
	activity_type, trade_license_number, email, verification_hash, created_at, updated_at`

func (r *businessRepo) Get(ctx context.Context, businessID string) (*repository.BusinessRegistration, error) {
	var b repository.BusinessRegistration
	var tradeLicense, email *string
	err := r.pool.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM business_registration WHERE business_id = $1`, businessID,
	).Scan(&b.BusinessID, &b.OwnerName, &b.CivilID, &b.Phone, &b.RegistrationDate,
		&b.ActivityType, &tradeLicense, &email, &b.VerificationHash, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	if tradeLicense != nil {
		b.TradeLicenseNumber = *tradeLicense
	}
	if email != nil {
		b.Email = *email
	}
	return &b, nil
}

func (r *businessRepo) Create(ctx context.Context, reg *repository.BusinessRegistration) error {
	const query = `
		INSERT INTO business_registration (
			business_id, owner_name, civil_id, phone, registration_date,
			activity_type, trade_license_number, email, verification_hash,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		reg.BusinessID, reg.OwnerName, reg.CivilID, reg.Phone, reg.RegistrationDate,
		reg.ActivityType, nullIfEmpty(reg.TradeLicenseNumber), nullIfEmpty(reg.Email),
		reg.VerificationHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return fmt.Errorf("create business: %w", err)
	}
	return nil
}

func (r *businessRepo) Update(ctx context.Context, reg *repository.BusinessRegistration) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE business_registration
		SET owner_name = $1, civil_id = $2, phone = $3, registration_date = $4,
			activity_type = $5, trade_license_number = $6, email = $7,
			verification_hash = $8, updated_at = NOW()
		WHERE business_id = $9
	`, reg.OwnerName, reg.CivilID, reg.Phone, reg.RegistrationDate,
		reg.ActivityType, nullIfEmpty(reg.TradeLicenseNumber), nullIfEmpty(reg.Email),
		reg.VerificationHash, reg.BusinessID)
	if err != nil {
		return fmt.Errorf("update business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
