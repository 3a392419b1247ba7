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

type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) Get(ctx context.Context, email string) (*repository.User, error) {
	var u repository.User
	var phone *string
	err := r.pool.QueryRow(ctx, `
		SELECT email, phone, password_hash, roles, mfa_required, created_at
		FROM app_user WHERE email = $1
	`, email).Scan(&u.Email, &phone, &u.PasswordHash, &u.Roles, &u.MFARequired, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if phone != nil {
		u.Phone = *phone
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *repository.User) error {
	const query = `
		INSERT INTO app_user (email, phone, password_hash, roles, mfa_required, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		u.Email, nullIfEmpty(u.Phone), u.PasswordHash, u.Roles, u.MFARequired)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) SetMFARequired(ctx context.Context, email string, required bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE app_user SET mfa_required = $1 WHERE email = $2`, required, email)
	if err != nil {
		return fmt.Errorf("set mfa required: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
