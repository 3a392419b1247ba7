package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type mfaRepo struct {
	pool *pgxpool.Pool
}

func (r *mfaRepo) Upsert(ctx context.Context, e *repository.MFAEnrollment) error {
	const query = `
		INSERT INTO mfa_enrollment (user_email, method, secret_encrypted, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())
		ON CONFLICT (user_email) DO UPDATE SET
			method = $2, secret_encrypted = $3, enabled = FALSE,
			last_counter_used = NULL, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, e.UserEmail, string(e.Method), e.SecretEncrypted)
	if err != nil {
		return fmt.Errorf("upsert mfa: %w", err)
	}
	return nil
}

func (r *mfaRepo) Get(ctx context.Context, userEmail string) (*repository.MFAEnrollment, error) {
	const query = `
		SELECT user_email, method, secret_encrypted, enabled, last_counter_used, created_at, updated_at
		FROM mfa_enrollment WHERE user_email = $1
	`
	var e repository.MFAEnrollment
	var method string
	err := r.pool.QueryRow(ctx, query, userEmail).Scan(
		&e.UserEmail, &method, &e.SecretEncrypted, &e.Enabled, &e.LastCounterUsed, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mfa: %w", err)
	}
	e.Method = repository.MFAMethod(method)
	return &e, nil
}

func (r *mfaRepo) Confirm(ctx context.Context, userEmail string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE mfa_enrollment SET enabled = TRUE, updated_at = NOW() WHERE user_email = $1`, userEmail)
	if err != nil {
		return fmt.Errorf("confirm mfa: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mfaRepo) UpdateLastCounter(ctx context.Context, userEmail string, counter int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mfa_enrollment SET last_counter_used = $1, updated_at = NOW() WHERE user_email = $2`,
		counter, userEmail)
	if err != nil {
		return fmt.Errorf("update last counter: %w", err)
	}
	return nil
}

func (r *mfaRepo) Disable(ctx context.Context, userEmail string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_code WHERE user_email = $1`, userEmail); err != nil {
		return fmt.Errorf("disable mfa: delete codes: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM mfa_enrollment WHERE user_email = $1`, userEmail)
	if err != nil {
		return fmt.Errorf("disable mfa: delete enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *mfaRepo) SetBackupCodes(ctx context.Context, userEmail string, hashes []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// reemplazo completo: el set anterior queda invalidado
	if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_code WHERE user_email = $1`, userEmail); err != nil {
		return fmt.Errorf("set backup codes: delete old: %w", err)
	}
	for _, hash := range hashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO mfa_backup_code (user_email, code_hash, created_at) VALUES ($1, $2, NOW())`,
			userEmail, hash); err != nil {
			return fmt.Errorf("set backup codes: insert: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *mfaRepo) ListBackupCodes(ctx context.Context, userEmail string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code_hash FROM mfa_backup_code WHERE user_email = $1`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ConsumeBackupCode borra el hash en un único DELETE: de dos requests
// concurrentes con el mismo code solo uno ve RowsAffected = 1.
func (r *mfaRepo) ConsumeBackupCode(ctx context.Context, userEmail, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM mfa_backup_code WHERE user_email = $1 AND code_hash = $2`, userEmail, hash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *mfaRepo) CountBackupCodes(ctx context.Context, userEmail string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_backup_code WHERE user_email = $1`, userEmail).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return count, nil
}
