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

type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionColumns = `id, user_email, session_id_hash, ip_address, user_agent,
	device_fingerprint, elevated, created_at, last_activity, expires_at,
	revoked_at, revoked_by, revoke_reason`

// Create cuenta-y-evicta dentro de la misma transacción con las filas
// activas del usuario bloqueadas: dos logins concurrentes no pueden quedar
// ambos por debajo del límite.
func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput, maxActive int) (*repository.Session, *repository.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var evicted *repository.Session
	if maxActive > 0 {
		rows, err := tx.Query(ctx, `
			SELECT id FROM sessions
			WHERE user_email = $1 AND revoked_at IS NULL AND expires_at > NOW()
			ORDER BY last_activity ASC
			FOR UPDATE
		`, input.UserEmail)
		if err != nil {
			return nil, nil, fmt.Errorf("create session: lock active: %w", err)
		}
		var activeIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("create session: scan active: %w", err)
			}
			activeIDs = append(activeIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, nil, fmt.Errorf("create session: iterate active: %w", err)
		}

		if len(activeIDs) >= maxActive {
			var ev repository.Session
			err := tx.QueryRow(ctx, `
				UPDATE sessions
				SET revoked_at = NOW(), revoked_by = 'system', revoke_reason = 'concurrent session limit'
				WHERE id = $1
				RETURNING `+sessionColumns, activeIDs[0]).Scan(sessionFields(&ev)...)
			if err != nil {
				return nil, nil, fmt.Errorf("create session: evict oldest: %w", err)
			}
			evicted = &ev
		}
	}

	var s repository.Session
	err = tx.QueryRow(ctx, `
		INSERT INTO sessions (
			user_email, session_id_hash, ip_address, user_agent,
			device_fingerprint, expires_at, created_at, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+sessionColumns,
		input.UserEmail, input.SessionIDHash,
		nullIfEmpty(input.IPAddress), nullIfEmpty(input.UserAgent),
		nullIfEmpty(input.DeviceFingerprint), input.ExpiresAt,
	).Scan(sessionFields(&s)...)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("create session: commit: %w", err)
	}
	return &s, evicted, nil
}

func (r *sessionRepo) GetByIDHash(ctx context.Context, hash string) (*repository.Session, error) {
	var s repository.Session
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id_hash = $1`, hash,
	).Scan(sessionFields(&s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session by hash: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*repository.Session, error) {
	var s repository.Session
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	).Scan(sessionFields(&s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) Touch(ctx context.Context, hash string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_activity = $1 WHERE session_id_hash = $2`, at, hash)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Elevate(ctx context.Context, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET elevated = TRUE WHERE session_id_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("elevate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Revoke es idempotente: una sesión ya revocada retorna (false, nil).
func (r *sessionRepo) Revoke(ctx context.Context, id, revokedBy, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = NOW(), revoked_by = $1, revoke_reason = $2
		WHERE id = $3 AND revoked_at IS NULL
	`, revokedBy, reason, id)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// distinguir "ya revocada" de "no existe"
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("revoke session: check exists: %w", err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, userEmail, excludeID, revokedBy, reason string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = NOW(), revoked_by = $1, revoke_reason = $2
		WHERE user_email = $3 AND revoked_at IS NULL AND id <> $4
	`, revokedBy, reason, userEmail, excludeID)
	if err != nil {
		return 0, fmt.Errorf("revoke all by user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) ListActiveByUser(ctx context.Context, userEmail string, now time.Time) ([]repository.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_email = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY last_activity DESC
	`, userEmail, now)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		var s repository.Session
		if err := rows.Scan(sessionFields(&s)...); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) RevokeExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $1,
			revoked_by = 'system',
			revoke_reason = CASE WHEN expires_at < $1 THEN 'absolute timeout' ELSE 'idle timeout' END
		WHERE revoked_at IS NULL
		  AND (expires_at < $1 OR ($2::bigint > 0 AND last_activity < $1 - make_interval(secs => $2)))
	`, now, int64(idleTimeout.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("revoke expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats agrega sobre la ventana [from, to).
func (r *sessionRepo) Stats(ctx context.Context, from, to time.Time) (*repository.SessionStats, error) {
	stats := &repository.SessionStats{}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE revoked_at IS NULL AND expires_at > NOW()
	`).Scan(&stats.ActiveSessions)
	if err != nil {
		return nil, fmt.Errorf("stats: count active: %w", err)
	}

	var avgSecs *float64
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(DISTINCT user_email),
			AVG(EXTRACT(EPOCH FROM COALESCE(revoked_at, NOW()) - created_at))
		FROM sessions
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&stats.LoginsToday, &stats.UniqueUsersToday, &avgSecs)
	if err != nil {
		return nil, fmt.Errorf("stats: window aggregate: %w", err)
	}
	if avgSecs != nil {
		stats.AvgDuration = time.Duration(*avgSecs * float64(time.Second))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_agent, COUNT(*)
		FROM sessions
		WHERE created_at >= $1 AND created_at < $2 AND user_agent IS NOT NULL
		GROUP BY user_agent
		ORDER BY COUNT(*) DESC, user_agent ASC
		LIMIT 5
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("stats: top devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc repository.DeviceCount
		if err := rows.Scan(&dc.Device, &dc.Count); err != nil {
			return nil, fmt.Errorf("stats: scan device: %w", err)
		}
		stats.TopDevices = append(stats.TopDevices, dc)
	}
	return stats, rows.Err()
}

func sessionFields(s *repository.Session) []any {
	return []any{
		&s.ID, &s.UserEmail, &s.SessionIDHash, &s.IPAddress, &s.UserAgent,
		&s.DeviceFingerprint, &s.Elevated, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt,
		&s.RevokedAt, &s.RevokedBy, &s.RevokeReason,
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
