package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type alertRepo struct {
	pool *pgxpool.Pool
}

const alertColumns = `id, alert_type, severity, user_email, source_ip, details,
	escalation_level, created_at, resolved, resolved_by, resolved_at, resolution_notes`

func (r *alertRepo) Create(ctx context.Context, a *repository.SecurityAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO security_alert (
			id, alert_type, severity, user_email, source_ip, details,
			escalation_level, created_at, resolved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.AlertType, string(a.Severity), a.UserEmail, a.SourceIP,
		a.Details, a.EscalationLevel, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (r *alertRepo) Get(ctx context.Context, id string) (*repository.SecurityAlert, error) {
	var a repository.SecurityAlert
	var severity string
	err := r.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM security_alert WHERE id = $1`, id,
	).Scan(&a.ID, &a.AlertType, &severity, &a.UserEmail, &a.SourceIP, &a.Details,
		&a.EscalationLevel, &a.CreatedAt, &a.Resolved, &a.ResolvedBy, &a.ResolvedAt, &a.ResolutionNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	a.Severity = repository.AlertSeverity(severity)
	return &a, nil
}

func (r *alertRepo) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE security_alert
		SET resolved = TRUE, resolved_by = $1, resolution_notes = $2, resolved_at = $3
		WHERE id = $4
	`, resolvedBy, notes, at, id)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *alertRepo) Summary(ctx context.Context, since time.Time, types []string) (*repository.AlertSummary, error) {
	where := `created_at >= $1`
	args := []any{since}
	if len(types) > 0 {
		where += ` AND alert_type = ANY($2)`
		args = append(args, types)
	}

	s := &repository.AlertSummary{ByType: map[string]int{}}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT resolved),
			COUNT(*) FILTER (WHERE severity = 'critical')
		FROM security_alert WHERE `+where, args...,
	).Scan(&s.Total, &s.Unresolved, &s.Critical)
	if err != nil {
		return nil, fmt.Errorf("alert summary: totals: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT alert_type, COUNT(*) FROM security_alert WHERE `+where+` GROUP BY alert_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("alert summary: by type: %w", err)
	}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			rows.Close()
			return nil, err
		}
		s.ByType[t] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT `+alertColumns+` FROM security_alert
		WHERE `+where+` AND severity = 'critical'
		ORDER BY created_at DESC
		LIMIT 10
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("alert summary: recent critical: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a repository.SecurityAlert
		var severity string
		if err := rows.Scan(&a.ID, &a.AlertType, &severity, &a.UserEmail, &a.SourceIP, &a.Details,
			&a.EscalationLevel, &a.CreatedAt, &a.Resolved, &a.ResolvedBy, &a.ResolvedAt, &a.ResolutionNotes); err != nil {
			return nil, err
		}
		a.Severity = repository.AlertSeverity(severity)
		s.RecentCritical = append(s.RecentCritical, a)
	}
	return s, rows.Err()
}
