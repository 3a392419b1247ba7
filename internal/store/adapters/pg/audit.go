package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

// auditRepo es append-only: la interfaz no tiene UPDATE ni DELETE y la
// tabla tampoco debería concederlos al rol de la aplicación.
type auditRepo struct {
	pool *pgxpool.Pool
}

func (r *auditRepo) Insert(ctx context.Context, e *repository.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO audit_event (id, event_type, severity, user_email, description, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID, e.EventType, string(e.Severity), e.UserEmail, e.Description, e.Details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *auditRepo) Query(ctx context.Context, since time.Time, types []string, severities []string, limit int) ([]repository.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, event_type, severity, user_email, description, details, created_at
		FROM audit_event
		WHERE created_at >= $1
	`
	args := []any{since}
	idx := 2
	if len(types) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", idx)
		args = append(args, types)
		idx++
	}
	if len(severities) > 0 {
		query += fmt.Sprintf(" AND severity = ANY($%d)", idx)
		args = append(args, severities)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []repository.AuditEvent
	for rows.Next() {
		var e repository.AuditEvent
		var severity string
		if err := rows.Scan(&e.ID, &e.EventType, &severity, &e.UserEmail, &e.Description, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Severity = repository.AlertSeverity(severity)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) Summary(ctx context.Context, since time.Time, types []string, severities []string) (*repository.AuditSummary, error) {
	where := `created_at >= $1`
	args := []any{since}
	idx := 2
	if len(types) > 0 {
		where += fmt.Sprintf(" AND event_type = ANY($%d)", idx)
		args = append(args, types)
		idx++
	}
	if len(severities) > 0 {
		where += fmt.Sprintf(" AND severity = ANY($%d)", idx)
		args = append(args, severities)
		idx++
	}

	s := &repository.AuditSummary{
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}

	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_event WHERE `+where, args...).Scan(&s.Total); err != nil {
		return nil, fmt.Errorf("audit summary: total: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT event_type, COUNT(*) FROM audit_event WHERE `+where+` GROUP BY event_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("audit summary: by type: %w", err)
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

	rows, err = r.pool.Query(ctx,
		`SELECT severity, COUNT(*) FROM audit_event WHERE `+where+` GROUP BY severity`, args...)
	if err != nil {
		return nil, fmt.Errorf("audit summary: by severity: %w", err)
	}
	for rows.Next() {
		var sv string
		var c int
		if err := rows.Scan(&sv, &c); err != nil {
			rows.Close()
			return nil, err
		}
		s.BySeverity[sv] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT user_email, COUNT(*) FROM audit_event
		WHERE `+where+` AND user_email <> ''
		GROUP BY user_email
		ORDER BY COUNT(*) DESC, user_email ASC
		LIMIT 5
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("audit summary: top users: %w", err)
	}
	for rows.Next() {
		var uc repository.UserEventCount
		if err := rows.Scan(&uc.UserEmail, &uc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		s.TopUsers = append(s.TopUsers, uc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, event_type, severity, user_email, description, details, created_at
		FROM audit_event
		WHERE `+where+` AND severity = 'critical'
		ORDER BY created_at DESC
		LIMIT 10
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("audit summary: recent critical: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e repository.AuditEvent
		var severity string
		if err := rows.Scan(&e.ID, &e.EventType, &severity, &e.UserEmail, &e.Description, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Severity = repository.AlertSeverity(severity)
		s.RecentCritical = append(s.RecentCritical, e)
	}
	return s, rows.Err()
}
