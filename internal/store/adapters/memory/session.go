package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type sessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session // por ID interno
	byHash   map[string]string              // session_id_hash → ID
}

func newSessionRepo() *sessionRepo {
	return &sessionRepo{
		sessions: make(map[string]*repository.Session),
		byHash:   make(map[string]string),
	}
}

// Create cuenta-y-evicta bajo el mismo lock: dos logins concurrentes no
// pueden quedar ambos por debajo del límite.
func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput, maxActive int) (*repository.Session, *repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	var evicted *repository.Session
	if maxActive > 0 {
		active := r.activeByUserLocked(input.UserEmail, now)
		if len(active) >= maxActive {
			// la más vieja por last_activity
			sort.Slice(active, func(i, j int) bool {
				return active[i].LastActivity.Before(active[j].LastActivity)
			})
			oldest := active[0]
			at := now
			by := "system"
			reason := "concurrent session limit"
			oldest.RevokedAt = &at
			oldest.RevokedBy = &by
			oldest.RevokeReason = &reason
			cp := *oldest
			evicted = &cp
		}
	}

	s := &repository.Session{
		ID:            uuid.NewString(),
		UserEmail:     input.UserEmail,
		SessionIDHash: input.SessionIDHash,
		CreatedAt:     now,
		LastActivity:  now,
		ExpiresAt:     input.ExpiresAt,
	}
	if input.IPAddress != "" {
		v := input.IPAddress
		s.IPAddress = &v
	}
	if input.UserAgent != "" {
		v := input.UserAgent
		s.UserAgent = &v
	}
	if input.DeviceFingerprint != "" {
		v := input.DeviceFingerprint
		s.DeviceFingerprint = &v
	}

	r.sessions[s.ID] = s
	r.byHash[s.SessionIDHash] = s.ID

	cp := *s
	return &cp, evicted, nil
}

func (r *sessionRepo) GetByIDHash(ctx context.Context, hash string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.sessions[id]
	return &cp, nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) Touch(ctx context.Context, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[hash]
	if !ok {
		return repository.ErrNotFound
	}
	r.sessions[id].LastActivity = at
	return nil
}

func (r *sessionRepo) Elevate(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[hash]
	if !ok {
		return repository.ErrNotFound
	}
	r.sessions[id].Elevated = true
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, id, revokedBy, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if s.RevokedAt != nil {
		return false, nil // idempotente
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	s.RevokedBy = &revokedBy
	s.RevokeReason = &reason
	return true, nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, userEmail, excludeID, revokedBy, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for _, s := range r.sessions {
		if s.UserEmail != userEmail || s.RevokedAt != nil || s.ID == excludeID {
			continue
		}
		s.RevokedAt = &now
		by := revokedBy
		rs := reason
		s.RevokedBy = &by
		s.RevokeReason = &rs
		count++
	}
	return count, nil
}

func (r *sessionRepo) ListActiveByUser(ctx context.Context, userEmail string, now time.Time) ([]repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.activeByUserLocked(userEmail, now)
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActivity.After(active[j].LastActivity)
	})
	out := make([]repository.Session, 0, len(active))
	for _, s := range active {
		out = append(out, *s)
	}
	return out, nil
}

func (r *sessionRepo) RevokeExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.sessions {
		if s.RevokedAt != nil {
			continue
		}
		expired := now.After(s.ExpiresAt)
		idle := idleTimeout > 0 && now.Sub(s.LastActivity) > idleTimeout
		if !expired && !idle {
			continue
		}
		at := now
		by := "system"
		reason := "absolute timeout"
		if idle && !expired {
			reason = "idle timeout"
		}
		s.RevokedAt = &at
		s.RevokedBy = &by
		s.RevokeReason = &reason
		count++
	}
	return count, nil
}

// Stats agrega sobre la ventana [from, to).
func (r *sessionRepo) Stats(ctx context.Context, from, to time.Time) (*repository.SessionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stats := &repository.SessionStats{}
	users := map[string]struct{}{}
	devices := map[string]int{}
	var totalDur time.Duration
	var durCount int

	for _, s := range r.sessions {
		if s.RevokedAt == nil && now.Before(s.ExpiresAt) {
			stats.ActiveSessions++
		}
		// inclusivo en from, exclusivo en to
		if (s.CreatedAt.Equal(from) || s.CreatedAt.After(from)) && s.CreatedAt.Before(to) {
			stats.LoginsToday++
			users[s.UserEmail] = struct{}{}
			if s.UserAgent != nil {
				devices[*s.UserAgent]++
			}
			end := now
			if s.RevokedAt != nil {
				end = *s.RevokedAt
			}
			totalDur += end.Sub(s.CreatedAt)
			durCount++
		}
	}

	stats.UniqueUsersToday = len(users)
	if durCount > 0 {
		stats.AvgDuration = totalDur / time.Duration(durCount)
	}
	for d, c := range devices {
		stats.TopDevices = append(stats.TopDevices, repository.DeviceCount{Device: d, Count: c})
	}
	sort.Slice(stats.TopDevices, func(i, j int) bool {
		if stats.TopDevices[i].Count != stats.TopDevices[j].Count {
			return stats.TopDevices[i].Count > stats.TopDevices[j].Count
		}
		return stats.TopDevices[i].Device < stats.TopDevices[j].Device
	})
	if len(stats.TopDevices) > 5 {
		stats.TopDevices = stats.TopDevices[:5]
	}
	return stats, nil
}

func (r *sessionRepo) activeByUserLocked(userEmail string, now time.Time) []*repository.Session {
	var out []*repository.Session
	for _, s := range r.sessions {
		if s.UserEmail != userEmail || s.RevokedAt != nil {
			continue
		}
		if now.After(s.ExpiresAt) {
			continue
		}
		out = append(out, s)
	}
	return out
}
