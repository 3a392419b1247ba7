package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

// auditRepo es append-only: el slice solo crece.
type auditRepo struct {
	mu     sync.Mutex
	events []repository.AuditEvent
}

func newAuditRepo() *auditRepo {
	return &auditRepo{}
}

func (r *auditRepo) Insert(ctx context.Context, e *repository.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *auditRepo) Query(ctx context.Context, since time.Time, types, severities []string, limit int) ([]repository.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	typeFilter := toSet(types)
	sevFilter := toSet(severities)

	var out []repository.AuditEvent
	for _, e := range r.events {
		if !matches(e, since, typeFilter, sevFilter) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *auditRepo) Summary(ctx context.Context, since time.Time, types, severities []string) (*repository.AuditSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	typeFilter := toSet(types)
	sevFilter := toSet(severities)

	sum := &repository.AuditSummary{
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}
	userCounts := map[string]int{}
	var criticals []repository.AuditEvent

	for _, e := range r.events {
		if !matches(e, since, typeFilter, sevFilter) {
			continue
		}
		sum.Total++
		sum.ByType[e.EventType]++
		sum.BySeverity[string(e.Severity)]++
		if e.UserEmail != "" {
			userCounts[e.UserEmail]++
		}
		if e.Severity == repository.SeverityCritical {
			criticals = append(criticals, e)
		}
	}

	for u, c := range userCounts {
		sum.TopUsers = append(sum.TopUsers, repository.UserEventCount{UserEmail: u, Count: c})
	}
	sort.Slice(sum.TopUsers, func(i, j int) bool {
		if sum.TopUsers[i].Count != sum.TopUsers[j].Count {
			return sum.TopUsers[i].Count > sum.TopUsers[j].Count
		}
		return sum.TopUsers[i].UserEmail < sum.TopUsers[j].UserEmail
	})
	if len(sum.TopUsers) > 5 {
		sum.TopUsers = sum.TopUsers[:5]
	}

	sort.Slice(criticals, func(i, j int) bool { return criticals[i].CreatedAt.After(criticals[j].CreatedAt) })
	if len(criticals) > 10 {
		criticals = criticals[:10]
	}
	sum.RecentCritical = criticals
	return sum, nil
}

func matches(e repository.AuditEvent, since time.Time, typeFilter, sevFilter map[string]struct{}) bool {
	if e.CreatedAt.Before(since) {
		return false
	}
	if len(typeFilter) > 0 {
		if _, ok := typeFilter[e.EventType]; !ok {
			return false
		}
	}
	if len(sevFilter) > 0 {
		if _, ok := sevFilter[string(e.Severity)]; !ok {
			return false
		}
	}
	return true
}
