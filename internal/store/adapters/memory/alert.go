package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type alertRepo struct {
	mu     sync.Mutex
	alerts map[string]*repository.SecurityAlert
}

func newAlertRepo() *alertRepo {
	return &alertRepo{alerts: make(map[string]*repository.SecurityAlert)}
}

func (r *alertRepo) Create(ctx context.Context, a *repository.SecurityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[a.ID]; ok {
		return repository.ErrConflict
	}
	cp := *a
	r.alerts[a.ID] = &cp
	return nil
}

func (r *alertRepo) Get(ctx context.Context, id string) (*repository.SecurityAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *alertRepo) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Resolved = true
	a.ResolvedBy = &resolvedBy
	a.ResolvedAt = &at
	a.ResolutionNotes = &notes
	return nil
}

func (r *alertRepo) Summary(ctx context.Context, since time.Time, types []string) (*repository.AlertSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	typeFilter := toSet(types)
	sum := &repository.AlertSummary{ByType: map[string]int{}}

	var criticals []repository.SecurityAlert
	for _, a := range r.alerts {
		if a.CreatedAt.Before(since) {
			continue
		}
		if len(typeFilter) > 0 {
			if _, ok := typeFilter[a.AlertType]; !ok {
				continue
			}
		}
		sum.Total++
		sum.ByType[a.AlertType]++
		if !a.Resolved {
			sum.Unresolved++
		}
		if a.Severity == repository.SeverityCritical {
			sum.Critical++
			criticals = append(criticals, *a)
		}
	}

	sort.Slice(criticals, func(i, j int) bool {
		return criticals[i].CreatedAt.After(criticals[j].CreatedAt)
	})
	if len(criticals) > 10 {
		criticals = criticals[:10]
	}
	sum.RecentCritical = criticals
	return sum, nil
}

func toSet(xs []string) map[string]struct{} {
	if len(xs) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	return set
}
