package memory

import (
	"context"
	"sync"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type businessRepo struct {
	mu   sync.Mutex
	regs map[string]*repository.BusinessRegistration
}

func newBusinessRepo() *businessRepo {
	return &businessRepo{regs: make(map[string]*repository.BusinessRegistration)}
}

func (r *businessRepo) Get(ctx context.Context, businessID string) (*repository.BusinessRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[businessID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *businessRepo) Create(ctx context.Context, reg *repository.BusinessRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[reg.BusinessID]; ok {
		return repository.ErrConflict
	}
	cp := *reg
	r.regs[reg.BusinessID] = &cp
	return nil
}

func (r *businessRepo) Update(ctx context.Context, reg *repository.BusinessRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[reg.BusinessID]; !ok {
		return repository.ErrNotFound
	}
	cp := *reg
	r.regs[reg.BusinessID] = &cp
	return nil
}
