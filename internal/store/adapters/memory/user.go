package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type userRepo struct {
	mu    sync.Mutex
	users map[string]*repository.User
}

func newUserRepo() *userRepo {
	return &userRepo{users: make(map[string]*repository.User)}
}

func (r *userRepo) Get(ctx context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) Create(ctx context.Context, u *repository.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Email]; ok {
		return repository.ErrConflict
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.users[u.Email] = &cp
	return nil
}

func (r *userRepo) SetMFARequired(ctx context.Context, email string, required bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return repository.ErrNotFound
	}
	u.MFARequired = required
	return nil
}
