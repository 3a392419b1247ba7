package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type mfaRepo struct {
	mu          sync.Mutex
	enrollments map[string]*repository.MFAEnrollment
	backupCodes map[string]map[string]struct{} // userEmail → set de hashes
}

func newMFARepo() *mfaRepo {
	return &mfaRepo{
		enrollments: make(map[string]*repository.MFAEnrollment),
		backupCodes: make(map[string]map[string]struct{}),
	}
}

func (r *mfaRepo) Upsert(ctx context.Context, e *repository.MFAEnrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	now := time.Now().UTC()
	if existing, ok := r.enrollments[e.UserEmail]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.enrollments[e.UserEmail] = &cp
	return nil
}

func (r *mfaRepo) Get(ctx context.Context, userEmail string) (*repository.MFAEnrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[userEmail]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *mfaRepo) Confirm(ctx context.Context, userEmail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[userEmail]
	if !ok {
		return repository.ErrNotFound
	}
	e.Enabled = true
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *mfaRepo) UpdateLastCounter(ctx context.Context, userEmail string, counter int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[userEmail]
	if !ok {
		return repository.ErrNotFound
	}
	c := counter
	e.LastCounterUsed = &c
	return nil
}

func (r *mfaRepo) Disable(ctx context.Context, userEmail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enrollments[userEmail]; !ok {
		return repository.ErrNotFound
	}
	delete(r.enrollments, userEmail)
	delete(r.backupCodes, userEmail)
	return nil
}

func (r *mfaRepo) SetBackupCodes(ctx context.Context, userEmail string, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	r.backupCodes[userEmail] = set
	return nil
}

func (r *mfaRepo) ListBackupCodes(ctx context.Context, userEmail string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for h := range r.backupCodes[userEmail] {
		out = append(out, h)
	}
	return out, nil
}

// ConsumeBackupCode: check-and-delete bajo el lock. Solo un caller gana.
func (r *mfaRepo) ConsumeBackupCode(ctx context.Context, userEmail, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.backupCodes[userEmail]
	if !ok {
		return false, nil
	}
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (r *mfaRepo) CountBackupCodes(ctx context.Context, userEmail string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backupCodes[userEmail]), nil
}
