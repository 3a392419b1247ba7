package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type licenseRepo struct {
	mu       sync.Mutex
	licenses map[string]*repository.License
}

func newLicenseRepo() *licenseRepo {
	return &licenseRepo{licenses: make(map[string]*repository.License)}
}

func (r *licenseRepo) Get(ctx context.Context, licenseKey string) (*repository.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[licenseKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *licenseRepo) Save(ctx context.Context, lic *repository.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *lic
	r.licenses[lic.LicenseKey] = &cp
	return nil
}

func (r *licenseRepo) BindFingerprint(ctx context.Context, licenseKey, full, reduced string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[licenseKey]
	if !ok {
		return repository.ErrNotFound
	}
	if l.HardwareFingerprint != "" && l.HardwareFingerprint != full {
		return repository.ErrAlreadyBound
	}
	l.HardwareFingerprint = full
	l.ReducedFingerprint = reduced
	return nil
}

func (r *licenseRepo) Rebind(ctx context.Context, licenseKey, full, reduced string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[licenseKey]
	if !ok {
		return repository.ErrNotFound
	}
	l.HardwareFingerprint = full
	l.ReducedFingerprint = reduced
	return nil
}

func (r *licenseRepo) UpdateStatus(ctx context.Context, licenseKey string, status repository.LicenseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[licenseKey]
	if !ok {
		return repository.ErrNotFound
	}
	l.Status = status
	return nil
}

func (r *licenseRepo) SaveCachedToken(ctx context.Context, licenseKey, token string, issuedAt, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[licenseKey]
	if !ok {
		return repository.ErrNotFound
	}
	l.CachedToken = token
	l.CachedTokenIssuedAt = &issuedAt
	l.CachedTokenExpiresAt = &expiresAt
	return nil
}
