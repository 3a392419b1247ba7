package license

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/security/fingerprint"
)

// Revalidator refresca la validación de licencia en background, fuera del
// request path: los handlers solo leen el último resultado cacheado.
type Revalidator struct {
	validator  *Validator
	fps        *fingerprint.Service
	licenseKey string
	interval   time.Duration

	mu   sync.RWMutex
	last *Result
}

// NewRevalidator construye el loop. interval default 6h.
func NewRevalidator(v *Validator, fps *fingerprint.Service, licenseKey string, interval time.Duration) *Revalidator {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Revalidator{
		validator:  v,
		fps:        fps,
		licenseKey: licenseKey,
		interval:   interval,
	}
}

// Last retorna el último resultado conocido, o nil si todavía no corrió.
func (r *Revalidator) Last() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Run ejecuta una validación inmediata y luego el ciclo periódico hasta
// que el contexto se cancele.
func (r *Revalidator) Run(ctx context.Context) {
	log := logger.L().Named("license.revalidator")

	r.tick(ctx, log)

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("revalidator stopped")
			return
		case <-t.C:
			r.tick(ctx, log)
		}
	}
}

func (r *Revalidator) tick(ctx context.Context, log *zap.Logger) {
	fp, err := r.fps.Fingerprint()
	if err != nil {
		log.Error("fingerprint read failed", logger.Err(err))
		return
	}
	res, err := r.validator.Validate(ctx, r.licenseKey, fp)
	if err != nil {
		log.Error("revalidation failed", logger.LicenseKey(r.licenseKey), logger.Err(err))
		return
	}

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()

	if res.Allowed() {
		log.Info("license revalidated",
			logger.LicenseKey(r.licenseKey), zap.String("state", string(res.State)))
		return
	}
	log.Warn("license not valid",
		logger.LicenseKey(r.licenseKey),
		zap.String("state", string(res.State)), zap.String("reason", res.Reason))
}
