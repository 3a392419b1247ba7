package session

import (
	"context"
	"time"

	"github.com/warshatech/trustgate/internal/observability/logger"
)

// Sweeper revoca periódicamente las sesiones vencidas por idle o por
// expiración absoluta. Complementa el check perezoso de Resolve: cualquiera
// de los dos alcanza para la garantía, el sweeper solo acota la basura.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
}

// NewSweeper crea el sweeper.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{manager: m, interval: interval}
}

// Run barre hasta que el contexto se cancela. Llamar en una goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.Named("session.sweeper")
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.manager.repo.RevokeExpired(ctx, time.Now().UTC(), s.manager.opts.IdleTimeout)
			if err != nil {
				log.Warn("sweep failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Info("expired sessions revoked", logger.Count(n))
			}
		}
	}
}
