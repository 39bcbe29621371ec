package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/events"
)

// SweepResult считает переходы за один проход.
type SweepResult struct {
	Idled  int
	Closed int
}

// Sweep проходит арену один раз: Active без активности IdleAfter становятся
// Idle, а молчащие SessionTimeout закрываются и удаляются.
func (s *Service) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	for _, id := range s.store.ids() {
		sl, ok := s.store.lock(id)
		if !ok {
			continue
		}
		sess := sl.session
		now := s.clock.Now()

		switch {
		case sess.ExpiredAt(now, s.cfg.SessionTimeout):
			sess.Status = domain.SessionClosed
			s.closed(ctx, sess, events.CloseTimeout, now, events.Meta{Actor: events.SystemActor})
			s.store.evict(id, sl)
			s.metrics.SessionsOpen.Dec()
			res.Closed++
		case sess.Status == domain.SessionActive && s.cfg.IdleAfter > 0 && now.Sub(sess.LastActivityAt) >= s.cfg.IdleAfter:
			sess.Status = domain.SessionIdle
			res.Idled++
		}
		sl.mu.Unlock()
	}
	return res
}

// Sweeper гоняет Sweep от одного тикера, без таймера на каждую сессию.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(svc *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger.Named("sweeper")}
}

// Run чистит раз в interval до отмены ctx.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session sweeper started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session sweeper stopped")
			return nil
		case <-ticker.C:
			res := w.svc.Sweep(ctx)
			if res.Idled > 0 || res.Closed > 0 {
				w.logger.Info("sessions swept", zap.Int("idled", res.Idled), zap.Int("closed", res.Closed))
			}
		}
	}
}
