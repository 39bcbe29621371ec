package audit

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/metrics"
)

// RetryConfig ограничивает повторы Append.
type RetryConfig struct {
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// BreakerConfig: те настройки gobreaker, которые мы выносим в конфиг.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// ReliableStore оборачивает Store ограниченными повторами за предохранителем.
// Чтение идет напрямую.
type ReliableStore struct {
	next    Store
	cb      *gobreaker.CircuitBreaker
	retry   RetryConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewReliableStore(next Store, rc RetryConfig, bc BreakerConfig, logger *zap.Logger, m *metrics.Metrics) *ReliableStore {
	if rc.Attempts == 0 {
		rc.Attempts = 1 // для retry-go 0 означает "бесконечно"
	}
	if rc.BaseDelay <= 0 {
		rc.BaseDelay = 50 * time.Millisecond
	}
	if rc.MaxDelay < rc.BaseDelay {
		rc.MaxDelay = rc.BaseDelay
	}

	logger = logger.With(zap.String("mod", "audit-store"))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ReliableStore{next: next, cb: cb, retry: rc, logger: logger, metrics: m}
}

// Append повторяет запись с экспоненциальной задержкой и потолком. Когда
// попытки кончились, возвращает *PersistenceFailure.
func (s *ReliableStore) Append(ctx context.Context, rec Record) (bool, error) {
	var (
		inserted bool
		attempt  int
	)

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.retry.Attempts),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return s.backoff(n)
		}),
	)

	err := r.Do(func() error {
		attempt++
		res, err := s.cb.Execute(func() (interface{}, error) {
			return s.next.Append(ctx, rec)
		})
		if err != nil {
			if uint(attempt) < s.retry.Attempts {
				s.metrics.AuditRetries.Inc()
			}
			s.logger.Warn("audit append attempt failed",
				zap.String("source_event_id", rec.SourceEventID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		inserted = res.(bool)
		return nil
	})
	if err != nil {
		return false, &PersistenceFailure{SourceEventID: rec.SourceEventID, Attempts: attempt, Err: err}
	}
	return inserted, nil
}

func (s *ReliableStore) Page(ctx context.Context, f Filter, after Cursor, limit int) ([]Record, error) {
	return s.next.Page(ctx, f, after, limit)
}

func (s *ReliableStore) backoff(n uint) time.Duration {
	d := s.retry.BaseDelay
	for i := uint(0); i < n && d < s.retry.MaxDelay; i++ {
		d *= 2
	}
	return min(d, s.retry.MaxDelay)
}
