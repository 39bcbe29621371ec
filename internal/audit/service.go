package audit

import (
	"context"
	"errors"
	"iter"

	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/metrics"
	"github.com/xela07ax/folio-core/internal/shared"
)

const defaultPageSize = 200

// Service превращает каждое событие шины ровно в одну запись аудита и
// обслуживает запросы комплаенса.
type Service struct {
	store    *ReliableStore
	dlq      DeadLetterQueue
	clock    shared.Clock
	pageSize int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

// WithPageSize задает, сколько записей ленивый запрос берет за одно обращение.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewService(store *ReliableStore, dlq DeadLetterQueue, clock shared.Clock, logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:    store,
		dlq:      dlq,
		clock:    clock,
		pageSize: defaultPageSize,
		logger:   logger.Named("audit-service"),
		metrics:  m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register подписывает сервис на все типы событий шины.
func (s *Service) Register(bus *events.Bus) *events.Subscription {
	return bus.SubscribeAll("audit", s.OnEvent)
}

// OnEvent дописывает запись для ev. Повторная доставка ничего не делает.
// Несохраненная запись уходит в очередь недоставленных; ошибка
// возвращается, только если не удалось и это.
func (s *Service) OnEvent(ctx context.Context, ev events.Event) error {
	rec, err := FromEvent(ev)
	if err != nil {
		return err
	}

	inserted, err := s.store.Append(ctx, rec)
	if err != nil {
		return s.park(ctx, rec, err)
	}
	if !inserted {
		s.metrics.AuditDuplicates.Inc()
		s.logger.Debug("duplicate event ignored", zap.String("source_event_id", rec.SourceEventID))
		return nil
	}

	s.metrics.AuditAppended.Inc()
	return nil
}

func (s *Service) park(ctx context.Context, rec Record, cause error) error {
	dl := DeadLetter{Record: rec, Error: cause.Error(), FailedAt: s.clock.Now()}
	var pf *PersistenceFailure
	if errors.As(cause, &pf) {
		dl.Attempts = pf.Attempts
	}

	if err := s.dlq.Push(context.WithoutCancel(ctx), dl); err != nil {
		// Крайний случай: запись целиком уходит в лог, чтобы ее можно было восстановить вручную.
		s.logger.Error("CRITICAL: audit record lost to dead-letter failure",
			zap.Any("record", rec),
			zap.NamedError("append_error", cause),
			zap.Error(err))
		return errors.Join(cause, err)
	}

	s.metrics.AuditDeadLetters.Inc()
	s.logger.Error("audit record dead-lettered",
		zap.String("source_event_id", rec.SourceEventID),
		zap.String("action", rec.Action),
		zap.Int("attempts", dl.Attempts),
		zap.Error(cause))
	return nil
}

// Records: ленивая последовательность подходящих записей по OccurredAt.
// Ничего не читается до range, и каждый range начинается
// с первой записи.
func (s *Service) Records(ctx context.Context, f Filter) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var cur Cursor
		for {
			page, err := s.store.Page(ctx, f, cur, s.pageSize)
			if err != nil {
				yield(Record{}, err)
				return
			}
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			cur = CursorOf(page[len(page)-1])
		}
	}
}

// Query собирает Records в слайс и останавливается на limit записях,
// если limit положителен.
func (s *Service) Query(ctx context.Context, f Filter, limit int) ([]Record, error) {
	out := []Record{}
	for r, err := range s.Records(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Service) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	return s.dlq.List(ctx)
}

// ReplayResult: итог повторной обработки очереди.
type ReplayResult struct {
	Replayed   int `json:"replayed"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Replay забирает всю очередь недоставленных и повторяет каждую запись.
// Повторно упавшие возвращаются в очередь; если и это не удалось, park пишет
// запись целиком в лог, а Replay идет дальше и отдает все ошибки разом.
func (s *Service) Replay(ctx context.Context) (ReplayResult, error) {
	var res ReplayResult
	parked, err := s.dlq.Drain(ctx)
	if err != nil {
		return res, err
	}

	var errs []error
	for _, dl := range parked {
		inserted, err := s.store.Append(ctx, dl.Record)
		switch {
		case err != nil:
			res.Failed++
			if perr := s.park(ctx, dl.Record, err); perr != nil {
				errs = append(errs, perr)
			}
		case inserted:
			res.Replayed++
			s.metrics.AuditAppended.Inc()
		default:
			res.Duplicates++
		}
	}

	s.logger.Info("dead letters replayed",
		zap.Int("replayed", res.Replayed),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Int("lost", len(errs)))
	return res, errors.Join(errs...)
}
