// Package chat отвечает посетителям по каталогу фактов и хранит
// состояние разговора по сессиям.
package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/metrics"
	"github.com/xela07ax/folio-core/internal/resolver"
	"github.com/xela07ax/folio-core/internal/shared"
)

// Publisher: та часть шины, что нужна чату.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type Config struct {
	SessionTimeout   time.Duration
	IdleAfter        time.Duration
	MaxMessageLength int
}

// Reply: то, что вызывающий получает за одно сообщение.
type Reply struct {
	SessionID    string
	InstanceID   string
	Turn         int
	Text         string
	Intent       domain.Intent
	MatchedFacts []domain.FactRef
}

type Service struct {
	store    *Store
	facts    *resolver.Registry
	bus      Publisher
	fallback events.Handler
	clock    shared.Clock
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

// WithFallback задает прямую доставку для событий, которые шина не приняла
// (например, после Stop). Обычно это audit.Service.OnEvent.
func WithFallback(h events.Handler) Option {
	return func(s *Service) { s.fallback = h }
}

func NewService(store *Store, facts *resolver.Registry, bus Publisher, clock shared.Clock, cfg Config, logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:   store,
		facts:   facts,
		bus:     bus,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("chat"),
		metrics: m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage отвечает на одно сообщение. Сообщения одной сессии идут по очереди;
// ChatResponded публикуется до возврата ответа. Пустой
// sessionID открывает новую сессию со сгенерированным id.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (Reply, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.ChatRejected.Inc()
		return Reply{}, domain.NewInvalidInput("text", domain.ErrEmptyMessage)
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		s.metrics.ChatRejected.Inc()
		return Reply{}, domain.NewInvalidInput("text", domain.ErrMessageTooLong)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sl := s.store.acquire(sessionID)
	defer sl.mu.Unlock()

	now := s.clock.Now()
	meta := events.MetaFrom(ctx)
	sess := s.ensureSession(ctx, sl, sessionID, now, meta)

	cat := s.facts.Current()
	mentions := cat.Mentions(text)
	intent := classify(text, mentions)
	response, matched := answer(cat, intent, mentions)
	refs := lo.Map(matched, func(f domain.Fact, _ int) domain.FactRef { return domain.RefOf(f) })

	turn := domain.Turn{
		Index:        len(sess.Turns),
		UserMessage:  text,
		Response:     response,
		Intent:       intent,
		MatchedFacts: refs,
		At:           now,
	}
	sess.Turns = append(sess.Turns, turn)
	sess.LastActivityAt = now
	sess.Status = domain.SessionActive

	s.publish(ctx, events.New(now, events.ChatResponded{
		SessionID:    sess.SessionID,
		InstanceID:   sess.InstanceID,
		TurnIndex:    turn.Index,
		UserMessage:  text,
		Response:     response,
		Intent:       intent,
		MatchedFacts: refs,
	}, meta))

	s.metrics.ChatTurns.WithLabelValues(string(intent)).Inc()
	s.metrics.ChatDuration.Observe(time.Since(start).Seconds())

	return Reply{
		SessionID:    sess.SessionID,
		InstanceID:   sess.InstanceID,
		Turn:         turn.Index,
		Text:         response,
		Intent:       intent,
		MatchedFacts: append([]domain.FactRef(nil), refs...),
	}, nil
}

// ensureSession возвращает живую сессию слота, заменяя отсутствующую, закрытую
// или просроченную новым экземпляром. Вызывающий держит sl.mu.
func (s *Service) ensureSession(ctx context.Context, sl *slot, id string, now time.Time, meta events.Meta) *domain.ChatSession {
	old := sl.session
	if old != nil && old.Status != domain.SessionClosed && !old.ExpiredAt(now, s.cfg.SessionTimeout) {
		return old
	}

	var prev string
	switch {
	case old == nil || old.Status == domain.SessionClosed:
		s.metrics.SessionsOpen.Inc()
	default:
		// истекла раньше, чем до нее дошел sweeper
		old.Status = domain.SessionClosed
		s.closed(ctx, old, events.CloseTimeout, now, events.Meta{Actor: events.SystemActor, TraceID: meta.TraceID})
	}
	if old != nil {
		prev = old.InstanceID
	}

	sess := &domain.ChatSession{
		SessionID:      id,
		InstanceID:     uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         domain.SessionActive,
	}
	sl.session = sess

	s.logger.Debug("session opened",
		zap.String("session_id", id),
		zap.String("instance_id", sess.InstanceID),
		zap.String("previous_instance_id", prev))
	s.publish(ctx, events.New(now, events.SessionOpened{
		SessionID:          id,
		InstanceID:         sess.InstanceID,
		PreviousInstanceID: prev,
	}, meta))
	return sess
}

// Close закрывает сессию по запросу. Текущее сообщение той же сессии
// успеет завершиться: Close ждет блокировку сессии.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	sl, ok := s.store.lock(sessionID)
	if !ok {
		return domain.ErrNotFound
	}
	defer sl.mu.Unlock()

	sess := sl.session
	if err := sess.CanTransitionTo(domain.SessionClosed); err != nil {
		return domain.ErrNotFound
	}
	sess.Status = domain.SessionClosed
	s.closed(ctx, sess, events.CloseExplicit, s.clock.Now(), events.MetaFrom(ctx))
	s.store.evict(sessionID, sl)
	s.metrics.SessionsOpen.Dec()
	return nil
}

// Session возвращает копию текущего состояния сессии.
func (s *Service) Session(sessionID string) (domain.ChatSession, error) {
	sl, ok := s.store.lock(sessionID)
	if !ok {
		return domain.ChatSession{}, domain.ErrNotFound
	}
	defer sl.mu.Unlock()
	return sl.session.Snapshot(), nil
}

func (s *Service) closed(ctx context.Context, sess *domain.ChatSession, reason events.CloseReason, now time.Time, meta events.Meta) {
	s.metrics.SessionsClosed.WithLabelValues(string(reason)).Inc()
	s.logger.Debug("session closed",
		zap.String("session_id", sess.SessionID),
		zap.String("instance_id", sess.InstanceID),
		zap.String("reason", string(reason)))
	s.publish(ctx, events.New(now, events.SessionClosed{
		SessionID:  sess.SessionID,
		InstanceID: sess.InstanceID,
		Reason:     reason,
		Turns:      len(sess.Turns),
	}, meta))
}

// publish никогда не валит ход: ответ пользователю важнее. Событие, которое
// шина не приняла, уходит в fallback; без него остается только лог.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	err := s.bus.Publish(ctx, ev)
	if err == nil {
		return
	}
	fields := []zap.Field{
		zap.String("event_id", ev.ID.String()),
		zap.String("event_type", string(ev.Type)),
		zap.Error(err),
	}
	if s.fallback == nil {
		s.logger.Error("CRITICAL: event publish failed, no fallback", append(fields, zap.Any("event", ev))...)
		return
	}
	s.logger.Warn("event publish failed, delivering directly", fields...)
	if ferr := s.fallback(context.WithoutCancel(ctx), ev); ferr != nil {
		s.logger.Error("CRITICAL: fallback delivery failed",
			append(fields, zap.NamedError("fallback_error", ferr), zap.Any("event", ev))...)
	}
}
