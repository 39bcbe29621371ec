package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/metrics"
)

/*
Bus: диспетчер событий процесса между чатом и его потребителями (прежде всего аудитом).

- Publish только ставит событие в очередь и никогда не ждет: ни обработчиков,
  ни свободного места. Очередь не ограничена, highWater лишь порог для
  предупреждения в логе. Так ответ чата не зависит от скорости аудита, а
  принятое событие не теряется.
- Очередь разбирает одна горутина-диспетчер. События доходят до обработчиков
  в глобальном порядке Publish; обработчики одного события идут в порядке
  подписки, и обработчик не получит следующее событие, пока не закончит текущее.
- Ошибка или паника обработчика уходит в ErrorSink, остальные подписчики и
  издатель ее не видят.
- Stop закрывает прием и ждет, пока все принятое будет доставлено (drain).
*/

var ErrBusClosed = errors.New("event bus is closed")

// Handler получает одно событие. Ошибку изолирует шина.
type Handler func(ctx context.Context, ev Event) error

// HandlerFailure получает ErrorSink при сбое подписчика.
type HandlerFailure struct {
	Subscriber string
	Event      Event
	Err        error
	Panic      any
}

func (f HandlerFailure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("handler %s panicked on %s %s: %v", f.Subscriber, f.Event.Type, f.Event.ID, f.Panic)
	}
	return fmt.Sprintf("handler %s failed on %s %s: %v", f.Subscriber, f.Event.Type, f.Event.ID, f.Err)
}

func (f HandlerFailure) Unwrap() error { return f.Err }

// ErrorSink собирает изолированные сбои обработчиков.
type ErrorSink interface {
	Report(f HandlerFailure)
}

// LogSink пишет сбои в zap.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(f HandlerFailure) {
	s.logger.Error("event handler failed",
		zap.String("subscriber", f.Subscriber),
		zap.String("event_id", f.Event.ID.String()),
		zap.String("event_type", string(f.Event.Type)),
		zap.Any("panic", f.Panic),
		zap.Error(f.Err),
	)
}

type envelope struct {
	ev      Event
	barrier chan struct{} // только для маркеров Flush
}

type Bus struct {
	// mu защищает очередь и флаг closed; cond будит диспетчер
	mu        sync.Mutex
	cond      *sync.Cond
	closed    bool
	pending   []envelope
	highWater int
	warned    bool

	regMu    sync.Mutex // сериализует писателей снапшота реестра
	registry atomic.Pointer[registry]
	seq      atomic.Uint64

	sink    ErrorSink
	logger  *zap.Logger
	metrics *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	done      chan struct{}
}

type Option func(*Bus)

// WithErrorSink заменяет sink по умолчанию (zap).
func WithErrorSink(s ErrorSink) Option {
	return func(b *Bus) { b.sink = s }
}

// NewBus создает пустой реестр. Доставка начинается после Start, а события,
// опубликованные раньше, ждут в очереди. highWater: глубина очереди, после
// которой шина предупреждает, что диспетчер не успевает.
func NewBus(highWater int, logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Bus {
	if highWater <= 0 {
		highWater = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		highWater: highWater,
		logger:    logger.With(zap.String("mod", "bus")),
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	b.sink = NewLogSink(b.logger)
	b.registry.Store(&registry{byType: map[Type][]*Subscription{}})
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Start() {
	b.startOnce.Do(func() {
		go b.dispatch()
	})
}

// Publish ставит ev в очередь для всех текущих подписчиков его типа и сразу
// возвращается. Единственная ошибка: ErrBusClosed после Stop.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	if err := b.enqueue(envelope{ev: ev}); err != nil {
		b.metrics.BusPublishErrors.Inc()
		return err
	}
	b.metrics.BusPublished.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

func (b *Bus) enqueue(env envelope) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.pending = append(b.pending, env)
	depth := len(b.pending)
	warn := depth > b.highWater && !b.warned
	if warn {
		b.warned = true
	}
	b.mu.Unlock()

	b.cond.Signal()
	b.metrics.BusQueueDepth.Inc()
	if warn {
		b.logger.Warn("bus backlog above high water mark",
			zap.Int("depth", depth),
			zap.Int("high_water", b.highWater))
	}
	return nil
}

// Flush блокируется, пока не доставлено все, что опубликовано до вызова.
func (b *Bus) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if err := b.enqueue(envelope{barrier: marker}); err != nil {
		return err
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop перестает принимать события и ждет, пока очередь опустеет.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := len(b.pending)
	b.mu.Unlock()
	b.cond.Broadcast()

	b.logger.Info("stopping bus: draining queue", zap.Int("pending", pending))
	b.Start() // шина, которую так и не запустили, все равно доставляет принятое

	select {
	case <-b.done:
		b.cancel()
		b.logger.Info("bus stopped gracefully")
		return nil
	case <-ctx.Done():
		b.cancel()
		return fmt.Errorf("bus drain interrupted: %w", ctx.Err())
	}
}

// dispatch забирает очередь пачками: издатели дописывают в свободный буфер,
// пока диспетчер разбирает предыдущий.
func (b *Bus) dispatch() {
	defer close(b.done)
	var spare []envelope
	for {
		b.mu.Lock()
		for len(b.pending) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return
		}
		batch := b.pending
		b.pending = spare[:0]
		b.warned = false
		b.mu.Unlock()

		for _, env := range batch {
			if env.barrier != nil {
				close(env.barrier)
			} else {
				b.deliver(env.ev)
			}
			b.metrics.BusQueueDepth.Dec()
		}
		clear(batch)
		spare = batch
	}
}

func (b *Bus) deliver(ev Event) {
	for _, sub := range b.registry.Load().match(ev.Type) {
		if !sub.active.Load() {
			continue
		}
		b.invoke(sub, ev)
	}
}

func (b *Bus) invoke(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(HandlerFailure{Subscriber: sub.name, Event: ev, Panic: r})
		}
	}()
	if err := sub.handler(b.ctx, ev); err != nil {
		b.fail(HandlerFailure{Subscriber: sub.name, Event: ev, Err: err})
	}
}

func (b *Bus) fail(f HandlerFailure) {
	b.metrics.BusHandlerFailures.WithLabelValues(string(f.Event.Type)).Inc()
	b.sink.Report(f)
}
