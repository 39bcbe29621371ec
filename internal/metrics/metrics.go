package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Chat: ответы по intent, отклоненный ввод, латентность ответа
	ChatTurns      *prometheus.CounterVec
	ChatRejected   prometheus.Counter
	ChatDuration   prometheus.Histogram
	SessionsOpen   prometheus.Gauge
	SessionsClosed *prometheus.CounterVec

	// Bus: очередь и изолированные сбои обработчиков
	BusQueueDepth      prometheus.Gauge
	BusPublished       *prometheus.CounterVec
	BusPublishErrors   prometheus.Counter
	BusHandlerFailures *prometheus.CounterVec

	// Audit: результат сохранения
	AuditAppended    prometheus.Counter
	AuditDuplicates  prometheus.Counter
	AuditRetries     prometheus.Counter
	AuditDeadLetters prometheus.Counter

	// Saturation: состояние предохранителя (0=closed, 1=half-open, 2=open)
	CircuitBreakerState *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	// Null Object: без registerer метрики пишутся в приватный реестр, который никто не читает.
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_chat_turns_total",
			Help: "Answered chat turns by classified intent.",
		}, []string{"intent"}),

		ChatRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_chat_rejected_total",
			Help: "Messages rejected as invalid input.",
		}),

		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_chat_turn_duration_seconds",
			Help:    "Time spent answering a chat turn, lock wait included.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		SessionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "folio_chat_sessions_open",
			Help: "Sessions held in the chat store (active or idle).",
		}),

		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_chat_sessions_closed_total",
			Help: "Closed sessions by reason.",
		}, []string{"reason"}),

		BusQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "folio_bus_queue_depth",
			Help: "Events waiting for dispatch.",
		}),

		BusPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_bus_published_total",
			Help: "Events accepted by the bus.",
		}, []string{"type"}),

		BusPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_bus_publish_errors_total",
			Help: "Publish calls rejected because the bus was closed.",
		}),

		BusHandlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_bus_handler_failures_total",
			Help: "Handler errors and panics isolated by the dispatcher.",
		}, []string{"type"}),

		AuditAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_audit_records_appended_total",
			Help: "Audit records written to the store.",
		}),

		AuditDuplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_audit_duplicates_total",
			Help: "Events ignored because their record already exists.",
		}),

		AuditRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_audit_append_retries_total",
			Help: "Failed append attempts that were retried.",
		}),

		AuditDeadLetters: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_audit_dead_letters_total",
			Help: "Records parked in the dead-letter queue after retries ran out.",
		}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "folio_circuit_breaker_state",
			Help: "Current state of a circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
	}
}
