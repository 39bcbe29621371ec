package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/shared"
)

const (
	HeaderTraceID = "X-Trace-ID"
	HeaderActorID = "X-Actor-ID"
)

// Tracing присваивает запросу trace id и актора и передает их сервисам через
// events.Meta. Trace id возвращается в ответе.
// X-Actor-ID принимается только при trustActor (за доверенным прокси админки),
// иначе актор это IP клиента: анонимный вызов не может подписать запись аудита
// чужим именем.
func Tracing(trustActor bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(HeaderTraceID)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			actor := ""
			if trustActor {
				actor = r.Header.Get(HeaderActorID)
			}
			if actor == "" {
				actor = clientIP(r)
			}

			w.Header().Set(HeaderTraceID, traceID)
			ctx := events.WithMeta(r.Context(), events.Meta{Actor: actor, TraceID: traceID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog пишет одну строку zap на запрос.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("trace_id", events.MetaFrom(r.Context()).TraceID),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// IPRateLimiter держит по ведру токенов на IP клиента.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      10 * time.Minute,
	}
}

// Allow решает, можно ли ip сделать запрос сейчас. Ведра, простаивающие
// дольше ttl, попутно удаляются.
func (l *IPRateLimiter) Allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.ttl {
		for k, v := range l.limiters {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware отвечает 429, когда у клиента кончились токены.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			shared.WriteError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP ожидает, что middleware.RealIP уже переписал RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
