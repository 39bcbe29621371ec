// Package server собирает chi-роутер для обоих бинарников.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/api/handler"
	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/infra/auth"
)

// Options определяет, что отдает сервер. Без Chat нет маршрутов чата
// (режим консоли); без Validator маршруты аудита открыты, это только
// для локального запуска.
type Options struct {
	Logger    *zap.Logger
	Chat      *handler.ChatHandler
	Audit     *handler.AuditHandler
	Validator auth.TokenValidator
	Gatherer  prometheus.Gatherer
	// RateLimit: сообщений чата в секунду на IP; 0 отключает лимит.
	RateLimit float64
	RateBurst int
	// DeadLetters монтирует /audit/dead-letters. Имеет смысл только когда
	// очередь этого процесса та же, куда паркует ядро.
	DeadLetters bool
	// TrustActorHeader разрешает брать актора из X-Actor-ID.
	TrustActorHeader bool
}

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	opts   Options
}

func New(opts Options) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: opts.Logger.Named("http"),
		opts:   opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Tracing(s.opts.TrustActorHeader))
	r.Use(AccessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if h := s.opts.Chat; h != nil {
		r.Route("/chat/{sessionId}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.Close)
			r.Group(func(r chi.Router) {
				if s.opts.RateLimit > 0 {
					r.Use(NewIPRateLimiter(s.opts.RateLimit, s.opts.RateBurst).Middleware)
				}
				r.Post("/message", h.PostMessage)
			})
		})
	}

	if h := s.opts.Audit; h != nil {
		r.Route("/audit", func(r chi.Router) {
			if s.opts.Validator != nil {
				r.Use(auth.NewMiddleware(s.opts.Validator, s.logger))
			} else {
				s.logger.Warn("audit routes are not protected: no auth public key configured")
			}
			r.With(s.scope(domain.ScopeAuditRead)).Get("/", h.List)
			if s.opts.DeadLetters {
				r.Route("/dead-letters", func(r chi.Router) {
					r.Use(s.scope(domain.ScopeAuditAdmin))
					r.Get("/", h.DeadLetters)
					r.Post("/replay", h.Replay)
				})
			}
		})
	}
}

// scope ничего не делает, если auth выключен.
func (s *Server) scope(name string) func(http.Handler) http.Handler {
	if s.opts.Validator == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequireScope(name)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
