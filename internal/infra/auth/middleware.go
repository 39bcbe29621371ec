package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/shared"
)

// TokenValidator реализуют RSAValidator и фейки в тестах.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.AdminClaims, error)
}

type ctxKey string

const claimsKey ctxKey = "admin_claims"

// NewMiddleware отклоняет запросы без валидного токена и кладет claims
// в контекст запроса.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				shared.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing token")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				shared.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireScope пропускает запрос, только если в токене есть scope.
// Ставится после NewMiddleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ClaimsFrom(r.Context()).HasScope(scope) {
				shared.WriteError(w, http.StatusForbidden, "forbidden", "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, c *domain.AdminClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFrom возвращает проверенные claims или nil для анонимного запроса.
func ClaimsFrom(ctx context.Context) *domain.AdminClaims {
	c, _ := ctx.Value(claimsKey).(*domain.AdminClaims)
	return c
}
