package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/infra"
)

// CloseListener применяет запросы на закрытие от других инстансов
// и от консоли.
type CloseListener struct {
	svc    *Service
	rdb    *redis.Client
	logger *zap.Logger
}

func NewCloseListener(svc *Service, rdb *redis.Client, logger *zap.Logger) *CloseListener {
	return &CloseListener{svc: svc, rdb: rdb, logger: logger.Named("close-listener")}
}

// Run блокируется до отмены ctx.
func (l *CloseListener) Run(ctx context.Context) error {
	l.logger.Info("session close listener started", zap.String("chan", infra.RedisChanSessionClose))
	infra.ListenResilient(ctx, l.rdb, l.logger, infra.RedisChanSessionClose, nil, l.apply)
	return nil
}

// apply закрывает сессию из payload. Незнакомые этому инстансу id
// нормальны: каждый инстанс получает каждый запрос.
func (l *CloseListener) apply(ctx context.Context, payload string) {
	id := strings.TrimSpace(payload)
	if id == "" {
		l.logger.Error("invalid close signal", zap.String("payload", payload))
		return
	}
	ctx = events.WithMeta(ctx, events.Meta{Actor: events.SystemActor})
	err := l.svc.Close(ctx, id)
	switch {
	case err == nil:
		l.logger.Info("session closed by signal", zap.String("session_id", id))
	case errors.Is(err, domain.ErrNotFound):
		l.logger.Debug("close signal for foreign session", zap.String("session_id", id))
	default:
		l.logger.Error("close signal failed", zap.String("session_id", id), zap.Error(err))
	}
}

// RequestClose рассылает запрос на закрытие всем инстансам.
func RequestClose(ctx context.Context, rdb *redis.Client, sessionID string) (int64, error) {
	return rdb.Publish(ctx, infra.RedisChanSessionClose, sessionID).Result()
}
