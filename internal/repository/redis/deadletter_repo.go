package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/audit"
)

// DeadLetterRepo складывает несохраненные записи аудита в список Redis: они
// переживают рестарт, и все инстансы видят одну очередь.
type DeadLetterRepo struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

func NewDeadLetterRepo(rdb *redis.Client, key string, logger *zap.Logger) *DeadLetterRepo {
	return &DeadLetterRepo{rdb: rdb, key: key, logger: logger.With(zap.String("mod", "dead-letter"))}
}

func (r *DeadLetterRepo) Push(ctx context.Context, dl audit.DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("redis: marshal dead letter: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("redis: push dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) List(ctx context.Context) ([]audit.DeadLetter, error) {
	raw, err := r.rdb.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list dead letters: %w", err)
	}
	return r.decode(raw), nil
}

// Drain читает и удаляет список в одном MULTI: параллельный Push либо попадет
// в эту выборку, либо останется до следующего вызова.
func (r *DeadLetterRepo) Drain(ctx context.Context) ([]audit.DeadLetter, error) {
	var lr *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lr = pipe.LRange(ctx, r.key, 0, -1)
		pipe.Del(ctx, r.key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: drain dead letters: %w", err)
	}
	return r.decode(lr.Val()), nil
}

func (r *DeadLetterRepo) decode(raw []string) []audit.DeadLetter {
	out := make([]audit.DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl audit.DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			r.logger.Error("skipping malformed dead letter", zap.String("payload", item), zap.Error(err))
			continue
		}
		out = append(out, dl)
	}
	return out
}
