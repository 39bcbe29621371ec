package events

import "context"

type ctxKey string

const metaKey ctxKey = "event_meta"

// WithMeta кладет метаданные запроса, которые издатели ставят на события.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaKey, m)
}

// MetaFrom возвращает метаданные из WithMeta или пустой Meta.
func MetaFrom(ctx context.Context) Meta {
	if m, ok := ctx.Value(metaKey).(Meta); ok {
		return m
	}
	return Meta{}
}
