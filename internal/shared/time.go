package shared

import (
	"fmt"
	"sync"
	"time"
)

// Clock абстрагирует системные часы, чтобы чистку сессий и метки времени можно было тестировать.
type Clock interface {
	Now() time.Time
}

// SystemClock читает time.Now в UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock двигается только по команде. Безопасен для конкурентного доступа.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперед и возвращает новый момент.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

const dateLayout = "2006-01-02"

// FormatISO выводит момент в ISO-8601 (RFC 3339, UTC, без хвостовых нулей наносекунд).
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseInstant принимает RFC 3339 или просто дату (полночь UTC).
// Пустая строка дает нулевое время.
func ParseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid instant %q: expected RFC 3339 or YYYY-MM-DD", s)
}
