package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/folio-core/internal/events"
)

func TestTracing(t *testing.T) {
	var got events.Meta
	h := Tracing(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = events.MetaFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, got.TraceID)
	assert.Equal(t, got.TraceID, rec.Header().Get(HeaderTraceID))
	assert.Equal(t, "192.0.2.1", got.Actor)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTraceID, "t-1")
	req.Header.Set(HeaderActorID, "visitor-7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, events.Meta{Actor: "visitor-7", TraceID: "t-1"}, got)
}

func TestTracing_IgnoresActorHeaderUnlessTrusted(t *testing.T) {
	var got events.Meta
	h := Tracing(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = events.MetaFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4444"
	req.Header.Set(HeaderActorID, "admin")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.9", got.Actor)
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("b", now))
	assert.True(t, l.Allow("a", now.Add(time.Second)), "bucket refills")

	l.Allow("c", now.Add(time.Hour))
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.limiters, 1, "idle buckets are dropped")
}
