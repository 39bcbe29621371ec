package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/api/handler"
	"github.com/xela07ax/folio-core/internal/api/server"
	"github.com/xela07ax/folio-core/internal/audit"
	"github.com/xela07ax/folio-core/internal/chat"
	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/metrics"
	"github.com/xela07ax/folio-core/internal/repository/memory"
	"github.com/xela07ax/folio-core/internal/resolver"
	"github.com/xela07ax/folio-core/internal/shared"
)

type env struct {
	srv *server.Server
	bus *events.Bus
}

type staticValidator struct {
	claims *domain.AdminClaims
}

func (v staticValidator) VerifyToken(tok string) (*domain.AdminClaims, error) {
	if tok != "Bearer good" {
		return nil, assert.AnError
	}
	return v.claims, nil
}

func newEnv(t *testing.T, mutate func(*server.Options)) *env {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := shared.NewManualClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	bus := events.NewBus(64, zap.NewNop(), m)

	cat, err := resolver.NewCatalog(resolver.Tables{
		Skills: []domain.Skill{{Name: "Go", Aliases: []string{"golang"}}, {Name: "Rust"}},
		Brands: []domain.Brand{{Key: "folio", Name: "Folio Studio"}},
	})
	require.NoError(t, err)

	rs := audit.NewReliableStore(memory.NewAuditRepo(), audit.RetryConfig{Attempts: 1}, audit.BreakerConfig{}, zap.NewNop(), m)
	as := audit.NewService(rs, memory.NewDeadLetterRepo(), clock, zap.NewNop(), m)
	as.Register(bus)
	cs := chat.NewService(chat.NewStore(), resolver.NewRegistry(cat), bus, clock,
		chat.Config{SessionTimeout: time.Hour, MaxMessageLength: 100}, zap.NewNop(), m)

	bus.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})

	opts := server.Options{
		Logger:   zap.NewNop(),
		Chat:     handler.NewChatHandler(cs, zap.NewNop()),
		Audit:    handler.NewAuditHandler(as, zap.NewNop()),
		Gatherer:    reg,
		DeadLetters: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &env{srv: server.New(opts), bus: bus}
}

func (e *env) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *env) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.bus.Flush(ctx))
}

func TestPostMessage(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"do you know golang?"}`, server.HeaderTraceID, "trace-42")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "trace-42", rec.Header().Get(server.HeaderTraceID))

	var got handler.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, domain.IntentSkill, got.Intent)
	assert.Equal(t, []domain.FactRef{{Kind: domain.KindSkill, Key: "go", Label: "Go"}}, got.MatchedFacts)
}

func TestPostMessage_FallbackHasEmptyFactList(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"lovely day"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matchedFacts":[]`)
}

func TestPostMessage_BadInput(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty text", `{"text":"  "}`, "invalid_input"},
		{"unknown field", `{"text":"hi","mood":"happy"}`, "invalid_body"},
		{"not json", `hello`, "invalid_body"},
		{"too long", `{"text":"` + strings.Repeat("a", 101) + `"}`, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/chat/s1/message", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body shared.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
		})
	}

	e.flush(t)
	rec := e.do(t, http.MethodGet, "/audit", "")
	assert.JSONEq(t, `[]`, rec.Body.String(), "rejected input leaves no audit trail")
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/chat/s1", "").Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"rust?"}`).Code)

	rec := e.do(t, http.MethodGet, "/chat/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess domain.ChatSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Len(t, sess.Turns, 1)
	assert.Equal(t, domain.SessionActive, sess.Status)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/chat/s1", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/chat/s1", "").Code)
}

func TestAudit_ListsRecordsInOrder(t *testing.T) {
	e := newEnv(t, nil)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"golang?"}`, "X-Real-IP", "10.0.0.5").Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s2/message", `{"text":"rust?"}`).Code)
	e.flush(t)

	rec := e.do(t, http.MethodGet, "/audit?actor=10.0.0.5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var recs []handler.RecordDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, audit.ActionSessionOpen, recs[0].Action)
	assert.Equal(t, audit.ActionChatRespond, recs[1].Action)
	assert.Equal(t, "s1", recs[1].SubjectID)
	assert.Equal(t, "2025-06-01T10:00:00Z", recs[1].OccurredAt)

	rec = e.do(t, http.MethodGet, "/audit?from=2025-06-02", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/audit?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)
}

func TestAudit_BadQuery(t *testing.T) {
	e := newEnv(t, nil)

	for _, q := range []string{"from=yesterday", "to=13/13/2025", "from=2025-06-02&to=2025-06-01", "limit=0", "limit=x"} {
		rec := e.do(t, http.MethodGet, "/audit?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestAudit_RequiresToken(t *testing.T) {
	reader := &domain.AdminClaims{UserID: "ops", Scopes: map[string]bool{domain.ScopeAuditRead: true}}
	e := newEnv(t, func(o *server.Options) { o.Validator = staticValidator{claims: reader} })

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/audit", "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/audit", "", "Authorization", "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/audit", "", "Authorization", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/audit/dead-letters", "", "Authorization", "Bearer good").Code)

	// чат остается публичным
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"hi"}`).Code)
}

func TestDeadLetters(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/audit/dead-letters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/audit/dead-letters/replay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"replayed":0,"duplicates":0,"failed":0}`, rec.Body.String())
}

func TestDeadLetters_HiddenWithoutSharedQueue(t *testing.T) {
	e := newEnv(t, func(o *server.Options) { o.DeadLetters = false })

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/audit/dead-letters", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/audit/dead-letters/replay", "").Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/audit", "").Code)
}

func TestAudit_ActorHeaderNeedsTrust(t *testing.T) {
	for _, tc := range []struct {
		name  string
		trust bool
		want  string
	}{
		{"untrusted", false, "10.0.0.7"},
		{"trusted proxy", true, "alice"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, func(o *server.Options) { o.TrustActorHeader = tc.trust })

			require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"golang?"}`,
				server.HeaderActorID, "alice", "X-Real-IP", "10.0.0.7").Code)
			e.flush(t)

			var recs []handler.RecordDTO
			require.NoError(t, json.Unmarshal(e.do(t, http.MethodGet, "/audit", "").Body.Bytes(), &recs))
			require.NotEmpty(t, recs)
			for _, r := range recs {
				assert.Equal(t, tc.want, r.Actor)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, func(o *server.Options) { o.RateLimit = 0.001; o.RateBurst = 2 })

	for range 2 {
		require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"hi"}`).Code)
	}
	rec := e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// у других клиентов свое ведро
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s2/message", `{"text":"hi"}`, "X-Real-IP", "10.1.1.1").Code)
}

func TestConsoleModeHasNoChatRoutes(t *testing.T) {
	e := newEnv(t, func(o *server.Options) { o.Chat = nil })

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"hi"}`).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/audit", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, nil)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", "").Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/chat/s1/message", `{"text":"golang"}`).Code)

	rec := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `folio_chat_turns_total{intent="skill"} 1`)
}
