package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/audit"
	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/metrics"
	"github.com/xela07ax/folio-core/internal/repository/memory"
	"github.com/xela07ax/folio-core/internal/shared"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

var errDown = errors.New("store down")

// flakyStore валит первые `fail` вызовов Append, дальше делегирует.
type flakyStore struct {
	mu    sync.Mutex
	fail  int
	calls int
	next  audit.Store
}

func (s *flakyStore) Append(ctx context.Context, r audit.Record) (bool, error) {
	s.mu.Lock()
	s.calls++
	failing := s.fail != 0
	if s.fail > 0 {
		s.fail--
	}
	s.mu.Unlock()
	if failing {
		return false, errDown
	}
	return s.next.Append(ctx, r)
}

func (s *flakyStore) Page(ctx context.Context, f audit.Filter, after audit.Cursor, limit int) ([]audit.Record, error) {
	return s.next.Page(ctx, f, after, limit)
}

func (s *flakyStore) setFail(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = n
}

type brokenDLQ struct{}

func (brokenDLQ) Push(context.Context, audit.DeadLetter) error        { return errors.New("dlq down") }
func (brokenDLQ) List(context.Context) ([]audit.DeadLetter, error)  { return nil, nil }
func (brokenDLQ) Drain(context.Context) ([]audit.DeadLetter, error) { return nil, nil }

// switchDLQ: рабочая очередь, у которой можно сломать Push.
type switchDLQ struct {
	*memory.DeadLetterRepo
	mu   sync.Mutex
	down bool
}

func (q *switchDLQ) Push(ctx context.Context, dl audit.DeadLetter) error {
	q.mu.Lock()
	down := q.down
	q.mu.Unlock()
	if down {
		return errors.New("dlq down")
	}
	return q.DeadLetterRepo.Push(ctx, dl)
}

func (q *switchDLQ) setDown(v bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.down = v
}

type fixture struct {
	svc   *audit.Service
	repo  *memory.AuditRepo
	flaky *flakyStore
	dlq   *memory.DeadLetterRepo
	m     *metrics.Metrics
}

func newFixture(t *testing.T, opts ...audit.Option) *fixture {
	t.Helper()
	repo := memory.NewAuditRepo()
	flaky := &flakyStore{next: repo}
	dlq := memory.NewDeadLetterRepo()
	m := metrics.New(nil)

	rs := audit.NewReliableStore(flaky,
		audit.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		audit.BreakerConfig{Timeout: time.Second},
		zap.NewNop(), m)

	return &fixture{
		svc:   audit.NewService(rs, dlq, shared.NewManualClock(t0), zap.NewNop(), m, opts...),
		repo:  repo,
		flaky: flaky,
		dlq:   dlq,
		m:     m,
	}
}

func responded(at time.Time, session, actor string, facts ...string) events.Event {
	p := events.ChatResponded{SessionID: session, InstanceID: "i-" + session, UserMessage: "hi", Response: "hello"}
	for _, f := range facts {
		p.MatchedFacts = append(p.MatchedFacts, domainRef(f))
	}
	return events.New(at, p, events.Meta{Actor: actor})
}

func mustQuery(t *testing.T, svc *audit.Service, f audit.Filter) []audit.Record {
	t.Helper()
	recs, err := svc.Query(context.Background(), f, 0)
	require.NoError(t, err)
	return recs
}
