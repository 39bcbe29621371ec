package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/folio-core/internal/audit"
)

func TestBuildPageQuery_NoFilter(t *testing.T) {
	q, args := buildPageQuery(audit.Filter{}, audit.Cursor{}, 0)

	assert.Equal(t, "SELECT "+recordColumns+" FROM audit_records ORDER BY occurred_at, seq", q)
	assert.Empty(t, args)
}

func TestBuildPageQuery_AllConditions(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	at := from.Add(time.Hour)

	q, args := buildPageQuery(
		audit.Filter{SubjectType: audit.SubjectChatSession, Actor: "alice", From: from, To: to},
		audit.Cursor{OccurredAt: at, Seq: 7},
		50,
	)

	assert.Equal(t, "SELECT "+recordColumns+" FROM audit_records"+
		" WHERE subject_type = $1 AND actor = $2 AND occurred_at >= $3 AND occurred_at < $4"+
		" AND (occurred_at, seq) > ($5, $6) ORDER BY occurred_at, seq LIMIT $7", q)
	assert.Equal(t, []any{audit.SubjectChatSession, "alice", from, to, at, int64(7), 50}, args)
}

func TestBuildPageQuery_CursorOnly(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	q, args := buildPageQuery(audit.Filter{}, audit.Cursor{OccurredAt: at, Seq: 3}, 10)

	assert.Contains(t, q, "WHERE (occurred_at, seq) > ($1, $2)")
	assert.Contains(t, q, "LIMIT $3")
	assert.Len(t, args, 3)
}
