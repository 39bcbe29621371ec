package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/folio-core/internal/audit"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func rec(src string, at time.Time) audit.Record {
	return audit.Record{SourceEventID: src, RecordID: "r-" + src, SubjectType: audit.SubjectChatSession, OccurredAt: at}
}

func TestAuditRepo_AppendDedupesAndOrders(t *testing.T) {
	r := NewAuditRepo()
	ctx := context.Background()

	for _, x := range []audit.Record{rec("c", t0.Add(2*time.Second)), rec("a", t0), rec("b", t0.Add(2*time.Second))} {
		ok, err := r.Append(ctx, x)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := r.Append(ctx, rec("a", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, ok, "first write wins")

	page, err := r.Page(ctx, audit.Filter{}, audit.Cursor{}, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{page[0].SourceEventID, page[1].SourceEventID, page[2].SourceEventID})
	assert.True(t, page[0].OccurredAt.Equal(t0))
}

func TestAuditRepo_PageKeyset(t *testing.T) {
	r := NewAuditRepo()
	ctx := context.Background()
	for i, src := range []string{"a", "b", "c", "d", "e"} {
		_, err := r.Append(ctx, rec(src, t0.Add(time.Duration(i/2)*time.Second)))
		require.NoError(t, err)
	}

	var got []string
	var cur audit.Cursor
	for {
		page, err := r.Page(ctx, audit.Filter{}, cur, 2)
		require.NoError(t, err)
		for _, p := range page {
			got = append(got, p.SourceEventID)
		}
		if len(page) < 2 {
			break
		}
		cur = audit.CursorOf(page[len(page)-1])
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestDeadLetterRepo(t *testing.T) {
	r := NewDeadLetterRepo()
	ctx := context.Background()

	require.NoError(t, r.Push(ctx, audit.DeadLetter{Record: rec("a", t0), Attempts: 3}))
	require.NoError(t, r.Push(ctx, audit.DeadLetter{Record: rec("b", t0), Attempts: 3}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	drained, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Len(t, drained, 2)

	list, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
