package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xela07ax/folio-core/internal/audit"
)

// AuditRepo: audit.Store в памяти, только дописывание. Записи лежат
// отсортированными по (OccurredAt, Seq) и никогда не меняются и не удаляются.
type AuditRepo struct {
	mu      sync.RWMutex
	records []audit.Record
	bySrc   map[string]struct{}
	seq     int64
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{bySrc: make(map[string]struct{})}
}

func (r *AuditRepo) Append(_ context.Context, rec audit.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.bySrc[rec.SourceEventID]; dup {
		return false, nil
	}
	r.seq++
	rec.Seq = r.seq
	r.bySrc[rec.SourceEventID] = struct{}{}

	// вставляем после всех записей с тем же или более ранним временем
	i := sort.Search(len(r.records), func(i int) bool {
		return r.records[i].OccurredAt.After(rec.OccurredAt)
	})
	r.records = append(r.records, audit.Record{})
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = rec
	return true, nil
}

func (r *AuditRepo) Page(_ context.Context, f audit.Filter, after audit.Cursor, limit int) ([]audit.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []audit.Record
	for _, rec := range r.records {
		if !after.After(rec) || !f.Matches(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len возвращает число сохраненных записей.
func (r *AuditRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
