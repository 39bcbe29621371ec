package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/folio-core/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq             BIGSERIAL PRIMARY KEY,
	record_id       UUID        NOT NULL,
	source_event_id UUID        NOT NULL UNIQUE,
	actor           TEXT        NOT NULL,
	action          TEXT        NOT NULL,
	subject_type    TEXT        NOT NULL,
	subject_id      TEXT        NOT NULL,
	outcome         TEXT        NOT NULL,
	occurred_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_occurred_idx ON audit_records (occurred_at, seq);
`

const recordColumns = "seq, record_id, source_event_id, actor, action, subject_type, subject_id, outcome, occurred_at"

// AuditRepo: реализация audit.Store на Postgres. Таблица только дописывается:
// код делает INSERT и SELECT, но никогда UPDATE или DELETE.
type AuditRepo struct {
	db *sql.DB
}

// Open подключается через pgx stdlib и настраивает пул так же, как остальные
// сервисы репозитория.
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// EnsureSchema создает таблицу и индекс, если их нет.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure audit schema: %w", err)
	}
	return nil
}

func (r *AuditRepo) Append(ctx context.Context, rec audit.Record) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_records (record_id, source_event_id, actor, action, subject_type, subject_id, outcome, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_event_id) DO NOTHING`,
		rec.RecordID, rec.SourceEventID, rec.Actor, rec.Action,
		rec.SubjectType, rec.SubjectID, rec.Outcome, rec.OccurredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert audit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *AuditRepo) Page(ctx context.Context, f audit.Filter, after audit.Cursor, limit int) ([]audit.Record, error) {
	query, args := buildPageQuery(f, after, limit)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit page: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var rec audit.Record
		if err := rows.Scan(&rec.Seq, &rec.RecordID, &rec.SourceEventID, &rec.Actor, &rec.Action,
			&rec.SubjectType, &rec.SubjectID, &rec.Outcome, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit record: %w", err)
		}
		rec.OccurredAt = rec.OccurredAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// buildPageQuery собирает keyset-запрос одной страницы. Плейсхолдеры
// нумеруются в порядке добавления условий.
func buildPageQuery(f audit.Filter, after audit.Cursor, limit int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.SubjectType != "" {
		conds = append(conds, "subject_type = "+arg(f.SubjectType))
	}
	if f.Actor != "" {
		conds = append(conds, "actor = "+arg(f.Actor))
	}
	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= "+arg(f.From.UTC()))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at < "+arg(f.To.UTC()))
	}
	if !after.IsZero() {
		at, seq := arg(after.OccurredAt.UTC()), arg(after.Seq)
		conds = append(conds, fmt.Sprintf("(occurred_at, seq) > (%s, %s)", at, seq))
	}

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM audit_records")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at, seq")
	if limit > 0 {
		b.WriteString(" LIMIT " + arg(limit))
	}
	return b.String(), args
}
