package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/folio-core/internal/events"
)

// Действия для событий чата.
const (
	ActionChatRespond  = "chat.respond"
	ActionSessionOpen  = "chat.session.open"
	ActionSessionClose = "chat.session.close"
)

// Исходы.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback" // ни один факт не найден, отправлен шаблонный ответ
	OutcomeOpened   = "opened"
	OutcomeClosed   = "closed"
)

const (
	SubjectChatSession = "chat_session"

	ActorAnonymous = "anonymous"
	ActorSystem    = events.SystemActor
)

// recordNamespace задает детерминированные id записей: одно событие всегда
// дает тот же RecordID, какой бы процесс его ни писал.
var recordNamespace = uuid.MustParse("6f1c1d4e-2b7a-4c53-9a0e-8d2f4b6a1c3e")

// Record: неизменяемая запись аудита, построенная ровно из одного события.
type Record struct {
	RecordID      string    `json:"recordId"`
	SourceEventID string    `json:"sourceEventId"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	SubjectType   string    `json:"subjectType"`
	SubjectID     string    `json:"subjectId"`
	Outcome       string    `json:"outcome"`
	OccurredAt    time.Time `json:"occurredAt"`

	// Seq: позиция, назначенная хранилищем; разрешает равенство OccurredAt.
	Seq int64 `json:"-"`
}

// RecordIDFor выводит id записи из id события.
func RecordIDFor(sourceEventID uuid.UUID) string {
	return uuid.NewSHA1(recordNamespace, sourceEventID[:]).String()
}

// Filter сужает выборку. Пустые поля подходят ко всему; интервал времени
// полуоткрытый: From <= OccurredAt < To.
type Filter struct {
	SubjectType string
	Actor       string
	From        time.Time
	To          time.Time
}

func (f Filter) Matches(r Record) bool {
	if f.SubjectType != "" && r.SubjectType != f.SubjectType {
		return false
	}
	if f.Actor != "" && r.Actor != f.Actor {
		return false
	}
	if !f.From.IsZero() && r.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

// Cursor: keyset-позиция последней записи страницы.
type Cursor struct {
	OccurredAt time.Time
	Seq        int64
}

// CursorOf возвращает позицию сразу после r.
func CursorOf(r Record) Cursor {
	return Cursor{OccurredAt: r.OccurredAt, Seq: r.Seq}
}

// IsZero: курсор стоит перед первой записью.
func (c Cursor) IsZero() bool { return c.OccurredAt.IsZero() && c.Seq == 0 }

// After: r идет строго после c.
func (c Cursor) After(r Record) bool {
	if c.IsZero() {
		return true
	}
	if r.OccurredAt.Equal(c.OccurredAt) {
		return r.Seq > c.Seq
	}
	return r.OccurredAt.After(c.OccurredAt)
}
