// Package events: внутрипроцессная шина событий, которая отделяет ответ чата
// от его записи в аудит.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/folio-core/internal/domain"
)

// Type: тег события, выводится из варианта payload.
type Type string

const (
	TypeChatResponded Type = "chat.responded"
	TypeSessionOpened Type = "chat.session.opened"
	TypeSessionClosed Type = "chat.session.closed"
)

// Types перечисляет все события системы.
func Types() []Type {
	return []Type{TypeChatResponded, TypeSessionOpened, TypeSessionClosed}
}

// Payload: закрытое объединение, его реализуют только варианты из этого файла.
type Payload interface {
	EventType() Type
	sealed()
}

// ChatResponded публикуется один раз на каждый ответ, до возврата ответа.
type ChatResponded struct {
	SessionID    string
	InstanceID   string
	TurnIndex    int
	UserMessage  string
	Response     string
	Intent       domain.Intent
	MatchedFacts []domain.FactRef
}

func (ChatResponded) EventType() Type { return TypeChatResponded }
func (ChatResponded) sealed()         {}

type SessionOpened struct {
	SessionID  string
	InstanceID string
	// PreviousInstanceID задан, когда заменили закрытую или просроченную сессию.
	PreviousInstanceID string
}

func (SessionOpened) EventType() Type { return TypeSessionOpened }
func (SessionOpened) sealed()         {}

type CloseReason string

const (
	CloseExplicit CloseReason = "explicit"
	CloseTimeout  CloseReason = "timeout"
	CloseReplaced CloseReason = "replaced"
)

type SessionClosed struct {
	SessionID  string
	InstanceID string
	Reason     CloseReason
	Turns      int
}

func (SessionClosed) EventType() Type { return TypeSessionClosed }
func (SessionClosed) sealed()         {}

// SystemActor: актор событий, которые никто не запрашивал (например, закрытие sweeper-ом).
const SystemActor = "system"

// Meta несет контекст запроса, который фиксирует каждое событие.
type Meta struct {
	Actor       string
	TraceID     string
	CausationID uuid.UUID
}

// Event неизменяем после создания. ID это UUIDv7, поэтому id сортируются по времени.
type Event struct {
	ID          uuid.UUID
	Type        Type
	Timestamp   time.Time
	Payload     Payload
	CausationID uuid.UUID // uuid.Nil, если у события нет причины
	Actor       string
	TraceID     string
}

// New выдает payload новый id. Слайсы копируются, чтобы издатель
// не мог поменять событие задним числом.
func New(at time.Time, p Payload, meta Meta) Event {
	if cr, ok := p.(ChatResponded); ok {
		cr.MatchedFacts = append([]domain.FactRef(nil), cr.MatchedFacts...)
		p = cr
	}
	return Event{
		ID:          uuid.Must(uuid.NewV7()),
		Type:        p.EventType(),
		Timestamp:   at.UTC(),
		Payload:     p,
		CausationID: meta.CausationID,
		Actor:       meta.Actor,
		TraceID:     meta.TraceID,
	}
}

// HasCause: событие вызвано другим событием.
func (e Event) HasCause() bool { return e.CausationID != uuid.Nil }
