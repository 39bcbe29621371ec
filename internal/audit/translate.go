package audit

import (
	"fmt"

	"github.com/xela07ax/folio-core/internal/events"
)

// FromEvent превращает событие в его единственную запись аудита.
func FromEvent(ev events.Event) (Record, error) {
	r := Record{
		RecordID:      RecordIDFor(ev.ID),
		SourceEventID: ev.ID.String(),
		Actor:         ev.Actor,
		SubjectType:   SubjectChatSession,
		OccurredAt:    ev.Timestamp.UTC(),
	}
	if r.Actor == "" {
		r.Actor = ActorAnonymous
	}

	switch p := ev.Payload.(type) {
	case events.ChatResponded:
		r.Action = ActionChatRespond
		r.SubjectID = p.SessionID
		r.Outcome = OutcomeAnswered
		if len(p.MatchedFacts) == 0 {
			r.Outcome = OutcomeFallback
		}
	case events.SessionOpened:
		r.Action = ActionSessionOpen
		r.SubjectID = p.SessionID
		r.Outcome = OutcomeOpened
	case events.SessionClosed:
		r.Action = ActionSessionClose
		r.SubjectID = p.SessionID
		r.Outcome = OutcomeClosed + ":" + string(p.Reason)
	default:
		return Record{}, fmt.Errorf("%w: %T (event %s)", ErrUnknownPayload, ev.Payload, ev.ID)
	}
	return r, nil
}
