package domain

import (
	"errors"
	"time"
)

// SessionStatus: машина состояний сессии Active -> Idle -> Closed.
// Idle продолжается со следующего сообщения; Closed конечное.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionIdle   SessionStatus = "idle"
	SessionClosed SessionStatus = "closed"
)

var ErrSessionClosed = errors.New("session is closed")

// Intent: результат детерминированной классификации сообщения.
type Intent string

const (
	IntentSkill   Intent = "skill"
	IntentBrand   Intent = "brand"
	IntentGeneral Intent = "general"
)

// Turn: одно отвеченное сообщение.
type Turn struct {
	Index        int       `json:"index"`
	UserMessage  string    `json:"userMessage"`
	Response     string    `json:"response"`
	Intent       Intent    `json:"intent"`
	MatchedFacts []FactRef `json:"matchedFacts"`
	At           time.Time `json:"at"`
}

// ChatSession принадлежит хранилищу чата. Снаружи видны только копии.
type ChatSession struct {
	SessionID      string        `json:"sessionId"`
	InstanceID     string        `json:"instanceId"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	Status         SessionStatus `json:"status"`
	Turns          []Turn        `json:"turns"`
}

// CanTransitionTo проверяет правила переходов.
func (s *ChatSession) CanTransitionTo(next SessionStatus) error {
	if s.Status == SessionClosed {
		return ErrSessionClosed
	}
	switch next {
	case SessionActive, SessionIdle, SessionClosed:
		return nil
	}
	return errors.New("unknown session status " + string(next))
}

// ExpiredAt: сессия простаивает дольше timeout.
func (s *ChatSession) ExpiredAt(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActivityAt) >= timeout
}

// Snapshot делает глубокую копию, чтобы снаружи не достать до памяти хранилища.
func (s *ChatSession) Snapshot() ChatSession {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		t.MatchedFacts = append([]FactRef(nil), t.MatchedFacts...)
		out.Turns[i] = t
	}
	return out
}
