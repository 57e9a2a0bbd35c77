// Package session holds per-conversation state for the companion feature:
// message history, conversational phase, and the caller-supplied emotional
// state tag. Sessions live in memory, are visible only to their owning
// user, and are purged when ended or idle for too long.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Phase is the conversational phase of a companion session. The phase is
// meaningful to the calling feature, not to the store; the store only
// validates membership.
type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseExploring  Phase = "exploring"
	PhaseReflecting Phase = "reflecting"
	PhaseClosing    Phase = "closing"
)

// Valid reports whether the phase is one of the known values.
func (p Phase) Valid() bool {
	switch p {
	case PhaseOpening, PhaseExploring, PhaseReflecting, PhaseClosing:
		return true
	}
	return false
}

// Message is one entry in a session's append-only history.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the server-held state of one multi-turn exchange.
// Values handed out by the Store are snapshots; mutating them does not
// affect the stored session.
type Session struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"userId"`
	Messages       []Message `json:"messages"`
	Phase          Phase     `json:"phase"`
	EmotionalState string    `json:"emotionalState,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivity   time.Time `json:"lastActivity"`
}

// clone returns a deep-enough copy: the message slice is duplicated so
// callers cannot reach the store's backing array.
func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}
