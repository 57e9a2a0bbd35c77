package session

import "errors"

// Sentinel errors for session operations; check with errors.Is().
var (
	// ErrNotFound indicates the session does not exist, or exists but
	// belongs to another user. The two cases are deliberately
	// indistinguishable so session existence never leaks across users.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidPhase indicates an unknown conversational phase.
	ErrInvalidPhase = errors.New("invalid session phase")

	// ErrInvalidRole indicates an unknown message role.
	ErrInvalidRole = errors.New("invalid message role")
)
