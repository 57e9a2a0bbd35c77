package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haven-app/haven/internal/log"
)

// Default configuration values.
const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Config configures a Store.
type Config struct {
	// IdleTimeout is how long a session may go without activity before
	// the sweep purges it. Default: 30m.
	IdleTimeout time.Duration

	// SweepInterval is how often idle sessions are purged. Default: 5m.
	SweepInterval time.Duration
}

// Store holds all live companion sessions, keyed by session ID.
//
// Every externally reachable operation takes the calling user's ID and
// treats an ownership mismatch exactly like a missing session. The store
// is safe for concurrent use, but does not serialize turns within one
// session: a client issuing overlapping turns for the same session gets
// whatever interleaving the appends land in.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	idleTimeout time.Duration
	logger      log.Logger

	stop chan struct{}
	done chan struct{}
}

// New creates a store and starts its idle-session sweep.
func New(cfg Config, logger log.Logger) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Store{
		sessions:    make(map[uuid.UUID]*Session),
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	go s.sweepLoop(cfg.SweepInterval)

	return s
}

// Close stops the background sweep.
func (s *Store) Close() {
	select {
	case <-s.stop:
		return
	default:
	}
	close(s.stop)
	<-s.done
}

// Create starts a new session for userID in the opening phase, seeded
// with the given messages (IDs and timestamps are assigned). Returns a
// snapshot of the created session.
func (s *Store) Create(userID string, seed ...Message) *Session {
	now := time.Now()
	sess := &Session{
		ID:           uuid.New(),
		UserID:       userID,
		Phase:        PhaseOpening,
		CreatedAt:    now,
		LastActivity: now,
	}
	for _, m := range seed {
		m.ID = uuid.New()
		m.CreatedAt = now
		sess.Messages = append(sess.Messages, m)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("session created", "session_id", sess.ID, "user_id", userID)
	return sess.clone()
}

// Get returns a snapshot of the session, or ErrNotFound when it does not
// exist or is not owned by userID.
func (s *Store) Get(userID string, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

// List returns snapshots of all sessions owned by userID, newest first.
func (s *Store) List(userID string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess.clone())
		}
	}
	// Insertion sort by creation time descending; session counts per user
	// are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// AppendMessage appends one message to the session's history, assigning
// its ID and timestamp, and bumps last-activity. The message list is
// append-only and ordered by creation.
func (s *Store) AppendMessage(userID string, id uuid.UUID, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.owned(userID, id)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastActivity = msg.CreatedAt

	return msg, nil
}

// AppendMessageWithID is AppendMessage for a caller-assigned message ID,
// used by the streaming adapter which announces the message ID in its
// start chunk before the content is complete.
func (s *Store) AppendMessageWithID(userID string, id uuid.UUID, msgID uuid.UUID, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.owned(userID, id)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        msgID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastActivity = msg.CreatedAt

	return msg, nil
}

// UpdatePhase moves the session to a new conversational phase.
func (s *Store) UpdatePhase(userID string, id uuid.UUID, phase Phase) error {
	if !phase.Valid() {
		return ErrInvalidPhase
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.owned(userID, id)
	if err != nil {
		return err
	}

	sess.Phase = phase
	sess.LastActivity = time.Now()
	return nil
}

// UpdateEmotionalState replaces the caller-supplied emotional-state tag.
func (s *Store) UpdateEmotionalState(userID string, id uuid.UUID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.owned(userID, id)
	if err != nil {
		return err
	}

	sess.EmotionalState = state
	sess.LastActivity = time.Now()
	return nil
}

// End removes the session.
func (s *Store) End(userID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owned(userID, id); err != nil {
		return err
	}

	delete(s.sessions, id)
	s.logger.Debug("session ended", "session_id", id, "user_id", userID)
	return nil
}

// Len returns the number of live sessions across all users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// owned looks up a session and enforces ownership. Both a missing
// session and a foreign one yield the identical ErrNotFound value.
// Caller must hold s.mu.
func (s *Store) owned(userID string, id uuid.UUID) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// sweepLoop purges idle sessions on a fixed interval, mirroring the
// cache sweep: activity-free sessions are reclaimed even if the client
// never calls End.
func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes sessions whose last activity is older than the idle
// timeout.
func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.idleTimeout)

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("idle session sweep", "removed", removed, "remaining", remaining)
	}
}
