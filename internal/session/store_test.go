package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/haven-app/haven/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := New(cfg, log.NewNop())
	t.Cleanup(s.Close)
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})

	created := s.Create("alice", Message{Role: RoleUser, Content: "hi"})

	if created.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", created.UserID)
	}
	if created.Phase != PhaseOpening {
		t.Errorf("Phase = %q, want opening", created.Phase)
	}
	if len(created.Messages) != 1 {
		t.Fatalf("Messages = %d, want 1", len(created.Messages))
	}
	if created.Messages[0].ID == uuid.Nil {
		t.Error("seed message should be assigned an ID")
	}

	got, err := s.Get("alice", created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("Get returned wrong session")
	}
}

func TestStore_GetByNonOwnerLooksLikeNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice")

	_, foreignErr := s.Get("mallory", created.ID)
	_, missingErr := s.Get("alice", uuid.New())

	if !errors.Is(foreignErr, ErrNotFound) {
		t.Errorf("non-owner Get = %v, want ErrNotFound", foreignErr)
	}
	// Identical error value: existence must not leak across users.
	if foreignErr != missingErr {
		t.Errorf("non-owner and missing must be indistinguishable: %v vs %v", foreignErr, missingErr)
	}
}

func TestStore_AppendMessage(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice")

	for i := range 3 {
		_, err := s.AppendMessage("alice", created.ID, RoleUser, "msg")
		if err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
		got, _ := s.Get("alice", created.ID)
		if len(got.Messages) != i+1 {
			t.Fatalf("message count = %d after %d appends", len(got.Messages), i+1)
		}
	}

	// Ordered by creation.
	got, _ := s.Get("alice", created.ID)
	for i := 1; i < len(got.Messages); i++ {
		if got.Messages[i].CreatedAt.Before(got.Messages[i-1].CreatedAt) {
			t.Error("messages should be ordered by creation time")
		}
	}
}

func TestStore_AppendMessage_Validation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice")

	if _, err := s.AppendMessage("alice", created.ID, Role("robot"), "x"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("want ErrInvalidRole, got %v", err)
	}
	if _, err := s.AppendMessage("mallory", created.ID, RoleUser, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner append = %v, want ErrNotFound", err)
	}
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice", Message{Role: RoleUser, Content: "hi"})

	snap, _ := s.Get("alice", created.ID)
	snap.Messages[0].Content = "mutated"
	snap.Phase = PhaseClosing

	got, _ := s.Get("alice", created.ID)
	if got.Messages[0].Content != "hi" || got.Phase != PhaseOpening {
		t.Error("mutating a snapshot must not affect the stored session")
	}
}

func TestStore_UpdatePhase(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice")

	if err := s.UpdatePhase("alice", created.ID, PhaseExploring); err != nil {
		t.Fatalf("UpdatePhase: %v", err)
	}
	got, _ := s.Get("alice", created.ID)
	if got.Phase != PhaseExploring {
		t.Errorf("Phase = %q, want exploring", got.Phase)
	}

	if err := s.UpdatePhase("alice", created.ID, Phase("panic")); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("want ErrInvalidPhase, got %v", err)
	}
	if err := s.UpdatePhase("mallory", created.ID, PhaseClosing); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner update = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdateEmotionalState(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice")

	if err := s.UpdateEmotionalState("alice", created.ID, "hopeful"); err != nil {
		t.Fatalf("UpdateEmotionalState: %v", err)
	}
	got, _ := s.Get("alice", created.ID)
	if got.EmotionalState != "hopeful" {
		t.Errorf("EmotionalState = %q, want hopeful", got.EmotionalState)
	}
}

func TestStore_End(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	created := s.Create("alice")

	if err := s.End("mallory", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner End = %v, want ErrNotFound", err)
	}
	if err := s.End("alice", created.ID); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := s.Get("alice", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after End = %v, want ErrNotFound", err)
	}
	if err := s.End("alice", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double End = %v, want ErrNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{})
	s.Create("alice")
	time.Sleep(time.Millisecond)
	s.Create("alice")
	s.Create("bob")

	got := s.List("alice")
	if len(got) != 2 {
		t.Fatalf("List = %d sessions, want 2", len(got))
	}
	if got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Error("List should be newest first")
	}
	if len(s.List("carol")) != 0 {
		t.Error("List for unknown user should be empty")
	}
}

func TestStore_IdleSweep(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{
		IdleTimeout:   20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	created := s.Create("alice")

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := s.Get("alice", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session should be purged, got %v", err)
	}
}

func TestStore_ActivityDefersSweep(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Config{
		IdleTimeout:   60 * time.Millisecond,
		SweepInterval: 20 * time.Millisecond,
	})

	created := s.Create("alice")

	// Keep the session active past several sweep intervals.
	for range 5 {
		time.Sleep(30 * time.Millisecond)
		if _, err := s.AppendMessage("alice", created.ID, RoleUser, "still here"); err != nil {
			t.Fatalf("active session should survive the sweep: %v", err)
		}
	}
}

func TestPhase_Valid(t *testing.T) {
	t.Parallel()

	for _, p := range []Phase{PhaseOpening, PhaseExploring, PhaseReflecting, PhaseClosing} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if Phase("angry").Valid() {
		t.Error("unknown phase should be invalid")
	}
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	if !RoleUser.Valid() || !RoleAssistant.Valid() {
		t.Error("known roles should be valid")
	}
	if Role("system").Valid() {
		t.Error("system is not a session role")
	}
}
