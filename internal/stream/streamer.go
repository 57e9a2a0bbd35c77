package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/provider"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/session"
)

// Dependency is the orchestrator dependency name for text generation,
// isolating its breaker and gate from other upstreams.
const Dependency = "text-generation"

// defaultBuffer bounds the chunk channel between the provider
// goroutine and the SSE write loop.
const defaultBuffer = 32

// Streamer drives one conversational turn: it appends the user
// message, streams the orchestrated model reply over SSE, then records
// the assembled assistant message in the session store.
type Streamer struct {
	store  *session.Store
	orch   *resilience.Orchestrator
	gen    provider.TextGenerator
	logger log.Logger
	buffer int
}

// New creates a Streamer. buffer <= 0 selects the default chunk
// channel capacity.
func New(store *session.Store, orch *resilience.Orchestrator, gen provider.TextGenerator, logger log.Logger, buffer int) *Streamer {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Streamer{store: store, orch: orch, gen: gen, logger: logger, buffer: buffer}
}

// Stream runs one turn for the owner's session and writes the frame
// sequence connected, start, content*, then end or error to w. input
// may be empty for an open-stream with no pending turn; the model then
// continues from the recorded history. The stream always terminates
// with exactly one end or error frame unless the client disconnects
// first.
func (s *Streamer) Stream(ctx context.Context, w *Writer, userID string, sessionID uuid.UUID, input, emotionalState string) error {
	if input != "" {
		if _, err := s.store.AppendMessage(userID, sessionID, session.RoleUser, input); err != nil {
			return fmt.Errorf("append user message: %w", err)
		}
	}
	if emotionalState != "" {
		if err := s.store.UpdateEmotionalState(userID, sessionID, emotionalState); err != nil {
			return fmt.Errorf("update emotional state: %w", err)
		}
	}

	snapshot, err := s.store.Get(userID, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if err := w.Send(ctx, Connected()); err != nil {
		return err
	}

	messageID := uuid.New()
	if err := w.Send(ctx, Start(messageID)); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan Chunk, s.buffer)
	go s.produce(ctx, chunks, snapshot, messageID)

	for chunk := range chunks {
		if err := w.Send(ctx, chunk); err != nil {
			// Client is gone. Unblock the producer and drain.
			cancel()
			for range chunks {
			}
			return err
		}
	}
	return nil
}

// produce runs the orchestrated generation, forwarding content frames
// onto out and closing it after the terminal frame. When ctx is done
// the provider result is discarded and nothing more is sent.
func (s *Streamer) produce(ctx context.Context, out chan<- Chunk, snapshot *session.Session, messageID uuid.UUID) {
	defer close(out)

	req := provider.GenerateRequest{
		System:  systemPrompt(snapshot),
		History: history(snapshot),
	}

	// Once a fragment has been forwarded a retry would replay it, so
	// transient errors stop being retryable after the first send.
	var sent atomic.Bool
	retryable := func(err error) bool {
		return !sent.Load() && resilience.DefaultRetryable(err)
	}

	op := func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, req, func(ctx context.Context, text string) error {
			select {
			case out <- ContentChunk(messageID, text):
				sent.Store(true)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	reply, err := resilience.Execute(ctx, s.orch, Dependency, op, retryable)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Error("turn failed", "session", snapshot.ID, "error", err)
		select {
		case out <- ErrorChunk(userMessage(err)):
		case <-ctx.Done():
		}
		return
	}

	if _, err := s.store.AppendMessageWithID(snapshot.UserID, snapshot.ID, messageID, session.RoleAssistant, reply); err != nil {
		// Session ended or was swept mid-stream. The reply was still
		// delivered, so finish the stream normally.
		s.logger.Warn("assistant message not recorded", "session", snapshot.ID, "error", err)
	}

	select {
	case out <- End(messageID):
	case <-ctx.Done():
	}
}

// history maps the stored message list onto provider turns, oldest
// first.
func history(s *session.Session) []provider.Turn {
	turns := make([]provider.Turn, 0, len(s.Messages))
	for _, m := range s.Messages {
		turns = append(turns, provider.Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

// userMessage maps internal failures to a message safe to put on the
// wire. Details stay in the logs.
func userMessage(err error) string {
	var open *resilience.OpenError
	switch {
	case errors.As(err, &open):
		return fmt.Sprintf("The companion needs a short break. Please try again in about %d seconds.", int(open.RetryAfter.Seconds())+1)
	case errors.Is(err, resilience.ErrOverCapacity):
		return "Too many conversations are active right now. Please try again in a moment."
	default:
		return "Something went wrong generating a reply. Please try again."
	}
}

// systemPrompt builds the companion persona prompt, steering tone by
// the session's current phase and emotional state.
func systemPrompt(s *session.Session) string {
	base := "You are Haven, a gentle mental-health companion. Listen closely, " +
		"reflect feelings back, and ask one open question at a time. Never " +
		"diagnose or prescribe. If the user mentions harming themselves or " +
		"others, encourage them to contact local emergency services or a " +
		"crisis line."

	var guidance string
	switch s.Phase {
	case session.PhaseOpening:
		guidance = "The conversation is just beginning. Offer a warm welcome and invite the user to share what brought them here."
	case session.PhaseExploring:
		guidance = "Help the user explore what they are feeling. Stay curious and avoid rushing toward solutions."
	case session.PhaseReflecting:
		guidance = "Reflect the themes of the conversation back and help the user name what they have noticed."
	case session.PhaseClosing:
		guidance = "The conversation is winding down. Summarize gently and leave the user with one small, kind takeaway."
	}

	prompt := base + "\n\n" + guidance
	if s.EmotionalState != "" {
		prompt += fmt.Sprintf("\n\nThe user has described their current state as %q.", s.EmotionalState)
	}
	return prompt
}
