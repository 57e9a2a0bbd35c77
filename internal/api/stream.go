package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/session"
	"github.com/haven-app/haven/internal/stream"
)

// streamHandler serves the two SSE endpoints. All error responses that
// can be decided before the stream opens are ordinary JSON errors;
// once SSE headers are out, failures become terminal error frames.
type streamHandler struct {
	store    *session.Store
	streamer *stream.Streamer
	sessions *sessionHandler
	logger   log.Logger
}

// open replays the conversation into a fresh stream with no pending
// user turn. A just-created session gets its greeting streamed back.
func (h *streamHandler) open(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.sessions.sessionRef(w, r)
	if !ok {
		return
	}
	h.serve(w, r, userID, id, "", "")
}

type submitTurnRequest struct {
	Text           string `json:"text"`
	EmotionalState string `json:"emotionalState"`
}

// submit appends a user turn and streams the reply.
func (h *streamHandler) submit(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.sessions.sessionRef(w, r)
	if !ok {
		return
	}

	var req submitTurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, h.logger, http.StatusBadRequest, "empty_message", "text must not be empty")
		return
	}

	h.serve(w, r, userID, id, req.Text, req.EmotionalState)
}

func (h *streamHandler) serve(w http.ResponseWriter, r *http.Request, userID string, id uuid.UUID, input, emotionalState string) {
	// Ownership is checked before any SSE bytes go out so a missing
	// session is still a plain 404.
	if _, err := h.store.Get(userID, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}

	if err := h.streamer.Stream(r.Context(), sw, userID, id, input, emotionalState); err != nil {
		// Headers are already on the wire; nothing more can be sent.
		h.logger.Debug("stream closed", "session", id, "error", err)
	}
}
