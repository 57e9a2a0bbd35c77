package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/session"
)

// greeting opens every new conversation.
const greeting = "Hi, I'm Haven. This is a space for whatever is on your mind. How are you arriving today?"

// maxMessageBytes bounds request bodies for message submission.
const maxMessageBytes = 64 << 10

// sessionHandler serves the conversation session lifecycle.
type sessionHandler struct {
	store  *session.Store
	logger log.Logger
}

type createSessionRequest struct {
	// Message optionally seeds the conversation with a first user
	// message; the reply to it is fetched via the stream endpoint.
	Message string `json:"message"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "missing_identity", "caller identity not resolved")
		return
	}

	var req createSessionRequest
	// An empty body is a valid "just open a session" request.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	seed := []session.Message{{Role: session.RoleAssistant, Content: greeting}}
	if req.Message != "" {
		seed = append(seed, session.Message{Role: session.RoleUser, Content: req.Message})
	}

	created := h.store.Create(userID, seed...)
	h.logger.Info("session started", "session", created.ID, "user", userID)
	writeJSON(w, h.logger, http.StatusCreated, created)
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "missing_identity", "caller identity not resolved")
		return
	}

	sessions := h.store.List(userID)
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.sessionRef(w, r)
	if !ok {
		return
	}

	s, err := h.store.Get(userID, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, s)
}

type updatePhaseRequest struct {
	Phase session.Phase `json:"phase"`
}

func (h *sessionHandler) updatePhase(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.sessionRef(w, r)
	if !ok {
		return
	}

	var req updatePhaseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	if err := h.store.UpdatePhase(userID, id, req.Phase); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *sessionHandler) end(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.sessionRef(w, r)
	if !ok {
		return
	}

	if err := h.store.End(userID, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("session ended", "session", id, "user", userID)
	w.WriteHeader(http.StatusNoContent)
}

// sessionRef resolves the caller identity and the {id} path value.
// A malformed id reads as an unknown session, not a validation error,
// so probing with junk ids learns nothing.
func (h *sessionHandler) sessionRef(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "missing_identity", "caller identity not resolved")
		return "", uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, "not_found", "session not found")
		return "", uuid.Nil, false
	}
	return userID, id, true
}
