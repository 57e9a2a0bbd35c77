package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/voice"
)

// maxVoiceTextBytes bounds the text accepted for synthesis. Clips are
// for single companion replies, not documents.
const maxVoiceTextBytes = 8 << 10

// voiceHandler serves speech synthesis.
type voiceHandler struct {
	service *voice.Service
	logger  log.Logger
}

type voiceRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *voiceHandler) synthesize(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVoiceTextBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, h.logger, http.StatusBadRequest, "empty_text", "text must not be empty")
		return
	}

	audio, err := h.service.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", audio.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	// Clips are content-addressed upstream; clients may cache hard.
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(audio.Data); err != nil {
		h.logger.Debug("failed to write audio response", "error", err)
	}
}
