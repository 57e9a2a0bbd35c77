package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/session"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding,
// letting encoding failures still produce a proper 500.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// writeError writes the error envelope with the given status.
func writeError(w http.ResponseWriter, logger log.Logger, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, logger, status, body)
}

// writeDomainError maps known domain errors onto HTTP responses.
// Unrecognized errors become a generic 500 with details kept in logs.
func writeDomainError(w http.ResponseWriter, logger log.Logger, err error) {
	var open *resilience.OpenError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, session.ErrInvalidPhase):
		writeError(w, logger, http.StatusBadRequest, "invalid_phase", "unknown conversation phase")
	case errors.Is(err, session.ErrInvalidRole):
		writeError(w, logger, http.StatusBadRequest, "invalid_role", "unknown message role")
	case errors.As(err, &open):
		w.Header().Set("Retry-After", strconv.Itoa(int(open.RetryAfter.Seconds())+1))
		writeError(w, logger, http.StatusServiceUnavailable, "upstream_unavailable",
			fmt.Sprintf("service is recovering, retry in about %d seconds", int(open.RetryAfter.Seconds())+1))
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, logger, http.StatusServiceUnavailable, "upstream_unavailable", "service is recovering, try again shortly")
	case errors.Is(err, resilience.ErrOverCapacity):
		writeError(w, logger, http.StatusServiceUnavailable, "over_capacity", "too many requests in flight, try again shortly")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
