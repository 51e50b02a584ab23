package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/keyshift/internal/apperr"
)

type errResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v before touching w, so an encoding failure still
// produces a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("encode response", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(errResponse{Error: "internal error"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResponse{Error: msg})
}

// readJSON decodes a size-capped request body into dst. On failure it has
// already written the 400 and returns false.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// serviceStatus maps chart service errors to a status and the message shown
// to the client.
var serviceStatus = []struct {
	err    error
	status int
	msg    string
}{
	{apperr.ErrNotFound, http.StatusNotFound, "not found"},
	{apperr.ErrAlreadyExists, http.StatusConflict, "already exists"},
	{apperr.ErrConflict, http.StatusConflict, ""},
	{apperr.ErrInvalidChart, http.StatusBadRequest, ""},
	{apperr.ErrInvalidOptions, http.StatusBadRequest, ""},
}

// writeServiceError answers with the status matching err. An empty message
// in the table passes err's own text through. Anything unmapped is logged
// and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, err error, op, p string) {
	for _, m := range serviceStatus {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.msg
		if msg == "" {
			msg = err.Error()
		}
		writeError(w, m.status, msg)
		return
	}
	slog.Error(op+" failed", slog.String("path", p), slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}
