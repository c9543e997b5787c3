package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/storage"
)

const maxRequestBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// fail answers with {"error": msg}; the status follows the error kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		writeJSON(w, apperr.Status(err), errorBody{Error: appErr.Message})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "User with this email or username already exists"})
	default:
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}

// decode reads a JSON body into out. An empty body leaves out untouched.
func decode(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return apperr.ValidationError("Invalid request body")
	}
	return nil
}

// missing turns storage.ErrNotFound into a 404 with msg.
func missing(err error, msg string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFoundError(msg)
	}
	return err
}
