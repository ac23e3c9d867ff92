package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/annostore/internal/annotations"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	ID    string `json:"id,omitempty"`
	Field string `json:"field,omitempty"`

	// Written lists ids committed before a list write failed.
	Written []any `json:"written,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusOf maps engine error codes to HTTP statuses.
func statusOf(err error) int {
	switch {
	case annotations.IsValidation(err):
		return http.StatusBadRequest
	case annotations.IsNotFound(err):
		return http.StatusNotFound
	case annotations.IsWriteConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorBody(w, r, err, errorBody{})
}

func (s *Server) writeErrorBody(w http.ResponseWriter, r *http.Request, err error, body errorBody) {
	status := statusOf(err)
	body.Error = err.Error()
	var e *annotations.Error
	if errors.As(err, &e) {
		body.Code = string(e.Code)
		body.ID = e.ID
		body.Field = e.Field
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, body)
}

func badRequest(message string, err error) error {
	return &annotations.Error{Code: annotations.CodeInvalidRequest, Message: message, Err: err}
}
