package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hyxhhh1013/Myproject-sub000/apperr"
)

// APIErrorResponse is the body of every error response.
type APIErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"` // underlying cause, development only
}

// ErrorWriter renders errors as APIErrorResponse with the status of their kind.
type ErrorWriter struct {
	Log          *slog.Logger
	ExposeCauses bool
}

func (ew ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	status := e.HTTPStatus()

	if status >= http.StatusInternalServerError {
		ew.Log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"content_type", r.Header.Get("Content-Type"),
			"content_length", r.ContentLength,
			"kind", e.Kind,
			"error", err,
		)
	}

	resp := APIErrorResponse{Error: e.Message, Code: string(e.Kind)}
	if ew.ExposeCauses && e.Cause != nil {
		resp.Detail = e.Cause.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding JSON response", "error", err)
		}
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func parseID(raw, resource string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s ID", resource)
	}
	return uint(id), nil
}
