// Package httputil holds the JSON response helpers shared by all HTTP
// handlers. Error responses follow the OAuth-style error/error_description
// shape; internal errors never leak their description to the client.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is the machine-readable error identifier returned to clients.
type ErrorCode string

const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeNotFound     ErrorCode = "not_found"
	CodeConflict     ErrorCode = "conflict"
	CodeInternal     ErrorCode = "internal_error"
)

func (c ErrorCode) status() int {
	switch c {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a coded error response. Internal errors omit the
// description so server details stay out of client responses.
func WriteError(w http.ResponseWriter, code ErrorCode, description string) {
	body := errorBody{Error: code}
	if code != CodeInternal {
		body.ErrorDescription = description
	}
	WriteJSON(w, code.status(), body)
}
