// Package apperr holds the sentinel errors shared by services and handlers
// and their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrChatNotFound = errors.New("chat not found")
	ErrNoAPIKey     = errors.New("no API key configured on the backend")
	ErrUpstream     = errors.New("failed to process the request")
	ErrRateLimited  = errors.New("too many requests")
	ErrDuplicate    = errors.New("duplicate message")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("invalid request")
)

// Status maps err onto an HTTP status and the public message for the
// {"error": ...} body. Unknown errors collapse into ErrUpstream.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, ErrEmptyMessage.Error()
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, ErrBadRequest.Error()
	case errors.Is(err, ErrChatNotFound):
		return http.StatusNotFound, ErrChatNotFound.Error()
	case errors.Is(err, ErrNoAPIKey):
		return http.StatusInternalServerError, ErrNoAPIKey.Error()
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, ErrRateLimited.Error()
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict, ErrDuplicate.Error()
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrUnauthorized.Error()
	default:
		return http.StatusInternalServerError, ErrUpstream.Error()
	}
}
