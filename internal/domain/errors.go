package domain

import (
	"errors"
	"net/http"
)

// Sentinel errors for the chat history layer. Wrap with fmt.Errorf("...: %w")
// and match with errors.Is.
var (
	// ErrUnauthorized: the caller is not the owner of the resource it tries to mutate.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotConfigured: the backing store is unreachable or was never configured.
	ErrNotConfigured = errors.New("chat store not configured")
	// ErrMalformed: a single stored record could not be decoded.
	ErrMalformed = errors.New("malformed chat record")
	// ErrUnknown: an unexpected store failure.
	ErrUnknown = errors.New("unexpected chat store error")
	// ErrNotFound is only used between repositories and the service.
	ErrNotFound = errors.New("not found")
	// ErrValidation: the request cannot be encoded.
	ErrValidation = errors.New("validation failed")
)

// StatusCode maps an error from the chat layer to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
