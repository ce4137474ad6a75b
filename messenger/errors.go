package messenger

import (
	"errors"

	"messenger-sync/store"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid request")
	// ErrPending is returned when a mutation targets a temporary id that the
	// server has not confirmed yet.
	ErrPending = errors.New("message not confirmed yet")
)

// Code is the short error code sent back to a socket client.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrPending):
		return "pending"
	default:
		return "internal"
	}
}
