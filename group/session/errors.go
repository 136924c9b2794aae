package session

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by stores and services wraps one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrNotActive is NotFound-class: from the caller's view there is nothing to join or sync.
	ErrNotActive      = fmt.Errorf("%w: session is not active", ErrNotFound)
	ErrNotParticipant = fmt.Errorf("%w: caller is not a participant", ErrForbidden)
	ErrNotHost        = fmt.Errorf("%w: only the host may do this", ErrForbidden)
	ErrKicked         = fmt.Errorf("%w: participant was removed by the host", ErrForbidden)
	ErrInvalidStatus  = fmt.Errorf("%w: status transition not allowed", ErrConflict)
)

// Kind is the machine-readable class of an error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
