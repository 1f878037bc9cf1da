package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPastDeadline      = errors.New("past deadline")
	ErrNotFound          = errors.New("appointment not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrProviderInactive  = errors.New("doctor is not accepting bookings")

	// ErrOverlap is the storage-level signal that an insert or update hit
	// the non-cancelled overlap constraint. The service wraps it into a
	// ConflictError carrying the configured buffer.
	ErrOverlap = errors.New("time slot overlaps an existing appointment")
)

// ConflictError rejects a candidate interval that is busy once expanded by
// the configured buffer.
type ConflictError struct {
	BufferMinutes int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time slot is busy (including a buffer of %d minutes)", e.BufferMinutes)
}

// IsConflict reports whether err is a slot conflict rejection.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func invalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func deadlinef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPastDeadline, fmt.Sprintf(format, args...))
}
