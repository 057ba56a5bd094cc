package room

import "errors"

// Domain errors for the room package.
var (
	// ErrRoomNotFound is returned when a request names a room the
	// document does not declare.
	ErrRoomNotFound = errors.New("room: room not found")

	// ErrNoValue is returned when a manual override produced no value
	// to set, e.g. an expression evaluating to Skip().
	ErrNoValue = errors.New("room: no value to set")

	// ErrInvalidDelay is returned for a negative re-schedule delay in
	// an override request.
	ErrInvalidDelay = errors.New("room: invalid reschedule delay")

	// ErrMissingValue is returned when an override request carries
	// neither a value nor an expression, or both.
	ErrMissingValue = errors.New("room: specify exactly one of value and expression")
)
