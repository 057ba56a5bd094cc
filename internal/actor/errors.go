package actor

import "errors"

// Domain errors for the actor package.
var (
	// ErrUnknownType is returned when a room declares an actor type no
	// factory exists for.
	ErrUnknownType = errors.New("actor: unknown actor type")

	// ErrBadConfig is returned for an invalid actor configuration.
	ErrBadConfig = errors.New("actor: invalid actor configuration")

	// ErrUnsupportedValue is returned when a value has no command
	// mapping for the actor.
	ErrUnsupportedValue = errors.New("actor: unsupported value")

	// ErrBadValue is returned when a persisted value payload cannot be
	// decoded.
	ErrBadValue = errors.New("actor: invalid value payload")
)
