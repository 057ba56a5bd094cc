package schedule

import (
	"errors"
	"fmt"
)

// Domain errors for the schedule package.
//
// Construction-time failures wrap these sentinels inside a *ConfigError
// carrying the document path of the offending element:
//
//	if errors.Is(err, schedule.ErrCyclicInclude) {
//	    // reject the document
//	}
var (
	// ErrBadRange is returned for a malformed or out-of-bounds
	// constraint range.
	ErrBadRange = errors.New("schedule: invalid constraint range")

	// ErrBadTime is returned for a malformed time of day.
	ErrBadTime = errors.New("schedule: invalid time of day")

	// ErrBadRule is returned for a structurally invalid rule, e.g. one
	// carrying both a literal value and an expression.
	ErrBadRule = errors.New("schedule: invalid rule")

	// ErrBadDocument is returned for a document that fails to parse.
	ErrBadDocument = errors.New("schedule: invalid document")

	// ErrUnknownSnippet is returned when an IncludeSchedule expression
	// references a snippet that does not exist.
	ErrUnknownSnippet = errors.New("schedule: unknown snippet")

	// ErrCyclicInclude is returned when a snippet directly or
	// transitively includes itself.
	ErrCyclicInclude = errors.New("schedule: cyclic include")
)

// ConfigError reports an invalid schedule document element. It is
// raised at construction only; evaluation never re-validates.
type ConfigError struct {
	// Path locates the element, e.g. "rooms.living.schedule[2]".
	Path string

	// Msg describes the problem.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schedule: %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("schedule: %s: %s", e.Path, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(err error, path, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Msg: fmt.Sprintf(format, args...), Err: err}
}
