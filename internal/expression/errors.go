package expression

import (
	"errors"
	"fmt"
)

// Sentinel errors for the expression package.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, expression.ErrSyntax) {
//	    // reject the schedule document
//	}
var (
	// ErrSyntax is returned by Compile when the source does not parse.
	ErrSyntax = errors.New("expression: syntax error")

	// ErrUnknownFunction is returned when an expression calls a function
	// that is neither a builtin nor registered on the Env.
	ErrUnknownFunction = errors.New("expression: unknown function")

	// ErrUnknownName is returned when an expression references a name
	// that is not bound in the Env.
	ErrUnknownName = errors.New("expression: unknown name")

	// ErrBadOperand is returned when an operator is applied to values
	// of an unsupported type combination.
	ErrBadOperand = errors.New("expression: bad operand")

	// ErrBadArgument is returned when a function receives an argument
	// of the wrong type or an invalid value.
	ErrBadArgument = errors.New("expression: bad argument")

	// ErrArgCount is returned when a function receives the wrong number
	// of arguments.
	ErrArgCount = errors.New("expression: wrong argument count")
)

// EvalError reports a runtime failure while evaluating a compiled
// expression. It is fatal for the evaluation cycle that triggered it:
// the schedule walk stops and the room's previous actuation is left
// untouched.
type EvalError struct {
	// Source is the expression text that failed.
	Source string

	// Err is the underlying cause.
	Err error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("expression: evaluating %q: %v", e.Source, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// PermissionError reports an externally supplied expression submitted
// to a schedule whose untrusted_expressions_allowed flag is unset. The
// request is rejected before any evaluation occurs.
type PermissionError struct {
	// Room is the room the expression was submitted for.
	Room string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("expression: untrusted expressions are not allowed for room %q", e.Room)
}
