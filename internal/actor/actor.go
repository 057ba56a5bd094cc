// Package actor translates between schedule values and the commands
// and state reports of concrete entities. The room manager owns actor
// instances; this package only defines their behaviour.
package actor

import (
	"fmt"

	"github.com/hearth-home/hearth-core/internal/schedule"
)

// Actor type names accepted in room declarations.
const (
	TypeGeneric = "generic"
	TypeSwitch  = "switch"
)

// Actor adapts schedule values to one controlled entity. Actors are
// pure translators: they validate values, build commands and extract
// values from state reports, but never talk to the broker themselves.
// All implementations are stateless and safe for concurrent use.
type Actor interface {
	// ID returns the controlled entity's identifier.
	ID() string

	// Type returns the actor type name.
	Type() string

	// FilterValue validates and possibly rewrites a value before it is
	// sent. ok is false when the actor does not support the value, in
	// which case the caller skips the send.
	FilterValue(value any) (any, bool)

	// Command translates an accepted value into the command to
	// publish.
	Command(value any) (Command, error)

	// StateValue extracts the tracked value from an entity state
	// report. ok is false when the report carries none.
	StateValue(attrs map[string]any) (any, bool)
}

// Command is an instruction for the MQTT layer: publish Data on the
// entity's service channel.
type Command struct {
	// Service names the command, e.g. "turn_on" or
	// "climate/set_temperature".
	Service string

	// Data is the JSON payload.
	Data map[string]any
}

// New builds an actor from its document specification.
func New(spec schedule.ActorSpec) (Actor, error) {
	switch spec.Type {
	case TypeGeneric:
		return NewGeneric(spec.ID, spec.Config)
	case TypeSwitch:
		return NewSwitch(spec.ID, spec.Config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
}
