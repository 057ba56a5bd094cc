package actor

import "github.com/hearth-home/hearth-core/internal/expression"

// Switch is the binary preset of the generic actor: states "on" and
// "off" wired to turn_on / turn_off commands. Booleans and the Off
// sentinel normalise onto those states, so schedules can say
// v: true, v: "on" or v: "OFF" interchangeably.
type Switch struct {
	*Generic
}

// NewSwitch builds a switch actor. The default states can be
// overridden through the same configuration keys the generic actor
// accepts.
func NewSwitch(id string, cfg map[string]any) (*Switch, error) {
	merged := make(map[string]any, len(cfg)+1)
	for k, v := range cfg {
		merged[k] = v
	}
	if _, ok := merged["states"]; !ok {
		merged["states"] = map[string]any{
			"on":  map[string]any{"service": "turn_on"},
			"off": map[string]any{"service": "turn_off"},
		}
	}
	g, err := newGeneric(id, TypeSwitch, merged)
	if err != nil {
		return nil, err
	}
	return &Switch{Generic: g}, nil
}

// FilterValue normalises booleans and the Off sentinel onto the
// on/off states before the generic lookup.
func (s *Switch) FilterValue(value any) (any, bool) {
	return s.Generic.FilterValue(normaliseSwitchValue(value))
}

// Command translates through the same normalisation as FilterValue.
func (s *Switch) Command(value any) (Command, error) {
	return s.Generic.Command(normaliseSwitchValue(value))
}

func normaliseSwitchValue(value any) any {
	switch v := value.(type) {
	case bool:
		if v {
			return "on"
		}
		return "off"
	case expression.OffValue:
		return "off"
	default:
		return v
	}
}
