package actor

import (
	"fmt"
	"strings"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// wildcardState catches values without their own state definition.
const wildcardState = "_other_"

// defaultStateAttr is the attribute the tracked value is read from.
const defaultStateAttr = "state"

// StateDef maps one value onto the command that establishes it.
type StateDef struct {
	// Service names the command channel, e.g. "climate/set_temperature".
	Service string

	// Data is merged into the command payload.
	Data map[string]any

	// IncludeEntityID adds the entity id to the payload (default
	// true).
	IncludeEntityID bool

	// ValueKey, when set, injects the sent value into the payload
	// under this key. Needed for continuous values caught by the
	// wildcard state.
	ValueKey string
}

// Generic is a configurable actor: a table of known states, each wired
// to a command, plus an attribute to read the current value from.
//
// Configuration keys:
//
//	state_attr: attribute carrying the tracked value ("state" by
//	            default, null disables state tracking)
//	states:     map of value to state definition; the key "_other_"
//	            catches everything else
type Generic struct {
	id        string
	typ       string
	stateAttr string
	hasAttr   bool
	states    map[string]StateDef
}

// NewGeneric builds a generic actor from its inline configuration.
func NewGeneric(id string, cfg map[string]any) (*Generic, error) {
	return newGeneric(id, TypeGeneric, cfg)
}

func newGeneric(id, typ string, cfg map[string]any) (*Generic, error) {
	g := &Generic{
		id:        id,
		typ:       typ,
		stateAttr: defaultStateAttr,
		hasAttr:   true,
		states:    make(map[string]StateDef),
	}

	if raw, ok := cfg["state_attr"]; ok {
		switch v := raw.(type) {
		case nil:
			g.hasAttr = false
		case string:
			g.stateAttr = v
		default:
			return nil, fmt.Errorf("%w: %s: state_attr must be a string or null", ErrBadConfig, id)
		}
	}

	rawStates, _ := cfg["states"].(map[string]any)
	for key, rawDef := range rawStates {
		def, err := parseStateDef(rawDef)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: state %q: %v", ErrBadConfig, id, key, err)
		}
		g.states[normaliseStateKey(key)] = def
	}
	return g, nil
}

func parseStateDef(raw any) (StateDef, error) {
	def := StateDef{IncludeEntityID: true}
	m, ok := raw.(map[string]any)
	if !ok {
		return def, fmt.Errorf("definition must be a mapping, got %T", raw)
	}

	service, ok := m["service"].(string)
	if !ok || service == "" {
		return def, fmt.Errorf("missing service")
	}
	// Accept "domain.command" notation and normalise it to the
	// channel form.
	def.Service = strings.Replace(service, ".", "/", 1)

	if raw, ok := m["service_data"]; ok && raw != nil {
		data, ok := raw.(map[string]any)
		if !ok {
			return def, fmt.Errorf("service_data must be a mapping, got %T", raw)
		}
		def.Data = data
	}
	if raw, ok := m["include_entity_id"]; ok {
		include, ok := raw.(bool)
		if !ok {
			return def, fmt.Errorf("include_entity_id must be a bool, got %T", raw)
		}
		def.IncludeEntityID = include
	}
	if raw, ok := m["value_key"]; ok {
		key, ok := raw.(string)
		if !ok {
			return def, fmt.Errorf("value_key must be a string, got %T", raw)
		}
		def.ValueKey = key
	}
	return def, nil
}

// normaliseStateKey maps a configured state key onto the lookup form
// shared with FormatValue, so "21.0" and a scheduled 21 find the same
// definition.
func normaliseStateKey(key string) string {
	if key == wildcardState {
		return key
	}
	return expression.FormatValue(normaliseConfigValue(key))
}

func normaliseConfigValue(key string) any {
	switch key {
	case "OFF":
		return expression.Off
	case "true":
		return true
	case "false":
		return false
	}
	return key
}

// ID returns the controlled entity's identifier.
func (g *Generic) ID() string { return g.id }

// Type returns the actor type name.
func (g *Generic) Type() string { return g.typ }

// stateDef resolves the definition for a value, falling back to the
// wildcard.
func (g *Generic) stateDef(value any) (StateDef, bool) {
	if def, ok := g.states[expression.FormatValue(value)]; ok {
		return def, true
	}
	def, ok := g.states[wildcardState]
	return def, ok
}

// FilterValue accepts any value with a state definition and rejects
// the rest.
func (g *Generic) FilterValue(value any) (any, bool) {
	if _, ok := g.stateDef(value); !ok {
		return nil, false
	}
	return value, true
}

// Command builds the command establishing value.
func (g *Generic) Command(value any) (Command, error) {
	def, ok := g.stateDef(value)
	if !ok {
		return Command{}, fmt.Errorf("%w: %s: no state for %s", ErrUnsupportedValue, g.id, expression.FormatValue(value))
	}

	data := make(map[string]any, len(def.Data)+2)
	for k, v := range def.Data {
		data[k] = v
	}
	if def.IncludeEntityID {
		if _, ok := data["entity_id"]; !ok {
			data["entity_id"] = g.id
		}
	}
	if def.ValueKey != "" {
		data[def.ValueKey] = value
	}
	return Command{Service: def.Service, Data: data}, nil
}

// StateValue reads the tracked attribute from a state report.
func (g *Generic) StateValue(attrs map[string]any) (any, bool) {
	if !g.hasAttr {
		return nil, false
	}
	v, ok := attrs[g.stateAttr]
	if !ok || v == nil {
		return nil, false
	}
	if s, ok := v.(string); ok && s == "OFF" {
		return expression.Off, true
	}
	return v, true
}
