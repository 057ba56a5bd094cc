package schedule

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// Defaults applied to rooms that do not set their own values.
const (
	defaultRescheduleDelay = 60 * time.Minute
	defaultActorType       = "generic"
)

// Document is a fully parsed and validated schedule document: the
// snippet registry plus one schedule per room. A Document is immutable;
// reloads build a new one and swap it wholesale.
type Document struct {
	// Timezone is the local time zone constraint fields are evaluated
	// in.
	Timezone *time.Location

	// Snippets holds the named fragments referenced by
	// IncludeSchedule.
	Snippets *SnippetRegistry

	// Rooms are the configured rooms, sorted by name.
	Rooms []RoomDocument
}

// RoomDocument is one room's declaration: identity, behaviour settings,
// actor specifications and the schedule itself.
type RoomDocument struct {
	Name         string
	FriendlyName string

	// RescheduleDelay is how long a manual adjustment holds off
	// automatic rescheduling. Zero disables the timer.
	RescheduleDelay time.Duration

	// ReplicateChanges propagates a manual change at one actor to the
	// room's other actors.
	ReplicateChanges bool

	// Actors describe the room's actuators. Their type-specific
	// configuration is parsed by the actor package.
	Actors []ActorSpec

	// Schedule is the room's rule tree.
	Schedule *Schedule
}

// ActorSpec is an actor declaration with its type-specific settings
// left opaque for the actor package to interpret.
type ActorSpec struct {
	ID     string
	Type   string
	Config map[string]any
}

// Raw document shapes. Constraint dimensions and literal values decode
// through yaml.Node so we can distinguish absent keys and accept the
// int / string / list forms.
type documentYAML struct {
	Timezone                    string                `yaml:"timezone"`
	UntrustedExpressionsAllowed bool                  `yaml:"untrusted_expressions_allowed"`
	Snippets                    map[string][]ruleYAML `yaml:"snippets"`
	Rooms                       map[string]roomYAML   `yaml:"rooms"`
}

type roomYAML struct {
	FriendlyName                string      `yaml:"friendly_name"`
	RescheduleDelay             *float64    `yaml:"reschedule_delay"`
	ReplicateChanges            *bool       `yaml:"replicate_changes"`
	UntrustedExpressionsAllowed *bool       `yaml:"untrusted_expressions_allowed"`
	Actors                      []actorYAML `yaml:"actors"`
	SchedulePrepend             []ruleYAML  `yaml:"schedule_prepend"`
	Schedule                    []ruleYAML  `yaml:"schedule"`
	ScheduleAppend              []ruleYAML  `yaml:"schedule_append"`
}

type actorYAML struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:",inline"`
}

type ruleYAML struct {
	Name     string     `yaml:"name"`
	Value    yaml.Node  `yaml:"v"`
	Expr     string     `yaml:"x"`
	Start    string     `yaml:"start"`
	End      string     `yaml:"end"`
	Weekdays yaml.Node  `yaml:"weekdays"`
	Days     yaml.Node  `yaml:"days"`
	Months   yaml.Node  `yaml:"months"`
	Years    yaml.Node  `yaml:"years"`
	Rules    []ruleYAML `yaml:"rules"`
}

// LoadDocument reads and parses the schedule document at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schedule document: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument parses, compiles and validates a schedule document.
// All returned errors are *ConfigError values naming the offending
// element; a parsed Document needs no re-validation at evaluation
// time.
func ParseDocument(data []byte) (*Document, error) {
	var raw documentYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErrorf(ErrBadDocument, "document", "%v", err)
	}

	doc := &Document{Timezone: time.Local}
	if raw.Timezone != "" {
		loc, err := time.LoadLocation(raw.Timezone)
		if err != nil {
			return nil, configErrorf(ErrBadDocument, "timezone", "unknown time zone %q", raw.Timezone)
		}
		doc.Timezone = loc
	}

	fragments := make(map[string]*Schedule, len(raw.Snippets))
	for name, rules := range raw.Snippets {
		path := "snippets." + name
		parsed, err := parseRules(rules, path)
		if err != nil {
			return nil, err
		}
		fragments[name] = &Schedule{Name: name, Rules: parsed}
	}
	doc.Snippets = NewSnippetRegistry(fragments)

	names := make([]string, 0, len(raw.Rooms))
	for name := range raw.Rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		room, err := parseRoom(name, raw.Rooms[name], raw.UntrustedExpressionsAllowed)
		if err != nil {
			return nil, err
		}
		doc.Rooms = append(doc.Rooms, room)
	}

	if err := validateIncludes(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseRoom(name string, raw roomYAML, untrustedDefault bool) (RoomDocument, error) {
	path := "rooms." + name
	room := RoomDocument{
		Name:             name,
		FriendlyName:     raw.FriendlyName,
		RescheduleDelay:  defaultRescheduleDelay,
		ReplicateChanges: true,
	}
	if room.FriendlyName == "" {
		room.FriendlyName = name
	}
	if raw.RescheduleDelay != nil {
		if *raw.RescheduleDelay < 0 {
			return room, configErrorf(ErrBadDocument, path+".reschedule_delay", "must not be negative")
		}
		room.RescheduleDelay = time.Duration(*raw.RescheduleDelay * float64(time.Minute))
	}
	if raw.ReplicateChanges != nil {
		room.ReplicateChanges = *raw.ReplicateChanges
	}

	for i, a := range raw.Actors {
		if a.ID == "" {
			return room, configErrorf(ErrBadDocument, fmt.Sprintf("%s.actors[%d]", path, i), "missing actor id")
		}
		spec := ActorSpec{ID: a.ID, Type: a.Type, Config: a.Config}
		if spec.Type == "" {
			spec.Type = defaultActorType
		}
		room.Actors = append(room.Actors, spec)
	}

	untrusted := untrustedDefault
	if raw.UntrustedExpressionsAllowed != nil {
		untrusted = *raw.UntrustedExpressionsAllowed
	}

	prepend, err := parseRules(raw.SchedulePrepend, path+".schedule_prepend")
	if err != nil {
		return room, err
	}
	rules, err := parseRules(raw.Schedule, path+".schedule")
	if err != nil {
		return room, err
	}
	appendRules, err := parseRules(raw.ScheduleAppend, path+".schedule_append")
	if err != nil {
		return room, err
	}
	room.Schedule = &Schedule{
		Name:                        name,
		Prepend:                     prepend,
		Rules:                       rules,
		Append:                      appendRules,
		UntrustedExpressionsAllowed: untrusted,
	}
	return room, nil
}

func parseRules(raws []ruleYAML, path string) ([]*Rule, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	rules := make([]*Rule, 0, len(raws))
	for i, raw := range raws {
		rule, err := parseRule(raw, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(raw ruleYAML, path string) (*Rule, error) {
	rule := &Rule{Name: raw.Name}

	hasLiteral := !raw.Value.IsZero() && raw.Value.Tag != "!!null"
	if hasLiteral && raw.Expr != "" {
		return nil, configErrorf(ErrBadRule, path, "v and x are mutually exclusive")
	}
	if hasLiteral {
		var v any
		if err := raw.Value.Decode(&v); err != nil {
			return nil, configErrorf(ErrBadRule, path+".v", "%v", err)
		}
		rule.Value = normaliseValue(v)
		rule.HasValue = true
	}
	if raw.Expr != "" {
		prog, err := expression.Compile(raw.Expr)
		if err != nil {
			return nil, configErrorf(err, path+".x", "invalid expression")
		}
		rule.Expr = prog
	}

	var err error
	if rule.Constraints.Start, err = parseClock(raw.Start, path+".start"); err != nil {
		return nil, err
	}
	if rule.Constraints.End, err = parseClock(raw.End, path+".end"); err != nil {
		return nil, err
	}
	if rule.Constraints.Weekdays, err = parseSet(raw.Weekdays, minWeekday, maxWeekday, path+".weekdays"); err != nil {
		return nil, err
	}
	if rule.Constraints.Days, err = parseSet(raw.Days, minDay, maxDay, path+".days"); err != nil {
		return nil, err
	}
	if rule.Constraints.Months, err = parseSet(raw.Months, minMonth, maxMonth, path+".months"); err != nil {
		return nil, err
	}
	if rule.Constraints.Years, err = parseSet(raw.Years, minYear, maxYear, path+".years"); err != nil {
		return nil, err
	}

	if len(raw.Rules) > 0 {
		children, err := parseRules(raw.Rules, path+".rules")
		if err != nil {
			return nil, err
		}
		rule.Rules = children
	}
	return rule, nil
}

func parseClock(s, path string) (*TimeOfDay, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return nil, configErrorf(err, path, "invalid time")
	}
	return &t, nil
}

func parseSet(node yaml.Node, minVal, maxVal int, path string) (*IntSet, error) {
	if node.IsZero() || node.Tag == "!!null" {
		return nil, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, configErrorf(ErrBadRange, path, "%v", err)
	}
	set, err := ParseIntSet(v, minVal, maxVal)
	if err != nil {
		return nil, configErrorf(err, path, "invalid range")
	}
	return set, nil
}

// normaliseValue maps parsed literals onto the expression value domain:
// integers widen to float64 and the bare string "OFF" becomes the Off
// sentinel. Containers are normalised recursively so stored and
// computed values compare equal.
func normaliseValue(v any) any {
	switch t := v.(type) {
	case string:
		if t == "OFF" {
			return expression.Off
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normaliseContained(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normaliseContained(item)
		}
		return out
	default:
		return v
	}
}

// normaliseContained widens numbers inside containers but leaves
// strings alone: "OFF" only acts as a sentinel at the top level.
func normaliseContained(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case map[string]any:
		return normaliseValue(t)
	case []any:
		return normaliseValue(t)
	default:
		return v
	}
}
