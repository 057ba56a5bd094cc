package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// Rule is one node of a schedule tree: temporal constraints plus an
// optional value specification (literal or compiled expression) plus an
// optional ordered sub-schedule. Rules are immutable once constructed
// and owned by exactly one parent.
type Rule struct {
	// Name is an optional display name used in logs and the API.
	Name string

	// Constraints gate the rule's applicability.
	Constraints Constraints

	// Value is the literal value specification. Valid only when
	// HasValue is set; mutually exclusive with Expr.
	Value    any
	HasValue bool

	// Expr is the compiled expression value specification, nil when the
	// rule has none.
	Expr *expression.Program

	// Rules is the rule's sub-schedule. A rule with children never
	// produces a value at its own position; its value specification, if
	// any, is inherited by descendants lacking one.
	Rules []*Rule
}

// HasValueSpec reports whether the rule carries its own value
// specification.
func (r *Rule) HasValueSpec() bool { return r.HasValue || r.Expr != nil }

// IsSubSchedule reports whether the rule owns child rules.
func (r *Rule) IsSubSchedule() bool { return len(r.Rules) > 0 }

func (r *Rule) String() string {
	if r.Name != "" {
		return r.Name
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(r.Constraints.String())
	switch {
	case r.Expr != nil:
		fmt.Fprintf(&b, " x=%q", r.Expr.Source())
	case r.HasValue:
		fmt.Fprintf(&b, " v=%s", expression.FormatValue(r.Value))
	}
	if r.IsSubSchedule() {
		fmt.Fprintf(&b, " +%d rules", len(r.Rules))
	}
	b.WriteString("]")
	return b.String()
}

// Schedule is an ordered rule sequence with prepend/append sections
// that are logically prefixed and suffixed before evaluation. A
// Schedule owns its rules and is immutable after construction; reloads
// replace it wholesale.
type Schedule struct {
	// Name identifies the schedule in logs: the room name, or the
	// snippet name for fragments.
	Name string

	Prepend []*Rule
	Rules   []*Rule
	Append  []*Rule

	// UntrustedExpressionsAllowed gates evaluation of externally
	// supplied expressions targeting this schedule.
	UntrustedExpressionsAllowed bool
}

// EffectiveRules returns prepend + rules + append in evaluation order.
func (s *Schedule) EffectiveRules() []*Rule {
	out := make([]*Rule, 0, len(s.Prepend)+len(s.Rules)+len(s.Append))
	out = append(out, s.Prepend...)
	out = append(out, s.Rules...)
	return append(out, s.Append...)
}

// MatchingRules returns the effective rules whose constraints match t,
// preserving order.
func (s *Schedule) MatchingRules(t time.Time) []*Rule {
	return matchingRules(s.EffectiveRules(), t)
}

// Len returns the number of effective top-level rules.
func (s *Schedule) Len() int {
	return len(s.Prepend) + len(s.Rules) + len(s.Append)
}

func (s *Schedule) String() string {
	return fmt.Sprintf("Schedule(%s)", s.Name)
}

// SchedulingTimes returns the distinct times of day at which any
// rule's applicability can flip, sorted ascending. Rules of statically
// included snippets are resolved through reg and contribute their
// boundaries too. Rooms re-apply their schedule at each of these
// times.
func (s *Schedule) SchedulingTimes(reg *SnippetRegistry) []TimeOfDay {
	seen := make(map[int]TimeOfDay)
	visited := make(map[string]bool)
	s.collectTimes(seen, visited, reg)

	out := make([]TimeOfDay, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seconds() < out[j].Seconds() })
	return out
}

func (s *Schedule) collectTimes(seen map[int]TimeOfDay, visited map[string]bool, reg *SnippetRegistry) {
	collectRuleTimes(s.EffectiveRules(), seen, visited, reg)
}

func collectRuleTimes(rules []*Rule, seen map[int]TimeOfDay, visited map[string]bool, reg *SnippetRegistry) {
	for _, r := range rules {
		if r.Constraints.Start != nil {
			seen[r.Constraints.Start.Seconds()] = *r.Constraints.Start
		}
		if r.Constraints.End != nil {
			seen[r.Constraints.End.Seconds()] = *r.Constraints.End
		}
		if r.Expr != nil && reg != nil {
			for _, name := range r.Expr.Includes() {
				if visited[name] {
					continue
				}
				visited[name] = true
				if frag, ok := reg.Get(name); ok {
					frag.collectTimes(seen, visited, reg)
				}
			}
		}
		collectRuleTimes(r.Rules, seen, visited, reg)
	}
}

// matchingRules filters rules by their constraints, preserving order.
func matchingRules(rules []*Rule, t time.Time) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.Constraints.Match(t) {
			out = append(out, r)
		}
	}
	return out
}

// RulePath addresses one rule through its chain of enclosing
// sub-schedule rules, rooted at the schedule the walk entered through.
// Included fragments start fresh paths rooted at the fragment, which
// is what stops a Break from unwinding past the include boundary.
type RulePath struct {
	Root  *Schedule
	Rules []*Rule
}

// Last returns the path's innermost rule.
func (p *RulePath) Last() *Rule {
	if len(p.Rules) == 0 {
		// Paths are always built with at least one rule; an empty path
		// means the walk's bookkeeping is broken.
		panic("schedule: empty rule path")
	}
	return p.Rules[len(p.Rules)-1]
}

// Child returns a new path extending p by one rule. The rule slice is
// copied so sibling paths never share backing arrays.
func (p *RulePath) Child(r *Rule) *RulePath {
	rules := make([]*Rule, len(p.Rules)+1)
	copy(rules, p.Rules)
	rules[len(p.Rules)] = r
	return &RulePath{Root: p.Root, Rules: rules}
}

// ValueRules returns the path's rules that carry their own value
// specification, outermost first.
func (p *RulePath) ValueRules() []*Rule {
	out := make([]*Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if r.HasValueSpec() {
			out = append(out, r)
		}
	}
	return out
}

// HasPrefix reports whether the path's rules start with the given
// chain.
func (p *RulePath) HasPrefix(prefix []*Rule) bool {
	if len(p.Rules) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if p.Rules[i] != r {
			return false
		}
	}
	return true
}

func (p *RulePath) String() string {
	parts := make([]string, 0, len(p.Rules)+1)
	parts = append(parts, p.Root.String())
	for _, r := range p.Rules {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " -> ")
}

// Outcome is the evaluator's final answer: a resolved value or
// "no change". The zero value is NoChange.
type Outcome struct {
	// HasValue reports whether a value was resolved.
	HasValue bool

	// Value is the resolved value when HasValue is set. It may be the
	// Off sentinel.
	Value any

	// Rule is the rule that produced the terminal result, nil for
	// NoChange.
	Rule *Rule
}

// NoChange is the outcome that leaves the room's previous actuation
// untouched.
var NoChange = Outcome{}

func (o Outcome) String() string {
	if !o.HasValue {
		return "NoChange"
	}
	return fmt.Sprintf("Value(%s)", expression.FormatValue(o.Value))
}
