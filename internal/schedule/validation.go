package schedule

import (
	"fmt"
	"strings"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// Include targets are string literals, so the full include graph is
// known at parse time. validateIncludes rejects references to unknown
// snippets and cycles among snippets before any evaluation runs.
func validateIncludes(doc *Document) error {
	if err := checkSnippetGraph(doc.Snippets); err != nil {
		return err
	}
	for _, room := range doc.Rooms {
		path := "rooms." + room.Name
		for _, target := range scheduleIncludes(room.Schedule) {
			if _, ok := doc.Snippets.Get(target); !ok {
				return configErrorf(ErrUnknownSnippet, path, "references unknown snippet %q", target)
			}
		}
	}
	return nil
}

// checkSnippetGraph walks the snippet-to-snippet include edges with a
// colouring DFS. A grey node seen twice is a cycle; the error spells
// out the loop.
func checkSnippetGraph(reg *SnippetRegistry) error {
	const (
		white = iota // unvisited
		grey         // on the current path
		black        // fully explored
	)
	colour := make(map[string]int, reg.Len())
	var trail []string

	var visit func(name string) error
	visit = func(name string) error {
		switch colour[name] {
		case grey:
			return configErrorf(ErrCyclicInclude, "snippets."+name, "include cycle: %s", cycleString(trail, name))
		case black:
			return nil
		}
		colour[name] = grey
		trail = append(trail, name)

		fragment, _ := reg.Get(name)
		for _, target := range scheduleIncludes(fragment) {
			if _, ok := reg.Get(target); !ok {
				return configErrorf(ErrUnknownSnippet, "snippets."+name, "references unknown snippet %q", target)
			}
			if err := visit(target); err != nil {
				return err
			}
		}

		colour[name] = black
		trail = trail[:len(trail)-1]
		return nil
	}

	for _, name := range reg.Names() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// cycleString renders the closed loop from the DFS trail, e.g.
// "eco -> day -> eco".
func cycleString(trail []string, repeat string) string {
	start := 0
	for i, name := range trail {
		if name == repeat {
			start = i
			break
		}
	}
	parts := append(append([]string{}, trail[start:]...), repeat)
	return strings.Join(parts, " -> ")
}

// scheduleIncludes collects every snippet name referenced by an
// IncludeSchedule call anywhere in the schedule, deduplicated in
// first-seen order.
func scheduleIncludes(s *Schedule) []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	var walk func(rules []*Rule)
	walk = func(rules []*Rule) {
		for _, rule := range rules {
			if rule.Expr != nil {
				for _, name := range rule.Expr.Includes() {
					if _, ok := seen[name]; ok {
						continue
					}
					seen[name] = struct{}{}
					names = append(names, name)
				}
			}
			walk(rule.Rules)
		}
	}
	walk(s.Prepend)
	walk(s.Rules)
	walk(s.Append)
	return names
}

// CheckProgram verifies that every snippet a compiled expression could
// include exists in the registry. Used for expressions that arrive at
// runtime, such as manual overrides, which bypass document validation.
func (r *SnippetRegistry) CheckProgram(prog *expression.Program) error {
	if prog == nil {
		return nil
	}
	for _, target := range prog.Includes() {
		if _, ok := r.Get(target); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSnippet, target)
		}
	}
	return nil
}
