// Package schedule provides the rule evaluation engine for Hearth.
//
// A schedule is an ordered tree of rules. Each rule carries temporal
// constraints (time window, weekdays, days, months, years) and either a
// literal value or an expression. Evaluating a schedule at an instant
// walks the matching rules in document order and reduces their results
// to a single outcome for the room.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                Evaluator (evaluator.go)                 │
//	│  Walks matching rule paths and folds results            │
//	│  ┌──────────────┐    ┌───────────────────┐             │
//	│  │   Document   │───▶│  SnippetRegistry  │             │
//	│  │(document.go) │    │   (snippets.go)   │             │
//	│  └──────────────┘    └───────────────────┘             │
//	│        │                                                │
//	│        ▼                                                │
//	│  ┌───────────────────────────────────────────────┐     │
//	│  │  Evaluation Pipeline                           │     │
//	│  │  1. Collect matching paths (constraints.go)    │     │
//	│  │  2. Expand sub-schedules in document order     │     │
//	│  │  3. Resolve rule value: innermost expression   │     │
//	│  │     first, inheriting up the path              │     │
//	│  │  4. Fold Add deltas until a final Result       │     │
//	│  │  5. Apply Break / Abort / IncludeSchedule      │     │
//	│  └───────────────────────────────────────────────┘     │
//	└────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Document: Parsed schedule file (time zone, snippets, rooms)
//   - Rule: One node of the rule tree with constraints and a value spec
//   - Schedule: Prepend + main + append rule sections for a room
//   - SnippetRegistry: Named schedule fragments for IncludeSchedule
//   - Evaluator: Resolves one outcome per (schedule, instant) pair
//   - Outcome: The resulting value, or NoChange when nothing applies
//
// # Evaluation Semantics
//
// Rules nest: a rule without a value of its own inherits from the
// nearest ancestor that has one. Expressions return typed results,
// with Skip, Add, Break, Abort and IncludeSchedule steering the walk.
// Add deltas accumulate across rules until a plain result absorbs
// them. Break prunes the remaining rules of the enclosing sub-schedule
// (or more levels when given an argument), Abort ends evaluation with
// no outcome, and IncludeSchedule splices a named snippet in place of
// the current rule.
//
// Evaluation is pure: it never mutates the schedule, performs no I/O,
// and two calls with the same schedule, instant and entity states
// produce the same outcome.
//
// # Validation
//
// ParseDocument compiles every expression and validates every
// constraint up front, so evaluation cannot hit malformed input.
// Include targets are string literals, which makes the include graph
// static: unknown snippet references and include cycles are rejected
// at parse time with *ConfigError values.
//
// # Thread Safety
//
// Document, Schedule, Rule and SnippetRegistry are immutable after
// parsing and safe for concurrent readers. The Evaluator keeps no
// per-call state and may be shared freely.
//
// # Usage
//
//	doc, err := schedule.LoadDocument("schedules.yaml")
//	if err != nil {
//	    return err
//	}
//
//	eval := schedule.NewEvaluator(doc.Snippets)
//	eval.SetLogger(log)
//
//	outcome, err := eval.Evaluate(doc.Rooms[0].Schedule, schedule.Context{
//	    RoomName: doc.Rooms[0].Name,
//	    Now:      time.Now().In(doc.Timezone),
//	    State:    states.Lookup,
//	})
//	if outcome.HasValue {
//	    apply(outcome.Value)
//	}
package schedule
