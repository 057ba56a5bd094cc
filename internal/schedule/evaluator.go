package schedule

import (
	"fmt"
	"time"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// Logger defines the logging interface for the evaluator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Context is the read-only bundle threaded through a whole evaluation
// walk: the room, the timestamp to evaluate for, and the capability set
// exposed to expressions. It is shared by reference and never mutated.
type Context struct {
	// RoomName is bound to room_name in expressions.
	RoomName string

	// Now is the timestamp the schedule is evaluated for.
	Now time.Time

	// State backs the state/is_on/is_off expression capabilities. It
	// must be safe for concurrent reads.
	State expression.StateFunc

	// Funcs are additional registered expression functions.
	Funcs map[string]expression.Func
}

// Evaluator resolves schedules against a snippet registry. Evaluation
// is a pure, synchronous computation over immutable inputs: an
// Evaluator may be shared across rooms and goroutines.
type Evaluator struct {
	snippets *SnippetRegistry
	logger   Logger
}

// NewEvaluator creates an evaluator resolving IncludeSchedule
// references through reg. A nil registry is valid for schedules
// without includes.
func NewEvaluator(reg *SnippetRegistry) *Evaluator {
	return &Evaluator{snippets: reg, logger: noopLogger{}}
}

// SetLogger sets the logger for the evaluator.
func (e *Evaluator) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// Snippets returns the registry the evaluator resolves includes
// through.
func (e *Evaluator) Snippets() *SnippetRegistry { return e.snippets }

// Evaluate walks the schedule depth-first, left to right, and returns
// the first terminal result in document order, or NoChange when the
// rules are exhausted or a rule aborts.
//
// The walk keeps a flat work list of rule paths. A matching
// sub-schedule rule expands into one path per matching child, inserted
// directly after the current position; a leaf path resolves its value
// specification innermost-to-outermost and dispatches on the Result
// variant. Expression results are cached per call, keyed by source
// text, so a shared expression evaluates once per walk.
//
// A returned error is an *expression.EvalError and is fatal for this
// evaluation cycle only: the caller must leave the room's previous
// actuation untouched and surface the error.
func (e *Evaluator) Evaluate(s *Schedule, ctx Context) (Outcome, error) {
	if ctx.Now.IsZero() {
		ctx.Now = time.Now()
	}
	env := &expression.Env{
		RoomName: ctx.RoomName,
		Now:      ctx.Now,
		State:    ctx.State,
		Funcs:    ctx.Funcs,
	}
	cache := make(map[string]expression.Result)

	matched := s.MatchingRules(ctx.Now)
	e.logger.Debug("evaluating schedule",
		"schedule", s.Name, "room", ctx.RoomName, "at", ctx.Now,
		"matching", len(matched), "total", s.Len())

	var paths []*RulePath
	paths = insertPaths(paths, 0, &RulePath{Root: s}, matched)

	// The accumulator is scoped to the entire call: it survives Break
	// unwinds and include boundaries until a terminal value consumes
	// it.
	var pending *expression.Add

	idx := 0
	for idx < len(paths) {
		path := paths[idx]
		idx++
		rule := path.Last()

		if rule.IsSubSchedule() {
			children := matchingRules(rule.Rules, ctx.Now)
			e.logger.Debug("expanding sub-schedule",
				"path", path.String(), "matching", len(children), "total", len(rule.Rules))
			paths = insertPaths(paths, idx, path, children)
			continue
		}

		res, err := e.resolveValue(path, env, cache)
		if err != nil {
			return NoChange, err
		}
		if res == nil {
			e.logger.Warn("no value specification found, skipping rule",
				"path", path.String())
			continue
		}
		e.logger.Debug("rule resolved", "path", path.String(), "result", res.String())

		switch r := res.(type) {
		case expression.Skip:
			continue

		case expression.Add:
			if pending == nil {
				add := r
				pending = &add
				continue
			}
			combined, err := expression.AddValues(pending.Delta, r.Delta)
			if err != nil {
				return NoChange, &expression.EvalError{Source: ruleSource(rule), Err: err}
			}
			pending.Delta = combined
			continue

		case expression.Value:
			value := r.Val
			if pending != nil {
				combined, err := expression.AddValues(pending.Delta, value)
				if err != nil {
					return NoChange, &expression.EvalError{Source: ruleSource(rule), Err: err}
				}
				value = combined
			}
			return Outcome{HasValue: true, Value: value, Rule: rule}, nil

		case expression.Break:
			// Unwind r.Levels enclosing sub-schedules: drop every
			// following path that still shares the surviving prefix
			// within the same root.
			prefixSize := len(path.Rules) - r.Levels
			if prefixSize < 0 {
				prefixSize = 0
			}
			prefix := path.Rules[:prefixSize]
			cut := idx
			for cut < len(paths) && paths[cut].Root == path.Root && paths[cut].HasPrefix(prefix) {
				cut++
			}
			if cut > idx {
				e.logger.Debug("break unwinding", "path", path.String(),
					"levels", r.Levels, "dropped", cut-idx)
				paths = append(paths[:idx], paths[cut:]...)
			}
			continue

		case expression.Abort:
			e.logger.Debug("schedule aborted", "path", path.String())
			return NoChange, nil

		case expression.IncludeSchedule:
			frag, ok := e.snippets.Get(r.Name)
			if !ok {
				// Load-time validation covers configured schedules;
				// this is reachable only for ad-hoc expressions that
				// bypassed it.
				return NoChange, fmt.Errorf("%w: %q", ErrUnknownSnippet, r.Name)
			}
			children := frag.MatchingRules(ctx.Now)
			e.logger.Debug("splicing snippet", "snippet", r.Name,
				"matching", len(children), "total", frag.Len())
			paths = insertPaths(paths, idx, &RulePath{Root: frag}, children)
			continue

		default:
			// resolveValue filters Inherit; the variant set is closed.
			panic(fmt.Sprintf("schedule: unhandled result variant %T", res))
		}
	}

	e.logger.Debug("no result found", "schedule", s.Name, "room", ctx.RoomName)
	return NoChange, nil
}

// resolveValue resolves a leaf path's value specification, searching
// innermost to outermost. An expression yielding the Inherit marker
// defers to the nearest ancestor carrying its own specification. A nil
// result means no rule on the path provided a value.
func (e *Evaluator) resolveValue(path *RulePath, env *expression.Env, cache map[string]expression.Result) (expression.Result, error) {
	valueRules := path.ValueRules()
	for i := len(valueRules) - 1; i >= 0; i-- {
		rule := valueRules[i]
		var res expression.Result
		if rule.Expr != nil {
			src := rule.Expr.Source()
			if hit, ok := cache[src]; ok {
				res = hit
			} else {
				var err error
				res, err = expression.Evaluate(rule.Expr, env)
				if err != nil {
					return nil, err
				}
				cache[src] = res
			}
		} else {
			res = expression.Value{Val: rule.Value}
		}
		if _, isInherit := res.(expression.Inherit); isInherit {
			continue
		}
		return res, nil
	}
	return nil, nil
}

// ruleSource names a rule's value specification for error reporting.
func ruleSource(r *Rule) string {
	if r.Expr != nil {
		return r.Expr.Source()
	}
	if r.HasValue {
		return expression.FormatValue(r.Value)
	}
	return r.String()
}

// insertPaths inserts one path per rule at position at, preserving
// rule order.
func insertPaths(paths []*RulePath, at int, prefix *RulePath, rules []*Rule) []*RulePath {
	if len(rules) == 0 {
		return paths
	}
	fresh := make([]*RulePath, len(rules))
	for i, r := range rules {
		fresh[i] = prefix.Child(r)
	}
	out := make([]*RulePath, 0, len(paths)+len(fresh))
	out = append(out, paths[:at]...)
	out = append(out, fresh...)
	return append(out, paths[at:]...)
}
