package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Builtin result-constructor names.
const (
	funcResult          = "Result"
	funcAdd             = "Add"
	funcSkip            = "Skip"
	funcBreak           = "Break"
	funcAbort           = "Abort"
	funcIncludeSchedule = "IncludeSchedule"
)

// StateFunc looks up the current state of an entity. Unknown entities
// yield nil. Implementations must be safe for concurrent use.
type StateFunc func(entityID string) any

// Func is a registered pure function callable from expressions.
type Func func(args []any) (any, error)

// Env is the fixed capability set an expression evaluates against. It
// is read-only during evaluation and shared by reference across a whole
// schedule walk.
type Env struct {
	// RoomName is bound to the room_name identifier.
	RoomName string

	// Now is the evaluation timestamp used by the clock accessors.
	// A zero value falls back to the wall clock.
	Now time.Time

	// State backs the state/is_on/is_off capabilities. Nil disables
	// state lookup (state() yields nil for every entity).
	State StateFunc

	// Vars are additional bound names.
	Vars map[string]any

	// Funcs are additional registered functions. They cannot shadow
	// builtins.
	Funcs map[string]Func
}

func (e *Env) now() time.Time {
	if e == nil || e.Now.IsZero() {
		return time.Now()
	}
	return e.Now
}

func (e *Env) state(entityID string) any {
	if e == nil || e.State == nil {
		return nil
	}
	return e.State(entityID)
}

// Evaluate runs a compiled expression against env and maps the raw
// value onto the Result protocol: Result variants pass through, null
// becomes Inherit and anything else wraps into a final Value. Runtime
// failures return an *EvalError; the partial state of the walk is
// unaffected.
func Evaluate(p *Program, env *Env) (Result, error) {
	raw, err := evalNode(p.root, env)
	if err != nil {
		return nil, &EvalError{Source: p.src, Err: err}
	}
	switch v := raw.(type) {
	case Result:
		return v, nil
	case nil:
		return Inherit{}, nil
	default:
		return Value{Val: v}, nil
	}
}

func evalNode(n node, env *Env) (any, error) {
	switch t := n.(type) {
	case numberLit:
		return t.val, nil
	case stringLit:
		return t.val, nil
	case boolLit:
		return t.val, nil
	case nullLit:
		return nil, nil
	case offLit:
		return Off, nil
	case ident:
		return evalIdent(t, env)
	case unary:
		return evalUnary(t, env)
	case binary:
		return evalBinary(t, env)
	case ternary:
		return evalTernary(t, env)
	case call:
		return evalCall(t, env)
	default:
		// The parser only produces the node kinds above.
		panic(fmt.Sprintf("expression: unhandled node type %T", n))
	}
}

func evalIdent(id ident, env *Env) (any, error) {
	if id.name == "room_name" {
		if env == nil {
			return "", nil
		}
		return env.RoomName, nil
	}
	if env != nil {
		if v, ok := env.Vars[id.name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownName, id.name)
}

func evalUnary(u unary, env *Env) (any, error) {
	right, err := evalNode(u.right, env)
	if err != nil {
		return nil, err
	}
	switch u.op {
	case tokenMinus:
		n, ok := toNumber(right)
		if !ok {
			return nil, fmt.Errorf("%w: unary - on %s", ErrBadOperand, TypeName(right))
		}
		return -n, nil
	case tokenBang:
		b, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: ! on %s", ErrBadOperand, TypeName(right))
		}
		return !b, nil
	default:
		panic(fmt.Sprintf("expression: unhandled unary operator %d", u.op))
	}
}

func evalTernary(t ternary, env *Env) (any, error) {
	cond, err := evalNode(t.cond, env)
	if err != nil {
		return nil, err
	}
	b, ok := cond.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: ternary condition is %s, want bool", ErrBadOperand, TypeName(cond))
	}
	if b {
		return evalNode(t.then, env)
	}
	return evalNode(t.els, env)
}

func evalBinary(b binary, env *Env) (any, error) {
	// && and || short-circuit; their operands must be bool.
	if b.op == tokenAnd || b.op == tokenOr {
		return evalLogical(b, env)
	}

	left, err := evalNode(b.left, env)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(b.right, env)
	if err != nil {
		return nil, err
	}
	if isResultOperand(left) || isResultOperand(right) {
		return nil, fmt.Errorf("%w: result values cannot be combined with operators", ErrBadOperand)
	}

	switch b.op {
	case tokenEq:
		return Equal(left, right), nil
	case tokenNeq:
		return !Equal(left, right), nil
	case tokenPlus:
		return AddValues(left, right)
	}

	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			return compareStrings(b.op, ls, rs)
		}
	}

	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: %s and %s", ErrBadOperand, TypeName(left), TypeName(right))
	}
	switch b.op {
	case tokenMinus:
		return ln - rn, nil
	case tokenStar:
		return ln * rn, nil
	case tokenSlash:
		if rn == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrBadOperand)
		}
		return ln / rn, nil
	case tokenPercent:
		if rn == 0 {
			return nil, fmt.Errorf("%w: modulo by zero", ErrBadOperand)
		}
		return math.Mod(ln, rn), nil
	case tokenLt:
		return ln < rn, nil
	case tokenLte:
		return ln <= rn, nil
	case tokenGt:
		return ln > rn, nil
	case tokenGte:
		return ln >= rn, nil
	default:
		panic(fmt.Sprintf("expression: unhandled binary operator %d", b.op))
	}
}

func evalLogical(b binary, env *Env) (any, error) {
	left, err := evalNode(b.left, env)
	if err != nil {
		return nil, err
	}
	lb, ok := left.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: logical operand is %s, want bool", ErrBadOperand, TypeName(left))
	}
	if b.op == tokenAnd && !lb {
		return false, nil
	}
	if b.op == tokenOr && lb {
		return true, nil
	}
	right, err := evalNode(b.right, env)
	if err != nil {
		return nil, err
	}
	rb, ok := right.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: logical operand is %s, want bool", ErrBadOperand, TypeName(right))
	}
	return rb, nil
}

func compareStrings(op tokenKind, l, r string) (any, error) {
	switch op {
	case tokenLt:
		return l < r, nil
	case tokenLte:
		return l <= r, nil
	case tokenGt:
		return l > r, nil
	case tokenGte:
		return l >= r, nil
	default:
		return nil, fmt.Errorf("%w: operator not defined on strings", ErrBadOperand)
	}
}

func isResultOperand(v any) bool {
	_, ok := v.(Result)
	return ok
}

func evalCall(c call, env *Env) (any, error) {
	// Result constructors evaluate lazily so argument errors carry the
	// constructor name.
	switch c.name {
	case funcResult, funcAdd, funcSkip, funcBreak, funcAbort, funcIncludeSchedule:
		return evalConstructor(c, env)
	}

	args := make([]any, len(c.args))
	for i, argNode := range c.args {
		arg, err := evalNode(argNode, env)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	if fn, ok := builtins[c.name]; ok {
		return fn(env, args)
	}
	if env != nil {
		if fn, ok := env.Funcs[c.name]; ok {
			return fn(args)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, c.name)
}

func evalConstructor(c call, env *Env) (any, error) {
	args := make([]any, len(c.args))
	for i, argNode := range c.args {
		arg, err := evalNode(argNode, env)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	switch c.name {
	case funcResult:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes 1 argument, got %d", ErrArgCount, c.name, len(args))
		}
		if isResultOperand(args[0]) {
			return nil, fmt.Errorf("%w: %s cannot wrap another result", ErrBadArgument, c.name)
		}
		return Value{Val: args[0]}, nil
	case funcAdd:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes 1 argument, got %d", ErrArgCount, c.name, len(args))
		}
		if isResultOperand(args[0]) {
			return nil, fmt.Errorf("%w: %s cannot wrap another result", ErrBadArgument, c.name)
		}
		return Add{Delta: args[0]}, nil
	case funcSkip:
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: %s takes no arguments, got %d", ErrArgCount, c.name, len(args))
		}
		return Skip{}, nil
	case funcBreak:
		levels := 1
		switch len(args) {
		case 0:
		case 1:
			n, ok := toNumber(args[0])
			if !ok || n != math.Trunc(n) || n < 1 {
				return nil, fmt.Errorf("%w: %s levels must be an integer >= 1", ErrBadArgument, c.name)
			}
			levels = int(n)
		default:
			return nil, fmt.Errorf("%w: %s takes at most 1 argument, got %d", ErrArgCount, c.name, len(args))
		}
		return Break{Levels: levels}, nil
	case funcAbort:
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: %s takes no arguments, got %d", ErrArgCount, c.name, len(args))
		}
		return Abort{}, nil
	case funcIncludeSchedule:
		// The parser guarantees a single string-literal argument.
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a snippet name", ErrBadArgument, c.name)
		}
		return IncludeSchedule{Name: name}, nil
	default:
		panic(fmt.Sprintf("expression: unhandled constructor %s", c.name))
	}
}

// builtins is the fixed whitelist of pure helper functions available to
// every expression.
var builtins = map[string]func(env *Env, args []any) (any, error){
	"state": func(env *Env, args []any) (any, error) {
		id, err := oneString("state", args)
		if err != nil {
			return nil, err
		}
		return env.state(id), nil
	},
	"is_on": func(env *Env, args []any) (any, error) {
		id, err := oneString("is_on", args)
		if err != nil {
			return nil, err
		}
		return strings.EqualFold(FormatValue(env.state(id)), "on"), nil
	},
	"is_off": func(env *Env, args []any) (any, error) {
		id, err := oneString("is_off", args)
		if err != nil {
			return nil, err
		}
		return strings.EqualFold(FormatValue(env.state(id)), "off"), nil
	},
	"hour": func(env *Env, args []any) (any, error) {
		if err := noArgs("hour", args); err != nil {
			return nil, err
		}
		return float64(env.now().Hour()), nil
	},
	"minute": func(env *Env, args []any) (any, error) {
		if err := noArgs("minute", args); err != nil {
			return nil, err
		}
		return float64(env.now().Minute()), nil
	},
	"weekday": func(env *Env, args []any) (any, error) {
		if err := noArgs("weekday", args); err != nil {
			return nil, err
		}
		return float64(isoWeekday(env.now())), nil
	},
	"day": func(env *Env, args []any) (any, error) {
		if err := noArgs("day", args); err != nil {
			return nil, err
		}
		return float64(env.now().Day()), nil
	},
	"month": func(env *Env, args []any) (any, error) {
		if err := noArgs("month", args); err != nil {
			return nil, err
		}
		return float64(int(env.now().Month())), nil
	},
	"year": func(env *Env, args []any) (any, error) {
		if err := noArgs("year", args); err != nil {
			return nil, err
		}
		return float64(env.now().Year()), nil
	},
	"time_between": func(env *Env, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: time_between takes 2 arguments, got %d", ErrArgCount, len(args))
		}
		start, ok1 := args[0].(string)
		end, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: time_between wants \"HH:MM\" strings", ErrBadArgument)
		}
		s, err := clockSeconds(start)
		if err != nil {
			return nil, err
		}
		e, err := clockSeconds(end)
		if err != nil {
			return nil, err
		}
		now := env.now()
		t := now.Hour()*3600 + now.Minute()*60 + now.Second()
		if s <= e {
			return t >= s && t < e, nil
		}
		return t >= s || t < e, nil
	},
	"min": func(_ *Env, args []any) (any, error) {
		return foldNumbers("min", args, func(a, b float64) float64 { return math.Min(a, b) })
	},
	"max": func(_ *Env, args []any) (any, error) {
		return foldNumbers("max", args, func(a, b float64) float64 { return math.Max(a, b) })
	},
	"abs": func(_ *Env, args []any) (any, error) {
		n, err := oneNumber("abs", args)
		if err != nil {
			return nil, err
		}
		return math.Abs(n), nil
	},
	"round": func(_ *Env, args []any) (any, error) {
		n, err := oneNumber("round", args)
		if err != nil {
			return nil, err
		}
		return math.Round(n), nil
	},
	"int": func(_ *Env, args []any) (any, error) {
		n, err := oneNumber("int", args)
		if err != nil {
			return nil, err
		}
		return math.Trunc(n), nil
	},
	"float": func(_ *Env, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: float takes 1 argument, got %d", ErrArgCount, len(args))
		}
		if n, ok := toNumber(args[0]); ok {
			return n, nil
		}
		if s, ok := args[0].(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: float(%q)", ErrBadArgument, s)
			}
			return n, nil
		}
		return nil, fmt.Errorf("%w: float on %s", ErrBadArgument, TypeName(args[0]))
	},
}

func oneString(name string, args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s takes 1 argument, got %d", ErrArgCount, name, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s wants a string, got %s", ErrBadArgument, name, TypeName(args[0]))
	}
	return s, nil
}

func oneNumber(name string, args []any) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s takes 1 argument, got %d", ErrArgCount, name, len(args))
	}
	n, ok := toNumber(args[0])
	if !ok {
		return 0, fmt.Errorf("%w: %s wants a number, got %s", ErrBadArgument, name, TypeName(args[0]))
	}
	return n, nil
}

func noArgs(name string, args []any) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: %s takes no arguments, got %d", ErrArgCount, name, len(args))
	}
	return nil
}

func foldNumbers(name string, args []any, combine func(a, b float64) float64) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: %s takes at least 1 argument", ErrArgCount, name)
	}
	acc, ok := toNumber(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s wants numbers, got %s", ErrBadArgument, name, TypeName(args[0]))
	}
	for _, arg := range args[1:] {
		n, ok := toNumber(arg)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants numbers, got %s", ErrBadArgument, name, TypeName(arg))
		}
		acc = combine(acc, n)
	}
	return acc, nil
}

// isoWeekday numbers days 1 (Monday) through 7 (Sunday).
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// clockSeconds parses "HH:MM" or "HH:MM:SS" into seconds since
// midnight.
func clockSeconds(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: malformed time %q", ErrBadArgument, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: malformed time %q", ErrBadArgument, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: malformed time %q", ErrBadArgument, s)
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%w: malformed time %q", ErrBadArgument, s)
		}
	}
	return h*3600 + m*60 + sec, nil
}
