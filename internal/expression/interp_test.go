package expression

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// fixedNow is a Friday, 21 August 2026, 07:30:00 local.
var fixedNow = time.Date(2026, 8, 21, 7, 30, 0, 0, time.UTC)

func testEnv() *Env {
	states := map[string]any{
		"switch.heating":       "ON",
		"binary_sensor.window": "off",
		"sensor.outside_temp":  "4.5",
	}
	return &Env{
		RoomName: "living",
		Now:      fixedNow,
		State: func(entityID string) any {
			return states[entityID]
		},
	}
}

func mustEvaluate(t *testing.T, src string, env *Env) Result {
	t.Helper()
	prog, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) unexpected error: %v", src, err)
	}
	res, err := Evaluate(prog, env)
	if err != nil {
		t.Fatalf("Evaluate(%q) unexpected error: %v", src, err)
	}
	return res
}

func TestEvaluateResults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Result
	}{
		{name: "number auto-wraps", src: "21.5", want: Value{Val: 21.5}},
		{name: "string auto-wraps", src: "'eco'", want: Value{Val: "eco"}},
		{name: "null is the inherit marker", src: "null", want: Inherit{}},
		{name: "off sentinel wraps", src: "OFF", want: Value{Val: Off}},
		{name: "explicit result", src: "Result(20)", want: Value{Val: 20.0}},
		{name: "explicit off result", src: "Result(OFF)", want: Value{Val: Off}},
		{name: "add delta", src: "Add(-3)", want: Add{Delta: -3.0}},
		{name: "skip", src: "Skip()", want: Skip{}},
		{name: "break default level", src: "Break()", want: Break{Levels: 1}},
		{name: "break explicit levels", src: "Break(2)", want: Break{Levels: 2}},
		{name: "abort", src: "Abort()", want: Abort{}},
		{name: "include schedule", src: "IncludeSchedule('eco')", want: IncludeSchedule{Name: "eco"}},
		{name: "arithmetic", src: "2 * 10 + 1.5", want: Value{Val: 21.5}},
		{name: "modulo", src: "7 % 4", want: Value{Val: 3.0}},
		{name: "unary minus", src: "-(2 + 3)", want: Value{Val: -5.0}},
		{name: "string concat", src: "'a' + 'b'", want: Value{Val: "ab"}},
		{name: "comparison", src: "3 >= 3", want: Value{Val: true}},
		{name: "string comparison", src: "'abc' < 'abd'", want: Value{Val: true}},
		{name: "negation", src: "!false", want: Value{Val: true}},
		{name: "equality across numeric kinds", src: "21 == 21.0", want: Value{Val: true}},
		{name: "null equality", src: "state('sensor.missing') == null", want: Value{Val: true}},
		{name: "ternary takes then branch", src: "true ? 1 : 2", want: Value{Val: 1.0}},
		{name: "ternary takes else branch", src: "false ? 1 : 2", want: Value{Val: 2.0}},
		{name: "and short-circuits", src: "false && (1 / 0 > 0)", want: Value{Val: false}},
		{name: "or short-circuits", src: "true || (1 / 0 > 0)", want: Value{Val: true}},
		{name: "room name binding", src: "room_name", want: Value{Val: "living"}},
		{name: "state lookup", src: "state('binary_sensor.window')", want: Value{Val: "off"}},
		{name: "is_on is case-insensitive", src: "is_on('switch.heating')", want: Value{Val: true}},
		{name: "is_off", src: "is_off('binary_sensor.window')", want: Value{Val: true}},
		{name: "is_on of unknown entity", src: "is_on('sensor.missing')", want: Value{Val: false}},
		{name: "state string to number", src: "float(state('sensor.outside_temp')) < 5", want: Value{Val: true}},
		{name: "hour accessor", src: "hour()", want: Value{Val: 7.0}},
		{name: "minute accessor", src: "minute()", want: Value{Val: 30.0}},
		{name: "weekday accessor", src: "weekday()", want: Value{Val: 5.0}},
		{name: "day month year", src: "day() + month() * 100 + year() * 10000", want: Value{Val: 20260821.0}},
		{name: "time_between inside", src: "time_between('07:00', '09:00')", want: Value{Val: true}},
		{name: "time_between outside", src: "time_between('09:00', '22:00')", want: Value{Val: false}},
		{name: "time_between wraps midnight", src: "time_between('22:00', '08:00')", want: Value{Val: true}},
		{name: "min max abs round", src: "min(1, 2) + max(3, 4) + abs(-2) + round(0.6)", want: Value{Val: 8.0}},
		{name: "int truncates", src: "int(21.9)", want: Value{Val: 21.0}},
		{name: "conditional setback", src: "is_off('switch.heating') ? Skip() : Add(-3)", want: Add{Delta: -3.0}},
	}

	env := testEnv()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustEvaluate(t, tt.src, env)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "unknown name", src: "no_such_name", wantErr: ErrUnknownName},
		{name: "unknown function", src: "no_such_func()", wantErr: ErrUnknownFunction},
		{name: "division by zero", src: "1 / 0", wantErr: ErrBadOperand},
		{name: "modulo by zero", src: "1 % 0", wantErr: ErrBadOperand},
		{name: "adding string to number", src: "1 + 'x'", wantErr: ErrBadOperand},
		{name: "non-bool condition", src: "1 ? 2 : 3", wantErr: ErrBadOperand},
		{name: "non-bool logical operand", src: "1 && true", wantErr: ErrBadOperand},
		{name: "negating a string", src: "-'x'", wantErr: ErrBadOperand},
		{name: "result in arithmetic", src: "Result(1) + 1", wantErr: ErrBadOperand},
		{name: "break level zero", src: "Break(0)", wantErr: ErrBadArgument},
		{name: "break fractional level", src: "Break(1.5)", wantErr: ErrBadArgument},
		{name: "nested result", src: "Result(Skip())", wantErr: ErrBadArgument},
		{name: "state arg count", src: "state()", wantErr: ErrArgCount},
		{name: "state arg type", src: "state(1)", wantErr: ErrBadArgument},
		{name: "malformed time_between", src: "time_between('7am', '9am')", wantErr: ErrBadArgument},
	}

	env := testEnv()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(tt.src)
			if err != nil {
				t.Fatalf("Compile(%q) unexpected error: %v", tt.src, err)
			}
			_, err = Evaluate(prog, env)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Evaluate(%q) error = %v, want %v", tt.src, err, tt.wantErr)
			}
			var evalErr *EvalError
			if !errors.As(err, &evalErr) {
				t.Fatalf("Evaluate(%q) error type = %T, want *EvalError", tt.src, err)
			}
			if evalErr.Source != tt.src {
				t.Errorf("EvalError.Source = %q, want %q", evalErr.Source, tt.src)
			}
		})
	}
}

func TestEvaluateRegisteredFuncs(t *testing.T) {
	env := testEnv()
	env.Funcs = map[string]Func{
		"setback": func(args []any) (any, error) {
			n, err := oneNumber("setback", args)
			if err != nil {
				return nil, err
			}
			return n - 5, nil
		},
	}

	got := mustEvaluate(t, "setback(21)", env)
	if !reflect.DeepEqual(got, Value{Val: 16.0}) {
		t.Errorf("setback(21) = %v, want Result(16)", got)
	}

	// Registered functions must not shadow builtins.
	env.Funcs["hour"] = func([]any) (any, error) { return 99.0, nil }
	got = mustEvaluate(t, "hour()", env)
	if !reflect.DeepEqual(got, Value{Val: 7.0}) {
		t.Errorf("hour() = %v, want builtin result 7", got)
	}
}

func TestEvaluateNilEnv(t *testing.T) {
	// A nil Env still evaluates pure arithmetic and treats every
	// entity as unknown.
	prog, err := Compile("state('x') == null ? 1 : 2")
	if err != nil {
		t.Fatalf("Compile unexpected error: %v", err)
	}
	got, err := Evaluate(prog, nil)
	if err != nil {
		t.Fatalf("Evaluate unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, Value{Val: 1.0}) {
		t.Errorf("Evaluate = %v, want Result(1)", got)
	}
}

func TestResultStrings(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Value{Val: 21.5}, "Result(21.5)"},
		{Skip{}, "Skip()"},
		{Add{Delta: -3.0}, "Add(-3)"},
		{Break{Levels: 1}, "Break()"},
		{Break{Levels: 2}, "Break(2)"},
		{Abort{}, "Abort()"},
		{IncludeSchedule{Name: "eco"}, `IncludeSchedule("eco")`},
		{Inherit{}, "Inherit()"},
	}
	for _, tt := range tests {
		if got := tt.res.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
