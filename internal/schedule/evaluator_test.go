package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// 2026-03-02 07:30 UTC is a Monday morning.
var evalTime = time.Date(2026, time.March, 2, 7, 30, 0, 0, time.UTC)

func mustProgram(t *testing.T, src string) *expression.Program {
	t.Helper()
	prog, err := expression.Compile(src)
	if err != nil {
		t.Fatalf("compiling %q: %v", src, err)
	}
	return prog
}

func valueRule(v any) *Rule {
	return &Rule{Value: v, HasValue: true}
}

func exprRule(t *testing.T, src string) *Rule {
	t.Helper()
	return &Rule{Expr: mustProgram(t, src)}
}

func windowRule(t *testing.T, start, end string, v any) *Rule {
	t.Helper()
	return &Rule{
		Constraints: Constraints{Start: mustClock(t, start), End: mustClock(t, end)},
		Value:       v,
		HasValue:    true,
	}
}

func evaluate(t *testing.T, s *Schedule, reg *SnippetRegistry, ctx Context) Outcome {
	t.Helper()
	if ctx.Now.IsZero() {
		ctx.Now = evalTime
	}
	if ctx.RoomName == "" {
		ctx.RoomName = "living"
	}
	out, err := NewEvaluator(reg).Evaluate(s, ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return out
}

func wantValue(t *testing.T, out Outcome, want any) {
	t.Helper()
	if !out.HasValue {
		t.Fatalf("expected value %v, got NoChange", want)
	}
	if !expression.Equal(out.Value, want) {
		t.Fatalf("expected value %v, got %v", want, out.Value)
	}
}

func TestEvaluateFirstMatch(t *testing.T) {
	morning := windowRule(t, "07:00", "09:00", 21.0)
	fallback := valueRule(17.0)
	s := &Schedule{Name: "living", Rules: []*Rule{morning, fallback}}

	out := evaluate(t, s, nil, Context{})
	wantValue(t, out, 21.0)
	if out.Rule != morning {
		t.Errorf("expected outcome from the morning rule, got %v", out.Rule)
	}

	out = evaluate(t, s, nil, Context{Now: evalTime.Add(4 * time.Hour)})
	wantValue(t, out, 17.0)
	if out.Rule != fallback {
		t.Errorf("expected outcome from the fallback rule, got %v", out.Rule)
	}
}

func TestEvaluateShortCircuit(t *testing.T) {
	calls := 0
	funcs := map[string]expression.Func{
		"tripwire": func(args []any) (any, error) {
			calls++
			return 9.0, nil
		},
	}
	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "Skip()"),
		valueRule(5.0),
		exprRule(t, "tripwire()"),
	}}

	out := evaluate(t, s, nil, Context{Funcs: funcs})
	wantValue(t, out, 5.0)
	if calls != 0 {
		t.Errorf("rules after the first terminal match must not evaluate, tripwire ran %d times", calls)
	}
}

func TestEvaluateNoMatch(t *testing.T) {
	s := &Schedule{Name: "living"}
	if out := evaluate(t, s, nil, Context{}); out.HasValue {
		t.Errorf("empty schedule should yield NoChange, got %v", out)
	}

	s = &Schedule{Name: "living", Rules: []*Rule{
		windowRule(t, "12:00", "13:00", 21.0),
	}}
	if out := evaluate(t, s, nil, Context{}); out.HasValue {
		t.Errorf("no matching rule should yield NoChange, got %v", out)
	}
}

func TestEvaluateValueKinds(t *testing.T) {
	tests := []struct {
		name string
		rule *Rule
		want any
	}{
		{name: "number", rule: valueRule(19.5), want: 19.5},
		{name: "string", rule: valueRule("eco"), want: "eco"},
		{name: "off sentinel", rule: valueRule(expression.Off), want: expression.Off},
		{name: "off from expression", rule: exprRule(t, "OFF"), want: expression.Off},
		{name: "bool", rule: valueRule(true), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Schedule{Name: "living", Rules: []*Rule{tt.rule}}
			wantValue(t, evaluate(t, s, nil, Context{}), tt.want)
		})
	}
}

func TestEvaluateSkip(t *testing.T) {
	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "Skip()"),
		exprRule(t, "hour() < 9 ? Skip() : Result(18)"),
		valueRule(20.0),
	}}
	wantValue(t, evaluate(t, s, nil, Context{}), 20.0)
}

func TestEvaluateAccumulation(t *testing.T) {
	t.Run("deltas fold into the final result", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Add(-3)"),
			exprRule(t, "Add(2)"),
			valueRule(20.0),
		}}
		out := evaluate(t, s, nil, Context{})
		wantValue(t, out, 19.0)
	})

	t.Run("skip between deltas keeps the accumulator", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Add(-3)"),
			exprRule(t, "Skip()"),
			valueRule(20.0),
		}}
		wantValue(t, evaluate(t, s, nil, Context{}), 17.0)
	})

	t.Run("string deltas concatenate", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Add('eco ')"),
			valueRule("day"),
		}}
		wantValue(t, evaluate(t, s, nil, Context{}), "eco day")
	})

	t.Run("deltas without a terminal result are discarded", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Add(2)"),
		}}
		if out := evaluate(t, s, nil, Context{}); out.HasValue {
			t.Errorf("expected NoChange, got %v", out)
		}
	})

	t.Run("delta onto the off sentinel is an error", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Add(2)"),
			valueRule(expression.Off),
		}}
		out, err := NewEvaluator(nil).Evaluate(s, Context{RoomName: "living", Now: evalTime})
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		var evalErr *expression.EvalError
		if !errors.As(err, &evalErr) {
			t.Fatalf("expected *expression.EvalError, got %T: %v", err, err)
		}
		if out.HasValue {
			t.Errorf("failed evaluation must yield NoChange, got %v", out)
		}
	})
}

func TestEvaluateInheritance(t *testing.T) {
	t.Run("children inherit the parent value", func(t *testing.T) {
		child := &Rule{Constraints: Constraints{Start: mustClock(t, "07:00"), End: mustClock(t, "09:00")}}
		parent := &Rule{Value: 20.0, HasValue: true, Rules: []*Rule{child}}
		s := &Schedule{Name: "living", Rules: []*Rule{parent}}

		out := evaluate(t, s, nil, Context{})
		wantValue(t, out, 20.0)
		if out.Rule != child {
			t.Errorf("terminal rule should be the leaf, got %v", out.Rule)
		}
	})

	t.Run("innermost specification wins", func(t *testing.T) {
		child := &Rule{Value: 18.0, HasValue: true}
		parent := &Rule{Value: 20.0, HasValue: true, Rules: []*Rule{child}}
		s := &Schedule{Name: "living", Rules: []*Rule{parent}}
		wantValue(t, evaluate(t, s, nil, Context{}), 18.0)
	})

	t.Run("null defers to the next ancestor", func(t *testing.T) {
		leaf := &Rule{}
		mid := &Rule{Expr: mustProgram(t, "null"), Rules: []*Rule{leaf}}
		top := &Rule{Value: 21.0, HasValue: true, Rules: []*Rule{mid}}
		s := &Schedule{Name: "living", Rules: []*Rule{top}}
		wantValue(t, evaluate(t, s, nil, Context{}), 21.0)
	})

	t.Run("conditional inherit", func(t *testing.T) {
		leaf := &Rule{Expr: mustProgram(t, "hour() < 6 ? 17 : null")}
		top := &Rule{Value: 21.0, HasValue: true, Rules: []*Rule{leaf}}
		s := &Schedule{Name: "living", Rules: []*Rule{top}}
		wantValue(t, evaluate(t, s, nil, Context{}), 21.0)
	})

	t.Run("path without any specification is skipped", func(t *testing.T) {
		parent := &Rule{Rules: []*Rule{{}}}
		s := &Schedule{Name: "living", Rules: []*Rule{parent, valueRule(5.0)}}
		wantValue(t, evaluate(t, s, nil, Context{}), 5.0)
	})
}

func TestEvaluateBreak(t *testing.T) {
	t.Run("default level exits the enclosing sub-schedule", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			{Rules: []*Rule{
				exprRule(t, "Break()"),
				valueRule(99.0),
			}},
			valueRule(5.0),
		}}
		wantValue(t, evaluate(t, s, nil, Context{}), 5.0)
	})

	t.Run("two levels resume at the grandparent", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			{Rules: []*Rule{
				{Rules: []*Rule{
					exprRule(t, "Break(2)"),
				}},
				valueRule(99.0),
			}},
			valueRule(5.0),
		}}
		wantValue(t, evaluate(t, s, nil, Context{}), 5.0)
	})

	t.Run("one level keeps the outer siblings", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			{Rules: []*Rule{
				{Rules: []*Rule{
					exprRule(t, "Break()"),
					valueRule(88.0),
				}},
				valueRule(99.0),
			}},
			valueRule(5.0),
		}}
		wantValue(t, evaluate(t, s, nil, Context{}), 99.0)
	})

	t.Run("levels beyond the depth end the schedule", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Break(5)"),
			valueRule(5.0),
		}}
		if out := evaluate(t, s, nil, Context{}); out.HasValue {
			t.Errorf("expected NoChange, got %v", out)
		}
	})

	t.Run("accumulator survives a break", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			{Rules: []*Rule{
				exprRule(t, "Add(-2)"),
				exprRule(t, "Break()"),
				valueRule(99.0),
			}},
			valueRule(20.0),
		}}
		wantValue(t, evaluate(t, s, nil, Context{}), 18.0)
	})
}

func TestEvaluateAbort(t *testing.T) {
	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "Abort()"),
		valueRule(20.0),
	}}
	out, err := NewEvaluator(nil).Evaluate(s, Context{RoomName: "living", Now: evalTime})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.HasValue {
		t.Errorf("abort must yield NoChange, got %v", out)
	}

	// Unlike Break, Abort inside a sub-schedule ends the whole walk.
	s = &Schedule{Name: "living", Rules: []*Rule{
		{Rules: []*Rule{
			exprRule(t, "Abort()"),
		}},
		valueRule(20.0),
	}}
	if out := evaluate(t, s, nil, Context{}); out.HasValue {
		t.Errorf("nested abort must yield NoChange, got %v", out)
	}
}

func TestEvaluateInclude(t *testing.T) {
	eco := &Schedule{Name: "eco", Rules: []*Rule{
		windowRule(t, "07:00", "09:00", 19.0),
		valueRule(16.0),
	}}
	reg := NewSnippetRegistry(map[string]*Schedule{"eco": eco})

	t.Run("snippet rules evaluate in place", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "IncludeSchedule('eco')"),
			valueRule(5.0),
		}}
		wantValue(t, evaluate(t, s, reg, Context{}), 19.0)

		// Snippet constraints are checked against the same instant.
		wantValue(t, evaluate(t, s, reg, Context{Now: evalTime.Add(6 * time.Hour)}), 16.0)
	})

	t.Run("include behaves like inlining", func(t *testing.T) {
		included := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "IncludeSchedule('eco')"),
			valueRule(5.0),
		}}
		inlined := &Schedule{Name: "living", Rules: []*Rule{
			windowRule(t, "07:00", "09:00", 19.0),
			valueRule(16.0),
			valueRule(5.0),
		}}
		a := evaluate(t, included, reg, Context{})
		b := evaluate(t, inlined, reg, Context{})
		if !expression.Equal(a.Value, b.Value) {
			t.Errorf("include produced %v, inline produced %v", a.Value, b.Value)
		}
	})

	t.Run("accumulator crosses the include boundary", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "Add(2)"),
			exprRule(t, "IncludeSchedule('eco')"),
		}}
		wantValue(t, evaluate(t, s, reg, Context{}), 21.0)
	})

	t.Run("break cannot escape the included fragment", func(t *testing.T) {
		frag := &Schedule{Name: "frag", Rules: []*Rule{
			exprRule(t, "Break(10)"),
			valueRule(50.0),
		}}
		reg := NewSnippetRegistry(map[string]*Schedule{"frag": frag})
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "IncludeSchedule('frag')"),
			valueRule(7.0),
		}}
		wantValue(t, evaluate(t, s, reg, Context{}), 7.0)
	})

	t.Run("chained includes resolve transitively", func(t *testing.T) {
		day := &Schedule{Name: "day", Rules: []*Rule{
			exprRule(t, "IncludeSchedule('eco')"),
		}}
		reg := NewSnippetRegistry(map[string]*Schedule{"eco": eco, "day": day})
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "IncludeSchedule('day')"),
		}}
		wantValue(t, evaluate(t, s, reg, Context{}), 19.0)
	})

	t.Run("unknown snippet is an error", func(t *testing.T) {
		s := &Schedule{Name: "living", Rules: []*Rule{
			exprRule(t, "IncludeSchedule('ghost')"),
		}}
		_, err := NewEvaluator(reg).Evaluate(s, Context{RoomName: "living", Now: evalTime})
		if !errors.Is(err, ErrUnknownSnippet) {
			t.Fatalf("expected ErrUnknownSnippet, got: %v", err)
		}
	})
}

func TestEvaluateExpressionErrorIsFatal(t *testing.T) {
	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "1 / 0"),
		valueRule(20.0),
	}}
	out, err := NewEvaluator(nil).Evaluate(s, Context{RoomName: "living", Now: evalTime})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var evalErr *expression.EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected *expression.EvalError, got %T: %v", err, err)
	}
	if evalErr.Source != "1 / 0" {
		t.Errorf("expected source %q, got %q", "1 / 0", evalErr.Source)
	}
	// A failed walk never falls through to later rules.
	if out.HasValue {
		t.Errorf("expected NoChange, got %v", out)
	}
}

func TestEvaluateExpressionCache(t *testing.T) {
	calls := 0
	funcs := map[string]expression.Func{
		"probe": func(args []any) (any, error) {
			calls++
			return expression.Skip{}, nil
		},
	}
	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "probe()"),
		exprRule(t, "probe()"),
		valueRule(20.0),
	}}
	out := evaluate(t, s, nil, Context{Funcs: funcs})
	wantValue(t, out, 20.0)
	if calls != 1 {
		t.Errorf("identical expressions should evaluate once per walk, got %d calls", calls)
	}
}

func TestEvaluateStateDriven(t *testing.T) {
	states := map[string]any{"binary_sensor.window": "on"}
	lookup := func(entityID string) any { return states[entityID] }

	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "is_on('binary_sensor.window') ? OFF : 21"),
	}}

	wantValue(t, evaluate(t, s, nil, Context{State: lookup}), expression.Off)

	states["binary_sensor.window"] = "off"
	wantValue(t, evaluate(t, s, nil, Context{State: lookup}), 21.0)
}

func TestEvaluateDeterminism(t *testing.T) {
	states := map[string]any{"sensor.outside_temp": "4.5"}
	ctx := Context{
		RoomName: "living",
		Now:      evalTime,
		State:    func(entityID string) any { return states[entityID] },
	}
	eco := &Schedule{Name: "eco", Rules: []*Rule{valueRule(16.0)}}
	reg := NewSnippetRegistry(map[string]*Schedule{"eco": eco})
	s := &Schedule{Name: "living", Rules: []*Rule{
		exprRule(t, "float(state('sensor.outside_temp')) < 0 ? Add(1) : Skip()"),
		windowRule(t, "07:00", "09:00", 21.0),
		exprRule(t, "IncludeSchedule('eco')"),
	}}

	eval := NewEvaluator(reg)
	first, err := eval.Evaluate(s, ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := eval.Evaluate(s, ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !expression.Equal(first.Value, second.Value) || first.Rule != second.Rule {
		t.Errorf("repeated evaluation diverged: %v vs %v", first, second)
	}
}

func TestEvaluatePrependAppend(t *testing.T) {
	s := &Schedule{
		Name:    "living",
		Prepend: []*Rule{windowRule(t, "07:00", "09:00", 30.0)},
		Rules:   []*Rule{windowRule(t, "07:00", "12:00", 20.0)},
		Append:  []*Rule{valueRule(10.0)},
	}

	// Prepend wins while its window matches.
	wantValue(t, evaluate(t, s, nil, Context{}), 30.0)

	// Main schedule next.
	wantValue(t, evaluate(t, s, nil, Context{Now: evalTime.Add(3 * time.Hour)}), 20.0)

	// Append is the fallback.
	wantValue(t, evaluate(t, s, nil, Context{Now: evalTime.Add(8 * time.Hour)}), 10.0)
}

func TestEvaluateSubScheduleConstraints(t *testing.T) {
	// The parent gates weekdays; its children refine the time of day.
	s := &Schedule{Name: "living", Rules: []*Rule{
		{
			Constraints: Constraints{Weekdays: mustSet(t, "1-5", minWeekday, maxWeekday)},
			Rules: []*Rule{
				windowRule(t, "07:00", "09:00", 21.0),
				valueRule(17.0),
			},
		},
		valueRule(15.0),
	}}

	// Monday 07:30.
	wantValue(t, evaluate(t, s, nil, Context{}), 21.0)

	// Monday midday.
	wantValue(t, evaluate(t, s, nil, Context{Now: evalTime.Add(5 * time.Hour)}), 17.0)

	// Saturday: the whole weekday block is skipped.
	saturday := time.Date(2026, time.March, 7, 7, 30, 0, 0, time.UTC)
	wantValue(t, evaluate(t, s, nil, Context{Now: saturday}), 15.0)
}
