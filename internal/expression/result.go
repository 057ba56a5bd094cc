package expression

import "fmt"

// Result is the typed outcome of evaluating one rule's value
// specification. The variant set is closed: Value, Skip, Add, Break,
// Abort, IncludeSchedule and Inherit. The schedule evaluator dispatches
// exhaustively over these variants.
type Result interface {
	fmt.Stringer

	// isResult is unexported to close the variant set.
	isResult()
}

// Value is the terminal variant: a final value that ends the whole
// schedule evaluation successfully. The carried value may be the Off
// sentinel, which behaves like any other final value.
type Value struct {
	Val any
}

func (Value) isResult() {}

func (v Value) String() string { return fmt.Sprintf("Result(%v)", v.Val) }

// IsOff reports whether the carried value is the Off sentinel.
func (v Value) IsOff() bool {
	_, ok := v.Val.(OffValue)
	return ok
}

// Skip discards the current rule; evaluation proceeds with the next
// sibling.
type Skip struct{}

func (Skip) isResult() {}

func (Skip) String() string { return "Skip()" }

// Add queues a delta on the evaluation accumulator; evaluation
// proceeds with the next sibling. Deltas are applied, in order, to the
// first terminal Value found.
type Add struct {
	Delta any
}

func (Add) isResult() {}

func (a Add) String() string { return fmt.Sprintf("Add(%v)", a.Delta) }

// Break aborts the innermost Levels enclosing sub-schedules and
// resumes after the outermost aborted one. Levels is at least 1.
type Break struct {
	Levels int
}

func (Break) isResult() {}

func (b Break) String() string {
	if b.Levels == 1 {
		return "Break()"
	}
	return fmt.Sprintf("Break(%d)", b.Levels)
}

// Abort ends the entire schedule evaluation with a no-change outcome.
type Abort struct{}

func (Abort) isResult() {}

func (Abort) String() string { return "Abort()" }

// IncludeSchedule splices the named snippet's rules in place of the
// current rule. The snippet name is resolved against the snippet
// registry by the evaluator; references are checked at schedule load
// time, so resolution cannot fail during evaluation.
type IncludeSchedule struct {
	Name string
}

func (IncludeSchedule) isResult() {}

func (i IncludeSchedule) String() string { return fmt.Sprintf("IncludeSchedule(%q)", i.Name) }

// Inherit is the "no value" marker: the rule declines to provide a
// value and the ancestor chain is consulted instead. Distinct from
// Skip, which discards the rule entirely.
type Inherit struct{}

func (Inherit) isResult() {}

func (Inherit) String() string { return "Inherit()" }
