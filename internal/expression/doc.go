// Package expression implements the sandboxed value-expression language
// used by schedule rules.
//
// An expression is compiled once at schedule load time and evaluated
// against an Env whenever the owning rule is considered. Evaluation is
// pure: the only way an expression can observe the outside world is
// through the capabilities carried by the Env (entity state lookup,
// clock accessors and explicitly registered functions). There is no
// ambient file, network or process access.
//
// Architecture:
//
//	source ──▶ lexer (token.go) ──▶ parser (parser.go) ──▶ *Program
//	                                                          │
//	           Env (state lookup, clock, registered funcs)    │
//	                              │                           ▼
//	                              └────────▶ interpreter (interp.go)
//	                                                          │
//	                                                          ▼
//	                                             Result (result.go)
//
// # Grammar
//
// Literals: integers and floats, single- or double-quoted strings,
// true, false, null and the OFF sentinel. Operators: unary - and !,
// arithmetic + - * / %, comparisons == != < <= > >=, short-circuit
// && and ||, and the ternary cond ? a : b. Function calls are limited
// to the builtin registry plus any functions registered on the Env.
//
// # Result protocol
//
// Every evaluation yields exactly one Result variant. Calls to the
// builtin constructors (Result, Add, Skip, Break, Abort,
// IncludeSchedule) pass through unchanged; a null value becomes the
// Inherit marker used for ancestor value lookup; any other value is
// wrapped into a final Result.
//
// # Thread Safety
//
// A *Program is immutable after Compile and may be evaluated
// concurrently. Env values are read-only during evaluation; the state
// lookup function must itself be safe for concurrent use.
package expression
