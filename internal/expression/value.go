package expression

import (
	"fmt"
	"reflect"
	"strconv"
)

// OffValue is the sentinel meaning "turn the actor off". A final
// Result carrying it is handled like any other value by the evaluator;
// only actors give it meaning.
type OffValue struct{}

func (OffValue) String() string { return "OFF" }

// MarshalJSON renders the sentinel as the string "OFF", the same form
// actors use when persisting values.
func (OffValue) MarshalJSON() ([]byte, error) { return []byte(`"OFF"`), nil }

// Off is the singleton Off sentinel.
var Off = OffValue{}

// AddValues combines an accumulator delta with another value. Numbers
// add, strings concatenate. Any other combination is an error, which
// the evaluator surfaces as an EvalError.
func AddValues(delta, value any) (any, error) {
	if dn, ok := toNumber(delta); ok {
		if vn, ok := toNumber(value); ok {
			return dn + vn, nil
		}
		return nil, fmt.Errorf("%w: cannot add %s to %s", ErrBadOperand, TypeName(delta), TypeName(value))
	}
	if ds, ok := delta.(string); ok {
		if vs, ok := value.(string); ok {
			return ds + vs, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot add %s to %s", ErrBadOperand, TypeName(delta), TypeName(value))
}

// Equal compares two expression values. Numbers compare numerically
// regardless of their Go representation; everything else falls back to
// deep equality.
func Equal(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// FormatValue renders a value for topics, sensors and log lines.
// Numbers render without a trailing ".0", the Off sentinel renders as
// "OFF" and nil renders as "null".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case OffValue:
		return "OFF"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		if n, ok := toNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}

// TypeName names a value's kind for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case OffValue:
		return "OFF"
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		if _, ok := toNumber(v); ok {
			return "number"
		}
		return reflect.TypeOf(v).String()
	}
}

// toNumber normalises the numeric kinds a value may arrive as (literal
// float64, JSON-decoded float64, YAML-decoded int) to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
