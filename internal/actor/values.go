package actor

import (
	"encoding/json"
	"fmt"

	"github.com/hearth-home/hearth-core/internal/expression"
)

// SerializeValue encodes a room value for persistence and transport.
// The Off sentinel travels as the JSON string "OFF".
func SerializeValue(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	return string(data), nil
}

// DeserializeValue decodes a persisted room value. Numbers come back
// as float64 and the string "OFF" becomes the Off sentinel, matching
// the expression value domain.
func DeserializeValue(data string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	if s, ok := v.(string); ok && s == "OFF" {
		return expression.Off, nil
	}
	return v, nil
}
