package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hearth-home/hearth-core/internal/room"
)

// MQTT message types for communication between Hearth Core and external
// clients (dashboards, automations, the Home Assistant bridge).

// Wire format errors for set_value requests.
var (
	// ErrBothValueAndExpression is returned when a set_value request
	// carries both a literal value and an expression.
	ErrBothValueAndExpression = errors.New("request has both value and expression")

	// ErrNoValueOrExpression is returned when a set_value request
	// carries neither a literal value nor an expression.
	ErrNoValueOrExpression = errors.New("request has neither value nor expression")

	// ErrDuplicateAlias is returned when both the short and the long
	// form of the same field are present.
	ErrDuplicateAlias = errors.New("request repeats a field via its alias")

	// ErrNegativeDelay is returned when reschedule_delay is below zero.
	ErrNegativeDelay = errors.New("reschedule_delay must not be negative")
)

// setValueDelayUnit is the unit of the wire-format reschedule_delay.
const setValueDelayUnit = time.Minute

// setValueMessage is sent by external clients to override a room's value.
// Topic: hearth/room/{room}/set_value
// QoS: 1, Retained: No
//
// Exactly one of value and expression must be present. The short keys
// "v" and "x" are accepted as aliases.
type setValueMessage struct {
	// V is the short alias for Value.
	V *json.RawMessage `json:"v,omitempty"`

	// Value is the literal value to set.
	Value *json.RawMessage `json:"value,omitempty"`

	// X is the short alias for Expression.
	X *json.RawMessage `json:"x,omitempty"`

	// Expression is evaluated in the room's expression environment.
	Expression *json.RawMessage `json:"expression,omitempty"`

	// ForceResend sends the value even when actors already report it.
	ForceResend bool `json:"force_resend,omitempty"`

	// RescheduleDelay overrides the room's configured delay, in
	// minutes. Zero disables rescheduling for this override.
	RescheduleDelay *float64 `json:"reschedule_delay,omitempty"`
}

// rescheduleMessage asks the engine to re-evaluate schedules.
// Topic: hearth/reschedule
// QoS: 1, Retained: No
//
// An empty payload or empty room reschedules every room.
type rescheduleMessage struct {
	// Room names a single room to reschedule.
	Room string `json:"room,omitempty"`

	// CancelRunningTimer also clears a pending reschedule timer, ending
	// any manual override immediately.
	CancelRunningTimer bool `json:"cancel_running_timer,omitempty"`
}

// RoomValueMessage announces a room's current value.
// Topic: hearth/room/{room}/value
// QoS: 1, Retained: Yes
type RoomValueMessage struct {
	// Room is the room name.
	Room string `json:"room"`

	// Value is the room's current value in serialized form.
	Value any `json:"value"`

	// Scheduled is true when the value came from schedule evaluation,
	// false for manual overrides.
	Scheduled bool `json:"scheduled"`

	// Timestamp is when the value was announced (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// parseSetValue decodes a set_value payload into an override request.
// Requests arriving over MQTT are untrusted, so rooms reject their
// expressions unless explicitly configured to allow them.
func parseSetValue(payload []byte) (room.Override, error) {
	var msg setValueMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return room.Override{}, fmt.Errorf("decode set_value: %w", err)
	}

	value, err := coalesceAlias(msg.V, msg.Value)
	if err != nil {
		return room.Override{}, fmt.Errorf("value: %w", err)
	}
	expr, err := coalesceAlias(msg.X, msg.Expression)
	if err != nil {
		return room.Override{}, fmt.Errorf("expression: %w", err)
	}

	switch {
	case value != nil && expr != nil:
		return room.Override{}, ErrBothValueAndExpression
	case value == nil && expr == nil:
		return room.Override{}, ErrNoValueOrExpression
	}

	req := room.Override{
		ForceResend: msg.ForceResend,
	}

	if value != nil {
		var v any
		if err := json.Unmarshal(*value, &v); err != nil {
			return room.Override{}, fmt.Errorf("decode value: %w", err)
		}
		req.Value = v
		req.HasValue = true
	}

	if expr != nil {
		var s string
		if err := json.Unmarshal(*expr, &s); err != nil {
			return room.Override{}, fmt.Errorf("expression must be a string: %w", err)
		}
		req.Expression = s
	}

	if msg.RescheduleDelay != nil {
		if *msg.RescheduleDelay < 0 {
			return room.Override{}, ErrNegativeDelay
		}
		delay := time.Duration(*msg.RescheduleDelay * float64(setValueDelayUnit))
		req.RescheduleDelay = &delay
	}

	return req, nil
}

// coalesceAlias resolves a field given via its short or long key.
// Returns an error when both are present.
func coalesceAlias(short, long *json.RawMessage) (*json.RawMessage, error) {
	if short != nil && long != nil {
		return nil, ErrDuplicateAlias
	}
	if short != nil {
		return short, nil
	}
	return long, nil
}
