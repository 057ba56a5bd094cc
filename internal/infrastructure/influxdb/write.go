package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names used by Hearth.
const (
	// measurementRoomValue records one point per room value change.
	measurementRoomValue = "room_value"
)

// WriteRoomValue records a room value change.
//
// One point is written per change: the schedule applying a new result,
// a manual override, or a replicated actor change. Numeric values land
// in the "value" field, everything else in "value_str", so mixed-type
// rooms stay queryable.
//
// The write is non-blocking; data is batched and sent asynchronously.
// This method satisfies the engine's history writer interface.
//
// Parameters:
//   - room: Room name (tag)
//   - value: The value that was set
//   - source: What set it ("schedule" or "manual", tag)
//   - rule: Name of the winning rule, if any (tag, omitted when empty)
//   - at: When the change happened
func (c *Client) WriteRoomValue(room string, value any, source, rule string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"room":   room,
		"source": source,
	}
	if rule != "" {
		tags["rule"] = rule
	}

	c.WritePointWithTime(measurementRoomValue, tags, valueFields(value), at)
}

// valueFields maps a room value onto InfluxDB fields. Numbers (and
// booleans, as 0/1) become the float "value" field; anything else is
// stored as its string form in "value_str".
func valueFields(value any) map[string]any {
	switch v := value.(type) {
	case float64:
		return map[string]any{"value": v}
	case float32:
		return map[string]any{"value": float64(v)}
	case int:
		return map[string]any{"value": float64(v)}
	case int64:
		return map[string]any{"value": float64(v)}
	case bool:
		f := 0.0
		if v {
			f = 1.0
		}
		return map[string]any{"value": f}
	default:
		return map[string]any{"value_str": fmt.Sprint(v)}
	}
}

// WritePointWithTime writes one point with an explicit timestamp.
// Tags should stay low-cardinality; room names and sources qualify,
// free-form values do not.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
