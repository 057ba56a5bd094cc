package influxdb

import (
	"context"
	"fmt"
	"time"
)

// History query limits.
const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryPoint is one recorded room value change.
type HistoryPoint struct {
	// Time is when the value was set.
	Time time.Time `json:"time"`

	// Value is the recorded value: float64 for numeric history,
	// string otherwise.
	Value any `json:"value"`

	// Source is what set the value ("schedule" or "manual").
	Source string `json:"source"`

	// Rule is the winning rule's name, when the schedule set it.
	Rule string `json:"rule,omitempty"`
}

// QueryRoomHistory returns a room's recorded value changes between
// start and end, newest first. A limit of zero or less uses the
// default; requests above the maximum are clamped.
func (c *Client) QueryRoomHistory(ctx context.Context, room string, start, end time.Time, limit int) ([]HistoryPoint, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if room == "" {
		return nil, fmt.Errorf("%w: room is required", ErrQueryFailed)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrQueryFailed)
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	result, err := c.queryAPI.Query(ctx, buildHistoryFlux(c.cfg.Bucket, room, start, end, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	var points []HistoryPoint
	for result.Next() {
		record := result.Record()

		p := HistoryPoint{
			Time:  record.Time(),
			Value: record.Value(),
		}
		if source, ok := record.ValueByKey("source").(string); ok {
			p.Source = source
		}
		if rule, ok := record.ValueByKey("rule").(string); ok {
			p.Rule = rule
		}

		points = append(points, p)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return points, nil
}

// buildHistoryFlux renders the Flux query for a room history request.
// String parameters are quoted with %q so room names cannot break out
// of the filter expression.
func buildHistoryFlux(bucket, room string, start, end time.Time, limit int) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.room == %q)
  |> filter(fn: (r) => r._field == "value" or r._field == "value_str")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)`,
		bucket,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		measurementRoomValue,
		room,
		limit,
	)
}
