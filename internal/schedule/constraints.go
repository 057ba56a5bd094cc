package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Dimension bounds for the integer constraint ranges.
const (
	minWeekday = 1
	maxWeekday = 7
	minDay     = 1
	maxDay     = 31
	minMonth   = 1
	maxMonth   = 12
	minYear    = 1970
	maxYear    = 2099
)

const secondsPerDay = 24 * 3600

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTime, s)
		}
		nums[i] = n
	}
	t := TimeOfDay{Hour: nums[0], Minute: nums[1]}
	if len(nums) == 3 {
		t.Second = nums[2]
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	return t, nil
}

// Seconds returns the offset from midnight.
func (t TimeOfDay) Seconds() int { return t.Hour*3600 + t.Minute*60 + t.Second }

func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// IntSet is a resolved integer constraint dimension. Range notation
// with a start greater than its end wraps around the dimension bounds,
// so weekdays "6-2" resolves to {6 7 1 2}.
type IntSet struct {
	members map[int]struct{}
	display string
}

// ParseIntSet resolves a constraint dimension value. Accepted shapes:
// a single integer, a "a-b[,c,d-e]" string, or a list mixing integers
// and range strings. Bounds are inclusive per dimension.
func ParseIntSet(value any, minVal, maxVal int) (*IntSet, error) {
	set := &IntSet{members: make(map[int]struct{})}
	if err := set.add(value, minVal, maxVal); err != nil {
		return nil, err
	}
	set.display = fmt.Sprintf("%v", value)
	return set, nil
}

func (s *IntSet) add(value any, minVal, maxVal int) error {
	switch v := value.(type) {
	case int:
		return s.addInt(v, minVal, maxVal)
	case int64:
		return s.addInt(int(v), minVal, maxVal)
	case uint64:
		return s.addInt(int(v), minVal, maxVal)
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("%w: %v is not an integer", ErrBadRange, v)
		}
		return s.addInt(int(v), minVal, maxVal)
	case string:
		return s.addSpec(v, minVal, maxVal)
	case []any:
		for _, item := range v {
			if err := s.add(item, minVal, maxVal); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported value %v", ErrBadRange, value)
	}
}

// addSpec parses "a-b[,c-d,...]" range notation.
func (s *IntSet) addSpec(spec string, minVal, maxVal int) error {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrBadRange, spec)
		}
		bounds := strings.SplitN(part, "-", 2)
		lo, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return fmt.Errorf("%w: non-numeric bound in %q", ErrBadRange, spec)
		}
		hi := lo
		if len(bounds) == 2 {
			hi, err = strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return fmt.Errorf("%w: non-numeric bound in %q", ErrBadRange, spec)
			}
		}
		if err := s.addRange(lo, hi, minVal, maxVal); err != nil {
			return err
		}
	}
	return nil
}

// addRange adds lo..hi, wrapping around the dimension bounds when
// lo > hi.
func (s *IntSet) addRange(lo, hi, minVal, maxVal int) error {
	if lo < minVal || lo > maxVal || hi < minVal || hi > maxVal {
		return fmt.Errorf("%w: %d-%d outside %d..%d", ErrBadRange, lo, hi, minVal, maxVal)
	}
	if lo <= hi {
		for i := lo; i <= hi; i++ {
			s.members[i] = struct{}{}
		}
		return nil
	}
	for i := lo; i <= maxVal; i++ {
		s.members[i] = struct{}{}
	}
	for i := minVal; i <= hi; i++ {
		s.members[i] = struct{}{}
	}
	return nil
}

func (s *IntSet) addInt(v, minVal, maxVal int) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%w: %d outside %d..%d", ErrBadRange, v, minVal, maxVal)
	}
	s.members[v] = struct{}{}
	return nil
}

// Contains reports membership.
func (s *IntSet) Contains(v int) bool {
	_, ok := s.members[v]
	return ok
}

// Values returns the members in ascending order.
func (s *IntSet) Values() []int {
	out := make([]int, 0, len(s.members))
	for v := range s.members {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (s *IntSet) String() string { return s.display }

// Constraints gate a rule's applicability at a point in time. Every
// dimension is optional; a nil dimension always matches. All present
// dimensions combine with logical AND.
type Constraints struct {
	// Start and End bound the time of day as [Start, End). A Start
	// after End wraps past midnight. An explicit End of 00:00 means
	// end of day.
	Start *TimeOfDay
	End   *TimeOfDay

	// Weekdays are numbered 1 (Monday) through 7 (Sunday).
	Weekdays *IntSet

	Days   *IntSet
	Months *IntSet
	Years  *IntSet
}

// Match reports whether t satisfies every present dimension. Ranges
// were validated at construction, so Match cannot fail.
func (c *Constraints) Match(t time.Time) bool {
	if !c.matchTime(t) {
		return false
	}
	if c.Weekdays != nil && !c.Weekdays.Contains(isoWeekday(t)) {
		return false
	}
	if c.Days != nil && !c.Days.Contains(t.Day()) {
		return false
	}
	if c.Months != nil && !c.Months.Contains(int(t.Month())) {
		return false
	}
	if c.Years != nil && !c.Years.Contains(t.Year()) {
		return false
	}
	return true
}

func (c *Constraints) matchTime(t time.Time) bool {
	if c.Start == nil && c.End == nil {
		return true
	}
	start := 0
	if c.Start != nil {
		start = c.Start.Seconds()
	}
	end := secondsPerDay
	if c.End != nil && c.End.Seconds() != 0 {
		end = c.End.Seconds()
	}
	now := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if start < end {
		return now >= start && now < end
	}
	if start == end {
		return false
	}
	return now >= start || now < end
}

// IsAlways reports whether the constraints match any timestamp.
func (c *Constraints) IsAlways() bool {
	return c.Start == nil && c.End == nil && c.Weekdays == nil &&
		c.Days == nil && c.Months == nil && c.Years == nil
}

func (c *Constraints) String() string {
	var parts []string
	if c.Start != nil || c.End != nil {
		start, end := "00:00", "24:00"
		if c.Start != nil {
			start = c.Start.String()
		}
		if c.End != nil {
			end = c.End.String()
		}
		parts = append(parts, start+"-"+end)
	}
	if c.Weekdays != nil {
		parts = append(parts, "weekdays "+c.Weekdays.String())
	}
	if c.Days != nil {
		parts = append(parts, "days "+c.Days.String())
	}
	if c.Months != nil {
		parts = append(parts, "months "+c.Months.String())
	}
	if c.Years != nil {
		parts = append(parts, "years "+c.Years.String())
	}
	if len(parts) == 0 {
		return "always"
	}
	return strings.Join(parts, ", ")
}

// isoWeekday numbers days 1 (Monday) through 7 (Sunday).
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}
