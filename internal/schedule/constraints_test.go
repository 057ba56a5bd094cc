package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TimeOfDay
		wantErr error
	}{
		{
			name:  "plain time",
			input: "07:30",
			want:  TimeOfDay{Hour: 7, Minute: 30},
		},
		{
			name:  "with seconds",
			input: "22:15:45",
			want:  TimeOfDay{Hour: 22, Minute: 15, Second: 45},
		},
		{
			name:  "midnight",
			input: "00:00",
			want:  TimeOfDay{},
		},
		{
			name:  "surrounding whitespace",
			input: " 06:00 ",
			want:  TimeOfDay{Hour: 6},
		},
		{
			name:    "hour out of range",
			input:   "24:00",
			wantErr: ErrBadTime,
		},
		{
			name:    "minute out of range",
			input:   "12:60",
			wantErr: ErrBadTime,
		},
		{
			name:    "missing minutes",
			input:   "12",
			wantErr: ErrBadTime,
		},
		{
			name:    "non-numeric",
			input:   "noon",
			wantErr: ErrBadTime,
		},
		{
			name:    "too many components",
			input:   "01:02:03:04",
			wantErr: ErrBadTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got: %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseIntSet(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		min     int
		max     int
		want    []int
		wantErr error
	}{
		{
			name:  "single int",
			value: 3,
			min:   minWeekday, max: maxWeekday,
			want: []int{3},
		},
		{
			name:  "whole float",
			value: 5.0,
			min:   minWeekday, max: maxWeekday,
			want: []int{5},
		},
		{
			name:  "range string",
			value: "1-5",
			min:   minWeekday, max: maxWeekday,
			want: []int{1, 2, 3, 4, 5},
		},
		{
			name:  "wrapping weekday range",
			value: "6-2",
			min:   minWeekday, max: maxWeekday,
			want: []int{1, 2, 6, 7},
		},
		{
			name:  "comma separated segments",
			value: "1, 3-4, 7",
			min:   minWeekday, max: maxWeekday,
			want: []int{1, 3, 4, 7},
		},
		{
			name:  "mixed list",
			value: []any{1, "3-4", 7},
			min:   minWeekday, max: maxWeekday,
			want: []int{1, 3, 4, 7},
		},
		{
			name:  "wrapping month range",
			value: "11-2",
			min:   minMonth, max: maxMonth,
			want: []int{1, 2, 11, 12},
		},
		{
			name:    "fractional float",
			value:   2.5,
			min:     minWeekday, max: maxWeekday,
			wantErr: ErrBadRange,
		},
		{
			name:    "below bounds",
			value:   0,
			min:     minWeekday, max: maxWeekday,
			wantErr: ErrBadRange,
		},
		{
			name:    "above bounds",
			value:   "1-8",
			min:     minWeekday, max: maxWeekday,
			wantErr: ErrBadRange,
		},
		{
			name:    "day out of bounds",
			value:   32,
			min:     minDay, max: maxDay,
			wantErr: ErrBadRange,
		},
		{
			name:    "year below bounds",
			value:   1969,
			min:     minYear, max: maxYear,
			wantErr: ErrBadRange,
		},
		{
			name:    "empty segment",
			value:   "1,,3",
			min:     minWeekday, max: maxWeekday,
			wantErr: ErrBadRange,
		},
		{
			name:    "non-numeric bound",
			value:   "mon-fri",
			min:     minWeekday, max: maxWeekday,
			wantErr: ErrBadRange,
		},
		{
			name:    "unsupported type",
			value:   true,
			min:     minWeekday, max: maxWeekday,
			wantErr: ErrBadRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseIntSet(tt.value, tt.min, tt.max)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got: %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			got := set.Values()
			if len(got) != len(tt.want) {
				t.Fatalf("expected members %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("expected members %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func mustClock(t *testing.T, s string) *TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return &tod
}

func mustSet(t *testing.T, value any, minVal, maxVal int) *IntSet {
	t.Helper()
	set, err := ParseIntSet(value, minVal, maxVal)
	if err != nil {
		t.Fatalf("parsing %v: %v", value, err)
	}
	return set
}

func TestConstraintsMatch(t *testing.T) {
	// 2026-03-02 is a Monday.
	monday := func(hour, minute int) time.Time {
		return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
	}
	saturday := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		c    Constraints
		at   time.Time
		want bool
	}{
		{
			name: "no constraints",
			c:    Constraints{},
			at:   monday(3, 14),
			want: true,
		},
		{
			name: "inside window",
			c:    Constraints{Start: mustClock(t, "07:00"), End: mustClock(t, "09:00")},
			at:   monday(8, 0),
			want: true,
		},
		{
			name: "start is inclusive",
			c:    Constraints{Start: mustClock(t, "07:00"), End: mustClock(t, "09:00")},
			at:   monday(7, 0),
			want: true,
		},
		{
			name: "end is exclusive",
			c:    Constraints{Start: mustClock(t, "07:00"), End: mustClock(t, "09:00")},
			at:   monday(9, 0),
			want: false,
		},
		{
			name: "start only",
			c:    Constraints{Start: mustClock(t, "22:00")},
			at:   monday(23, 30),
			want: true,
		},
		{
			name: "end only",
			c:    Constraints{End: mustClock(t, "06:00")},
			at:   monday(5, 59),
			want: true,
		},
		{
			name: "window wraps past midnight, before midnight",
			c:    Constraints{Start: mustClock(t, "22:00"), End: mustClock(t, "06:00")},
			at:   monday(23, 0),
			want: true,
		},
		{
			name: "window wraps past midnight, after midnight",
			c:    Constraints{Start: mustClock(t, "22:00"), End: mustClock(t, "06:00")},
			at:   monday(5, 0),
			want: true,
		},
		{
			name: "window wraps past midnight, outside",
			c:    Constraints{Start: mustClock(t, "22:00"), End: mustClock(t, "06:00")},
			at:   monday(12, 0),
			want: false,
		},
		{
			name: "explicit midnight end means end of day",
			c:    Constraints{Start: mustClock(t, "22:00"), End: mustClock(t, "00:00")},
			at:   monday(23, 59),
			want: true,
		},
		{
			name: "empty window matches nothing",
			c:    Constraints{Start: mustClock(t, "08:00"), End: mustClock(t, "08:00")},
			at:   monday(8, 0),
			want: false,
		},
		{
			name: "weekday match",
			c:    Constraints{Weekdays: mustSet(t, "1-5", minWeekday, maxWeekday)},
			at:   monday(12, 0),
			want: true,
		},
		{
			name: "weekday mismatch",
			c:    Constraints{Weekdays: mustSet(t, "1-5", minWeekday, maxWeekday)},
			at:   saturday,
			want: false,
		},
		{
			name: "wrapping weekday range covers weekend",
			c:    Constraints{Weekdays: mustSet(t, "6-2", minWeekday, maxWeekday)},
			at:   saturday,
			want: true,
		},
		{
			name: "wrapping weekday range covers monday",
			c:    Constraints{Weekdays: mustSet(t, "6-2", minWeekday, maxWeekday)},
			at:   monday(12, 0),
			want: true,
		},
		{
			name: "wrapping weekday range excludes wednesday",
			c:    Constraints{Weekdays: mustSet(t, "6-2", minWeekday, maxWeekday)},
			at:   time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "dimensions combine with and",
			c: Constraints{
				Start:    mustClock(t, "07:00"),
				End:      mustClock(t, "09:00"),
				Weekdays: mustSet(t, "1-5", minWeekday, maxWeekday),
				Months:   mustSet(t, 3, minMonth, maxMonth),
			},
			at:   monday(8, 0),
			want: true,
		},
		{
			name: "one failing dimension rejects",
			c: Constraints{
				Start:    mustClock(t, "07:00"),
				End:      mustClock(t, "09:00"),
				Weekdays: mustSet(t, "1-5", minWeekday, maxWeekday),
				Months:   mustSet(t, 4, minMonth, maxMonth),
			},
			at:   monday(8, 0),
			want: false,
		},
		{
			name: "year match",
			c:    Constraints{Years: mustSet(t, "2026-2028", minYear, maxYear)},
			at:   monday(8, 0),
			want: true,
		},
		{
			name: "day match",
			c:    Constraints{Days: mustSet(t, []any{1, 2, 15}, minDay, maxDay)},
			at:   monday(8, 0),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Match(tt.at); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestConstraintsIsAlways(t *testing.T) {
	if !(&Constraints{}).IsAlways() {
		t.Error("empty constraints should be always")
	}
	c := Constraints{Start: mustClock(t, "07:00")}
	if c.IsAlways() {
		t.Error("constraints with a start time should not be always")
	}
}

func TestSchedulingTimes(t *testing.T) {
	s := &Schedule{
		Name: "living",
		Rules: []*Rule{
			{Constraints: Constraints{Start: mustClock(t, "07:00"), End: mustClock(t, "09:00")}},
			{
				Constraints: Constraints{Start: mustClock(t, "21:30")},
				Rules: []*Rule{
					{Constraints: Constraints{End: mustClock(t, "23:00")}},
				},
			},
			// Duplicate boundary, counted once.
			{Constraints: Constraints{Start: mustClock(t, "07:00")}},
		},
	}

	got := s.SchedulingTimes(nil)
	want := []TimeOfDay{
		{Hour: 7}, {Hour: 9}, {Hour: 21, Minute: 30}, {Hour: 23},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSchedulingTimesFollowsIncludes(t *testing.T) {
	frag := &Schedule{
		Name: "night",
		Rules: []*Rule{
			{Constraints: Constraints{Start: mustClock(t, "23:15")}},
		},
	}
	reg := NewSnippetRegistry(map[string]*Schedule{"night": frag})

	s := &Schedule{
		Name: "bedroom",
		Rules: []*Rule{
			{Expr: mustProgram(t, "IncludeSchedule('night')")},
			{Constraints: Constraints{Start: mustClock(t, "06:45")}},
		},
	}

	got := s.SchedulingTimes(reg)
	want := []TimeOfDay{{Hour: 6, Minute: 45}, {Hour: 23, Minute: 15}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
