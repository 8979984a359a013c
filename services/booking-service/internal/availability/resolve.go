package availability

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/clock"
)

var (
	// ErrAmbiguousOverrides is returned when a date carries more than one
	// is_available=true override. There is no precedence rule between them.
	ErrAmbiguousOverrides = errors.New("availability: more than one opening override for date")
	ErrInvalidSchedule    = errors.New("availability: invalid schedule entry")
)

// Window is an open interval [Start, End) in minutes since midnight.
type Window struct {
	Start int
	End   int
}

func (w Window) String() string {
	return clock.ToClock(w.Start) + "-" + clock.ToClock(w.End)
}

// WorkingHours is one recurring weekly row. DayOfWeek follows time.Weekday (0 = Sunday).
type WorkingHours struct {
	ResourceID string
	DayOfWeek  int
	StartTime  string
	EndTime    string
	Active     bool
}

// Override is a date-specific exception. Available=false removes [StartTime, EndTime)
// from the day, or the whole day when unbounded. Available=true with bounds replaces
// the weekly window for that date.
type Override struct {
	ID         string
	ResourceID string
	Date       string
	StartTime  string
	EndTime    string
	Available  bool
}

func (o Override) bounded() bool {
	return o.StartTime != "" && o.EndTime != ""
}

// Resolve computes the effective open windows for one date. A nil result means the
// resource is closed.
func Resolve(weekly []WorkingHours, overrides []Override, weekday time.Weekday) ([]Window, error) {
	base, err := weeklyWindows(weekly, weekday)
	if err != nil {
		return nil, err
	}

	var opening *Override
	var blocks []Window
	closedAllDay := false
	for i := range overrides {
		o := overrides[i]
		if o.Available {
			if opening != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguousOverrides, o.Date)
			}
			opening = &overrides[i]
			continue
		}
		if !o.bounded() {
			closedAllDay = true
			continue
		}
		w, err := parseWindow(o.StartTime, o.EndTime)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", o.ID, err)
		}
		blocks = append(blocks, w)
	}
	if closedAllDay {
		return nil, nil
	}

	if opening != nil && opening.bounded() {
		w, err := parseWindow(opening.StartTime, opening.EndTime)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", opening.ID, err)
		}
		base = []Window{w}
	}

	var out []Window
	for _, w := range base {
		out = append(out, subtractBlocks(w, blocks)...)
	}
	return out, nil
}

func weeklyWindows(weekly []WorkingHours, weekday time.Weekday) ([]Window, error) {
	var out []Window
	for _, wh := range weekly {
		if wh.DayOfWeek != int(weekday) || !wh.Active {
			continue
		}
		w, err := parseWindow(wh.StartTime, wh.EndTime)
		if err != nil {
			return nil, fmt.Errorf("working hours day %d: %w", wh.DayOfWeek, err)
		}
		out = append(out, w)
	}
	return mergeWindows(out), nil
}

func parseWindow(start, end string) (Window, error) {
	s, err := clock.ToMinutes(start)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	e, err := clock.ToMinutes(end)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if e <= s {
		return Window{}, fmt.Errorf("%w: end %s not after start %s", ErrInvalidSchedule, end, start)
	}
	return Window{Start: s, End: e}, nil
}

func sortWindows(in []Window) {
	slices.SortFunc(in, func(a, b Window) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})
}

// mergeWindows sorts and coalesces overlapping or touching windows.
func mergeWindows(in []Window) []Window {
	if len(in) == 0 {
		return nil
	}
	sorted := slices.Clone(in)
	sortWindows(sorted)
	merged := make([]Window, 0, len(sorted))
	for _, cur := range sorted {
		if len(merged) == 0 || cur.Start > merged[len(merged)-1].End {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.End > last.End {
			last.End = cur.End
		}
	}
	return merged
}

func subtractBlocks(base Window, blocks []Window) []Window {
	if base.End <= base.Start {
		return nil
	}
	var clipped []Window
	for _, b := range blocks {
		if b.End <= base.Start || b.Start >= base.End {
			continue
		}
		clipped = append(clipped, Window{Start: max(b.Start, base.Start), End: min(b.End, base.End)})
	}
	if len(clipped) == 0 {
		return []Window{base}
	}

	var out []Window
	cursor := base.Start
	for _, m := range mergeWindows(clipped) {
		if m.Start > cursor {
			out = append(out, Window{Start: cursor, End: m.Start})
		}
		if m.End > cursor {
			cursor = m.End
		}
	}
	if base.End > cursor {
		out = append(out, Window{Start: cursor, End: base.End})
	}
	return out
}

// Contains reports whether [start, start+duration) fits in one of the windows.
func Contains(windows []Window, start, duration int) bool {
	for _, w := range windows {
		if clock.WithinWindow(start, duration, w.Start, w.End) {
			return true
		}
	}
	return false
}
