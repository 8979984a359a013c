// Package clock does wall-clock arithmetic on "HH:MM" strings and minutes since
// midnight. Everything is integer minutes; intervals are half-open.
package clock

import (
	"errors"
	"fmt"
)

const (
	MinutesPerDay = 24 * 60
	Layout        = "15:04"
)

var ErrInvalidClock = errors.New("clock: invalid time")

// ToMinutes parses "HH:MM". "24:00" is accepted as the end-of-day boundary.
func ToMinutes(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, ok1 := twoDigits(s[0], s[1])
	m, ok2 := twoDigits(s[3], s[4])
	if !ok1 || !ok2 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// ToClock formats minutes since midnight. Values outside [0, 1440] are clamped.
func ToClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes > MinutesPerDay {
		minutes = MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutes shifts a clock string. Results past midnight are an error: a booking
// never spans two calendar days.
func AddMinutes(s string, delta int) (string, error) {
	m, err := ToMinutes(s)
	if err != nil {
		return "", err
	}
	out := m + delta
	if out < 0 || out > MinutesPerDay {
		return "", fmt.Errorf("%w: %s%+d leaves the day", ErrInvalidClock, s, delta)
	}
	return ToClock(out), nil
}

func ServiceEnd(start, duration int) int {
	return start + duration
}

func BufferedEnd(start, duration, buffer int) int {
	return start + duration + buffer
}

// Overlaps reports whether [s1, s1+d1+buffer) and [s2, s2+d2+buffer) intersect.
// Two bookings starting at the same minute always conflict, even at zero length.
func Overlaps(s1, d1, s2, d2, buffer int) bool {
	return RangesOverlap(s1, BufferedEnd(s1, d1, buffer), s2, BufferedEnd(s2, d2, buffer))
}

// RangesOverlap is Overlaps for precomputed ends, so each side can carry its own buffer.
func RangesOverlap(s1, e1, s2, e2 int) bool {
	if s1 == s2 {
		return true
	}
	return s1 < e2 && e1 > s2
}

// WithinWindow checks the raw service interval; buffers never count against a window.
func WithinWindow(start, duration, windowStart, windowEnd int) bool {
	return start >= windowStart && ServiceEnd(start, duration) <= windowEnd
}
