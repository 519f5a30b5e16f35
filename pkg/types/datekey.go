package types

import (
	"errors"
	"strings"
	"time"
)

// DateKey is a calendar day in YYYYMMDD form. Keys of equal length compare
// lexicographically in calendar order.
type DateKey string

// dateKeyLayout is the time layout for DateKey.
const dateKeyLayout = "20060102"

// ErrInvalidDateKey is returned when a string is not a valid calendar day.
var ErrInvalidDateKey = errors.New("invalid date key")

// The earliest and latest days a DateKey can name.
const (
	MinDateKey DateKey = "00010101"
	MaxDateKey DateKey = "99991231"
)

// DateKeyOf returns the calendar day of t in loc. A nil loc means time.Local.
func DateKeyOf(t time.Time, loc *time.Location) DateKey {
	if loc == nil {
		loc = time.Local
	}
	return DateKey(t.In(loc).Format(dateKeyLayout))
}

// ParseDateKey accepts YYYYMMDD or YYYY-MM-DD and returns the canonical key.
func ParseDateKey(s string) (DateKey, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("2006-01-02") {
		s = strings.ReplaceAll(s, "-", "")
	}
	if len(s) != len(dateKeyLayout) {
		return "", ErrInvalidDateKey
	}
	t, err := time.Parse(dateKeyLayout, s)
	if err != nil {
		return "", ErrInvalidDateKey
	}
	// Reject values time.Parse normalizes, such as 20260230.
	if t.Format(dateKeyLayout) != s {
		return "", ErrInvalidDateKey
	}
	return DateKey(s), nil
}

// Valid reports whether k is a well-formed calendar day.
func (k DateKey) Valid() bool {
	_, err := ParseDateKey(string(k))
	return err == nil && len(k) == len(dateKeyLayout)
}

// Time returns midnight of k in loc. A nil loc means time.Local.
func (k DateKey) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateKeyLayout, string(k), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDateKey
	}
	return t, nil
}

// AddDays returns the key n calendar days after k (before, for negative n),
// clamped to [MinDateKey, MaxDateKey]. An invalid k is returned unchanged.
// Day arithmetic is done in UTC so DST transitions never skip or repeat a day.
func (k DateKey) AddDays(n int) DateKey {
	t, err := time.Parse(dateKeyLayout, string(k))
	if err != nil {
		return k
	}
	t = t.AddDate(0, 0, n)
	switch {
	case t.Before(minDateTime):
		return MinDateKey
	case t.After(maxDateTime):
		return MaxDateKey
	}
	return DateKey(t.Format(dateKeyLayout))
}

var (
	minDateTime = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxDateTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// Before reports whether k is an earlier day than other.
func (k DateKey) Before(other DateKey) bool { return k < other }

// After reports whether k is a later day than other.
func (k DateKey) After(other DateKey) bool { return k > other }

// DaysBetween returns the number of calendar days from k to other.
func (k DateKey) DaysBetween(other DateKey) int {
	a, errA := time.Parse(dateKeyLayout, string(k))
	b, errB := time.Parse(dateKeyLayout, string(other))
	if errA != nil || errB != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

// String returns the key as YYYY-MM-DD for display.
func (k DateKey) String() string {
	if len(k) != len(dateKeyLayout) {
		return string(k)
	}
	return string(k[:4]) + "-" + string(k[4:6]) + "-" + string(k[6:])
}

// DateKeysBetween lists every key in [from, to]. It returns nil when either
// key is invalid or from is after to.
func DateKeysBetween(from, to DateKey) []DateKey {
	if !from.Valid() || !to.Valid() || from.After(to) {
		return nil
	}
	keys := make([]DateKey, 0, from.DaysBetween(to)+1)
	for k := from; ; k = k.AddDays(1) {
		keys = append(keys, k)
		if k == to {
			return keys
		}
	}
}
