package domain

import (
	"fmt"
	"time"
)

// MonthLayout is the canonical month-key format (YYYY-MM). Keys in this
// format compare chronologically as plain strings.
const MonthLayout = "2006-01"

// MonthKeyOf returns the month key for a point in time.
func MonthKeyOf(t time.Time) string {
	return t.Format(MonthLayout)
}

// ParseMonth parses a month key into the first instant of that month (UTC).
func ParseMonth(key string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t, nil
}

// MonthStart returns the first day of the keyed month, or the zero time for
// an unparseable key.
func MonthStart(key string) time.Time {
	t, err := ParseMonth(key)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MonthEnd returns the last instant of the keyed month's final day.
func MonthEnd(key string) time.Time {
	t, err := ParseMonth(key)
	if err != nil {
		return time.Time{}
	}
	return t.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// AddMonths returns the month key n calendar months after key.
func AddMonths(key string, n int) string {
	t, err := ParseMonth(key)
	if err != nil {
		return key
	}
	return t.AddDate(0, n, 0).Format(MonthLayout)
}

// MonthsBetween returns the inclusive count of calendar months from first to
// last. Returns 0 when either key is unparseable or last precedes first.
func MonthsBetween(first, last string) int {
	a, err := ParseMonth(first)
	if err != nil {
		return 0
	}
	b, err := ParseMonth(last)
	if err != nil {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()) + 1
	if months < 0 {
		return 0
	}
	return months
}

// MonthRange returns every month key from from to to inclusive, in order.
// The caller guarantees from <= to; an inverted range yields nil.
func MonthRange(from, to string) []string {
	n := MonthsBetween(from, to)
	if n == 0 {
		return nil
	}
	months := make([]string, 0, n)
	for i := 0; i < n; i++ {
		months = append(months, AddMonths(from, i))
	}
	return months
}
