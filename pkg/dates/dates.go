// Package dates implements calendar-date arithmetic and display formatting
// over the YYYY-MM-DD strings exchanged with the internment store.
//
// All interval math happens on UTC midnights, so a caller's time zone only
// matters when deciding which calendar day "today" is (see Clock).
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// Layout is the only accepted textual shape for calendar dates.
	Layout = "2006-01-02"

	// NotAvailable is returned by the display formatters for missing or
	// malformed input. Callers compare against it, so the literal is fixed.
	NotAvailable = "N/A"

	displayLayout         = "02/01/06"
	displayDateTimeLayout = "02/01/06 15:04"
)

var (
	// ErrInvalidDate reports a missing value or one that does not match Layout.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvertedInterval reports an interval whose end precedes its start.
	ErrInvertedInterval = errors.New("end date precedes start date")
)

var calendarDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Parse parses a YYYY-MM-DD calendar date and returns it as UTC midnight.
// Surrounding whitespace is not tolerated.
func Parse(s string) (time.Time, error) {
	if !calendarDatePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseDateTime parses the date-time shapes the store produces: RFC 3339,
// and the zone-less "T" or space separated forms (read as UTC). A bare
// calendar date is accepted as midnight.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return Parse(s)
}

// IsValid reports whether s is a well-formed calendar date.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// CalendarDay returns the calendar day of t, as observed in t's own
// location, expressed as UTC midnight.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from start to end.
// Both must be valid calendar dates and end must not precede start.
func DaysBetween(start, end string) (int, error) {
	s, err := Parse(start)
	if err != nil {
		return 0, err
	}
	e, err := Parse(end)
	if err != nil {
		return 0, err
	}
	if e.Before(s) {
		return 0, fmt.Errorf("%w: %s > %s", ErrInvertedInterval, start, end)
	}
	return ElapsedCalendarDays(s, e), nil
}

// DaysSince returns how many days have passed between date and today.
// A date in the future counts as zero days waited.
func DaysSince(date string, today time.Time) (int, error) {
	d, err := Parse(date)
	if err != nil {
		return 0, err
	}
	n := ElapsedCalendarDays(d, today)
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// ElapsedCalendarDays returns the floor of (today - date) in whole days,
// comparing the UTC midnights of both calendar days. The result is negative
// when date is after today.
func ElapsedCalendarDays(date, today time.Time) int {
	// UTC midnights are always a whole number of days apart.
	return int(CalendarDay(today).Sub(CalendarDay(date)).Hours() / 24)
}

// FormatDisplay renders a calendar date as DD/MM/YY, or NotAvailable.
func FormatDisplay(s string) string {
	return FormatDisplayOr(s, NotAvailable)
}

// FormatDisplayOr renders a calendar date as DD/MM/YY, or fallback when the
// value is missing or malformed.
func FormatDisplayOr(s, fallback string) string {
	t, err := Parse(s)
	if err != nil {
		return fallback
	}
	return t.Format(displayLayout)
}

// FormatDateTimeDisplay renders a date-time as DD/MM/YY HH:MM, or NotAvailable.
func FormatDateTimeDisplay(s string) string {
	t, err := ParseDateTime(s)
	if err != nil {
		return NotAvailable
	}
	return t.Format(displayDateTimeLayout)
}

// FormatTimeDisplay renders an instant as DD/MM/YY HH:MM in its own location.
func FormatTimeDisplay(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Format(displayDateTimeLayout)
}

// ParseDisplay converts a DD/MM/YY display string back to YYYY-MM-DD.
func ParseDisplay(s string) (string, error) {
	t, err := time.ParseInLocation(displayLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t.Format(Layout), nil
}

// Format renders t's calendar day as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}
