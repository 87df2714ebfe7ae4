// Package timeutil provides calendar-window helpers for reporting periods.
// Stats and history queries slice the ledger into school days, weeks and
// months; the sweep job derives its retention cutoffs here too.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// SchoolTZ is the timezone school days are measured in. Tenants in this
// deployment share one timezone (UTC+5, no DST).
var SchoolTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// Now returns the current time in the school timezone.
func Now() time.Time {
	return time.Now().In(SchoolTZ)
}

// ToSchool converts a time to the school timezone.
func ToSchool(t time.Time) time.Time {
	return t.In(SchoolTZ)
}

// StartOfDay returns the start of the day (00:00:00) in the school timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToSchool(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, SchoolTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the school timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToSchool(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, SchoolTZ)
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in the school timezone.
func StartOfWeek(t time.Time) time.Time {
	local := ToSchool(t)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	daysToSubtract := weekday - 1 // Monday = 1
	return StartOfDay(local.AddDate(0, 0, -daysToSubtract))
}

// EndOfWeek returns the end of the week (Sunday 23:59:59) in the school timezone.
func EndOfWeek(t time.Time) time.Time {
	start := StartOfWeek(t)
	return EndOfDay(start.AddDate(0, 0, 6))
}

// StartOfMonth returns the start of the month in the school timezone.
func StartOfMonth(t time.Time) time.Time {
	local := ToSchool(t)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, SchoolTZ)
}

// EndOfMonth returns the end of the month in the school timezone.
func EndOfMonth(t time.Time) time.Time {
	start := StartOfMonth(t)
	return EndOfDay(start.AddDate(0, 1, -1))
}

// IsSameDay checks if two times are on the same school day.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToSchool(t1), ToSchool(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DaysBetween calculates the number of school days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	duration := a2.Sub(a1)
	days := int(duration.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Period identifies a reporting window for history and stats queries.
type Period string

const (
	// PeriodDay - the current school day.
	PeriodDay Period = "day"
	// PeriodWeek - the current Monday-Sunday week.
	PeriodWeek Period = "week"
	// PeriodMonth - the current calendar month.
	PeriodMonth Period = "month"
	// PeriodAll - no lower bound.
	PeriodAll Period = "all"
)

// IsValid checks that the period is known.
func (p Period) IsValid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return true
	default:
		return false
	}
}

// Bounds returns the [from, to] window of the period containing the instant.
// PeriodAll returns zero times, meaning unbounded.
func (p Period) Bounds(at time.Time) (time.Time, time.Time) {
	switch p {
	case PeriodDay:
		return StartOfDay(at), EndOfDay(at)
	case PeriodWeek:
		return StartOfWeek(at), EndOfWeek(at)
	case PeriodMonth:
		return StartOfMonth(at), EndOfMonth(at)
	default:
		return time.Time{}, time.Time{}
	}
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in the school timezone.
func FormatDateStr(t time.Time) string {
	return ToSchool(t).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in the school timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, SchoolTZ)
}
