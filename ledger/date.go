package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Canonical calendar date (no time-of-day, no timezone)
// =============================================================================

// Date is the single date representation the core operates on.
// Storage layers normalize whatever they persist (RFC3339 strings,
// unix timestamps, Firestore-style seconds) into Date at the boundary;
// the core never branches on representation.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	// Route through time.Date so out-of-range days normalize
	// the same way the standard library does.
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateOf truncates a time.Time to its calendar date in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{Year: u.Year(), Month: u.Month(), Day: u.Day()}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string { return d.Time().Format("2006-01-02") }

func (d Date) IsZero() bool { return d == Date{} }

// Comparison is by (year, month, day) only; callers that hold a
// time.Time must go through DateOf first so time-of-day can never
// influence status derivation.
func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool  { return d.Time().After(o.Time()) }
func (d Date) Equal(o Date) bool  { return d == o }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

// DaysUntil returns the whole calendar days from d to o (negative if o
// is in the past relative to d).
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// =============================================================================
// PERIOD - Calendar year-month identifying one installment
// =============================================================================

// Period is a calendar year-month. Its string form YYYY-MM sorts
// chronologically, which the stores rely on for ordering.
type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(d Date) Period { return Period{Year: d.Year, Month: d.Month} }

// ParsePeriod parses YYYY-MM.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

func (p Period) After(o Period) bool {
	return p.Year > o.Year || (p.Year == o.Year && p.Month > o.Month)
}

// DueDate returns the period's due date for a nominal due day,
// clamped to the month's last valid day (day 31 in February becomes
// the 28th, or the 29th in a leap year).
func (p Period) DueDate(dueDay int) Date {
	last := lastDayOfMonth(p.Year, p.Month)
	if dueDay > last {
		dueDay = last
	}
	return NewDate(p.Year, p.Month, dueDay)
}

// PeriodsBetween expands the inclusive month range covering both
// endpoint dates, in chronological order. Day-of-month is ignored:
// a lease running Jan 15 to Mar 2 yields Jan, Feb, Mar.
func PeriodsBetween(start, end Date) []Period {
	var periods []Period
	p := PeriodOf(start)
	last := PeriodOf(end)
	for !p.After(last) {
		periods = append(periods, p)
		p = p.Next()
	}
	return periods
}

// =============================================================================
// CLOCK - Injected time source
// =============================================================================

// Clock supplies "now" to the engine and generator so tests and the
// export can pin derivation to a deterministic day.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
