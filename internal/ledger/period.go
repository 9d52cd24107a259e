package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// FinancialYear identifies the April 1 – March 31 accounting year by the
// calendar year it starts in: FinancialYear(2024) runs 2024-04-01..2025-03-31.
type FinancialYear int

// FinancialYearOf returns the financial year whose window contains t.
func FinancialYearOf(t time.Time) FinancialYear {
	if t.Month() < time.April {
		return FinancialYear(t.Year() - 1)
	}
	return FinancialYear(t.Year())
}

func (fy FinancialYear) Start() time.Time {
	return time.Date(int(fy), time.April, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day (March 31) of the year.
func (fy FinancialYear) End() time.Time {
	return time.Date(int(fy)+1, time.March, 31, 0, 0, 0, 0, time.UTC)
}

func (fy FinancialYear) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(fy.Start()) && !d.After(fy.End())
}

// Code renders the year as "2024-25".
func (fy FinancialYear) Code() string {
	return fmt.Sprintf("%04d-%02d", int(fy), (int(fy)+1)%100)
}

func (fy FinancialYear) String() string { return fy.Code() }

// ParseFinancialYear accepts "2024-25", "2024-2025" or "2024".
func ParseFinancialYear(s string) (FinancialYear, error) {
	s = strings.TrimSpace(s)
	head, tail, hasTail := strings.Cut(s, "-")
	start, err := strconv.Atoi(head)
	if err != nil || start < 1900 || start > 9999 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFinancialYear, s)
	}
	if hasTail {
		end, err := strconv.Atoi(tail)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFinancialYear, s)
		}
		if (len(tail) == 2 && end != (start+1)%100) || (len(tail) == 4 && end != start+1) || (len(tail) != 2 && len(tail) != 4) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFinancialYear, s)
		}
	}
	return FinancialYear(start), nil
}

func (fy FinancialYear) MarshalText() ([]byte, error) {
	return []byte(fy.Code()), nil
}

func (fy *FinancialYear) UnmarshalText(b []byte) error {
	parsed, err := ParseFinancialYear(string(b))
	if err != nil {
		return err
	}
	*fy = parsed
	return nil
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DaysBetween is the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	d := Day(a).Sub(Day(b)).Hours() / 24
	if d < 0 {
		d = -d
	}
	return int(d + 0.5)
}

// LockedYears is a set of closed financial years.
type LockedYears map[FinancialYear]bool

func (l LockedYears) IsLocked(fy FinancialYear) bool { return l[fy] }
