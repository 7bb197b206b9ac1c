package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// =============================================================================
// CYCLE - Inclusive date range earnings and payments are evaluated over
// =============================================================================

// Cycle is an inclusive [Start, End] range of calendar dates.
// Both bounds are UTC midnights.
type Cycle struct {
	Start time.Time
	End   time.Time
}

func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock part of t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidCycle, s)
	}
	return t, nil
}

// NewCycle validates start <= end.
func NewCycle(start, end time.Time) (Cycle, error) {
	c := Cycle{Start: DateOf(start), End: DateOf(end)}
	if c.End.Before(c.Start) {
		return Cycle{}, fmt.Errorf("%w: %s is before %s", ErrInvalidCycle, c.End.Format(DateLayout), c.Start.Format(DateLayout))
	}
	return c, nil
}

// CycleFor is the withdrawal cycle of a payment date: from the first of
// its month through the date itself.
func CycleFor(paymentDate time.Time) Cycle {
	d := DateOf(paymentDate)
	return Cycle{Start: NewDate(d.Year(), d.Month(), 1), End: d}
}

// CurrentCycle is the default reporting cycle, first-of-month to today.
func CurrentCycle(now time.Time) Cycle {
	return CycleFor(now)
}

// ParseCycle reads optional start/end query values. A missing bound falls
// back to CurrentCycle(now).
func ParseCycle(start, end string, now time.Time) (Cycle, error) {
	c := CurrentCycle(now)
	var err error
	if start != "" {
		if c.Start, err = ParseDate(start); err != nil {
			return Cycle{}, err
		}
	}
	if end != "" {
		if c.End, err = ParseDate(end); err != nil {
			return Cycle{}, err
		}
	}
	return NewCycle(c.Start, c.End)
}

func (c Cycle) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(c.Start) && !d.After(c.End)
}

func (c Cycle) String() string {
	return "[" + c.Start.Format(DateLayout) + ", " + c.End.Format(DateLayout) + "]"
}

// =============================================================================
// CLOCK - Time of day on a timesheet
// =============================================================================

// Clock is seconds since midnight.
type Clock int

// ParseClock accepts HH:MM and HH:MM:SS.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTimes, s)
}

// String renders HH:MM, adding seconds only when there are any.
func (c Clock) String() string {
	h, m, sec := int(c)/3600, int(c)/60%60, int(c)%60
	if sec != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ComputeHours returns the shift length in hours, rounded to 2dp.
// The shift must end strictly after it starts.
func ComputeHours(start, end Clock) (decimal.Decimal, error) {
	if end <= start {
		return decimal.Zero, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidTimes, end, start)
	}
	seconds := decimal.NewFromInt(int64(end - start))
	return seconds.Div(decimal.NewFromInt(3600)).Round(2), nil
}
