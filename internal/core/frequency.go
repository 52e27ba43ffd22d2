package core

import "fmt"

// DaysPerYear is the day-count basis for all rate conversions.
const DaysPerYear = 365

// Frequency is how often loan payments fall due. It is either a fixed
// interval in days (DayInterval) or a count of payments per calendar month
// (PerMonthCount). Use NewFrequency to build one from a reference row.
type Frequency interface {
	// PeriodsPerYear returns the number of payment periods in a year.
	PeriodsPerYear() int
	// NextDueDate returns the due date of the payment that follows the
	// given number of already generated payments.
	NextDueDate(start Date, elapsed int) (Date, error)
	String() string

	frequency()
}

// DayInterval schedules a payment every Days calendar days.
type DayInterval struct {
	Days int
}

// PerMonthCount schedules Count payments per calendar month. Only 1 and 2 are supported.
type PerMonthCount struct {
	Count int
}

// NewFrequency builds a Frequency from the two mutually exclusive selectors
// of a reference row. Exactly one of days or perMonth must be positive.
func NewFrequency(days, perMonth int) (Frequency, error) {
	switch {
	case days > 0 && perMonth > 0:
		return nil, &ValidationError{Field: "frequency", Reason: "days and per-month count are mutually exclusive"}
	case days > 0:
		if days > DaysPerYear {
			return nil, &ValidationError{Field: "frequency", Reason: fmt.Sprintf("interval of %d days exceeds one year", days)}
		}
		return DayInterval{Days: days}, nil
	case perMonth > 0:
		if perMonth > 2 {
			return nil, fmt.Errorf("%w: %d payments per month", ErrUnsupportedFrequency, perMonth)
		}
		return PerMonthCount{Count: perMonth}, nil
	default:
		return nil, &ValidationError{Field: "frequency", Reason: "no interval defined"}
	}
}

func (f DayInterval) PeriodsPerYear() int {
	return DaysPerYear / f.Days
}

func (f DayInterval) NextDueDate(start Date, elapsed int) (Date, error) {
	return start.AddDays((elapsed + 1) * f.Days), nil
}

func (f DayInterval) String() string {
	return fmt.Sprintf("every %d days", f.Days)
}

func (DayInterval) frequency() {}

func (f PerMonthCount) PeriodsPerYear() int {
	return 12 * f.Count
}

// NextDueDate for two payments a month alternates between start+14 days
// within a month and the monthly anniversary of start.
func (f PerMonthCount) NextDueDate(start Date, elapsed int) (Date, error) {
	switch f.Count {
	case 1:
		return start.AddMonths(elapsed + 1), nil
	case 2:
		due := start.AddMonths((elapsed + 1) / 2)
		if elapsed%2 == 0 {
			due = due.AddDays(14)
		}
		return due, nil
	default:
		return Date{}, fmt.Errorf("%w: %d payments per month", ErrUnsupportedFrequency, f.Count)
	}
}

func (f PerMonthCount) String() string {
	return fmt.Sprintf("%d per month", f.Count)
}

func (PerMonthCount) frequency() {}

// ReferenceFrequency is a row of the frequency reference table.
// The raw selectors are kept so unsupported rows can still be listed.
type ReferenceFrequency struct {
	ID       int64
	Name     string
	Days     int
	PerMonth int
}

// Resolve converts the row into a Frequency.
func (r ReferenceFrequency) Resolve() (Frequency, error) {
	return NewFrequency(r.Days, r.PerMonth)
}
