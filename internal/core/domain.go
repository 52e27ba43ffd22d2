package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Loan is an originated loan. Principal, rate and terms never change after creation.
	Loan struct {
		ID               int64
		Reference        uuid.UUID
		BorrowerID       int64
		BankConnectionID int64
		Principal        Money
		Rate             decimal.Decimal // annual, as a fraction (0.12 = 12%)
		RatingID         int64
		Amortization     ReferenceAmortization
		Frequency        ReferenceFrequency
		StartDate        Date
		CreatedAt        time.Time
	}

	// Assessment is the latest approved credit assessment of a borrower.
	Assessment struct {
		ID               int64
		BorrowerID       int64
		ApprovedCapacity Money
		Rate             decimal.Decimal
		RatingID         int64
		ApprovedAt       time.Time
	}

	// BankConnection is a borrower's linked bank account used for disbursement.
	BankConnection struct {
		ID          int64
		BorrowerID  int64
		Institution string
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year(), d.Month(), d.Day()+n)
}

// AddMonths moves n calendar months forward keeping the day of month,
// clamped to the last day of the target month (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m := d.Year(), d.Month()+n
	lastDay := time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := d.Day()
	if day > lastDay {
		day = lastDay
	}
	return NewDate(y, m, day)
}

// DaysUntil returns the number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	a := NewDate(d.Year(), d.Month(), d.Day())
	b := NewDate(other.Year(), other.Month(), other.Day())
	return int(b.Time.Sub(a.Time).Hours() / 24)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants a loan must hold before it is persisted.
func (l Loan) Validate() error {
	if err := l.Principal.Validate(); err != nil {
		return &ValidationError{Field: "principal", Reason: "must be positive"}
	}
	if !l.Rate.IsPositive() {
		return &ValidationError{Field: "rate", Reason: "must be positive"}
	}
	if err := l.StartDate.Validate(); err != nil {
		return &ValidationError{Field: "start_date", Reason: err.Error()}
	}
	return nil
}
