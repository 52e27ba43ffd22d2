package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateAddMonths(t *testing.T) {
	tests := []struct {
		name  string
		start Date
		n     int
		want  Date
	}{
		{"plain", NewDate(2024, 1, 15), 1, NewDate(2024, 2, 15)},
		{"clamps to leap february", NewDate(2024, 1, 31), 1, NewDate(2024, 2, 29)},
		{"clamps to february", NewDate(2023, 1, 31), 1, NewDate(2023, 2, 28)},
		{"clamps to 30 day month", NewDate(2024, 3, 31), 1, NewDate(2024, 4, 30)},
		{"crosses year", NewDate(2024, 11, 30), 3, NewDate(2025, 2, 28)},
		{"zero months", NewDate(2024, 5, 5), 0, NewDate(2024, 5, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.start.AddMonths(tt.n); !got.Equal(tt.want.Time) {
				t.Errorf("AddMonths(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestDateDaysUntil(t *testing.T) {
	if got := NewDate(2024, 1, 1).DaysUntil(NewDate(2024, 2, 1)); got != 31 {
		t.Errorf("DaysUntil() = %d, want 31", got)
	}
	if got := NewDate(2024, 2, 1).DaysUntil(NewDate(2024, 3, 1)); got != 29 {
		t.Errorf("DaysUntil() = %d, want 29", got)
	}
	if got := NewDate(2024, 3, 1).DaysUntil(NewDate(2024, 3, 1)); got != 0 {
		t.Errorf("DaysUntil() = %d, want 0", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d.String() != "2024-03-09" {
		t.Errorf("ParseDate().String() = %s", d)
	}
	if _, err := ParseDate("09/03/2024"); err == nil {
		t.Error("ParseDate() expected error for wrong layout")
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestLoanValidate(t *testing.T) {
	good := Loan{
		Principal: NewMoney(120000),
		Rate:      decimal.RequireFromString("0.12"),
		StartDate: NewDate(2024, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Loan{
		{Principal: NewMoney(0), Rate: good.Rate, StartDate: good.StartDate},
		{Principal: good.Principal, Rate: decimal.Zero, StartDate: good.StartDate},
		{Principal: good.Principal, Rate: good.Rate},
	}
	for i, l := range bads {
		err := l.Validate()
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestScheduledPaymentPrincipal(t *testing.T) {
	p := ScheduledPayment{Amount: NewMoney(10665), Interest: NewMoney(1223)}
	if got := p.Principal(); got.Cents != 9442 {
		t.Errorf("Principal() = %d, want 9442", got.Cents)
	}

	// interest above the amount never yields a negative principal
	p = ScheduledPayment{Amount: NewMoney(100), Interest: NewMoney(150)}
	if got := p.Principal(); got.Cents != 0 {
		t.Errorf("Principal() = %d, want 0", got.Cents)
	}

	if p.IsPaid() {
		t.Error("IsPaid() should be false without a settlement")
	}
	now := time.Now()
	p.PaidAt = &now
	if !p.IsPaid() {
		t.Error("IsPaid() should be true with a settlement")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	if !errors.Is(ErrNoApprovedAssessment, ErrCapacityExceeded) {
		t.Error("ErrNoApprovedAssessment should wrap ErrCapacityExceeded")
	}
	var err error = &ValidationError{Field: "principal", Reason: "must be positive"}
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError should match ErrValidation")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "principal" {
		t.Errorf("errors.As() = %v", ve)
	}
	if err.Error() != "invalid principal: must be positive" {
		t.Errorf("Error() = %q", err.Error())
	}
}
