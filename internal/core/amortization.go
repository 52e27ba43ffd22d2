package core

// AmortizationTerm is the total length of a loan in months.
type AmortizationTerm struct {
	Months int
}

func NewAmortizationTerm(months int) (AmortizationTerm, error) {
	if months <= 0 {
		return AmortizationTerm{}, &ValidationError{Field: "amortization", Reason: "term must be at least one month"}
	}
	return AmortizationTerm{Months: months}, nil
}

// TotalYears returns the term in years (18 months = 1.5).
func (t AmortizationTerm) TotalYears() float64 {
	return float64(t.Months) / 12.0
}

// ReferenceAmortization is a row of the amortization reference table.
type ReferenceAmortization struct {
	ID     int64
	Name   string
	Months int
}

func (r ReferenceAmortization) Term() (AmortizationTerm, error) {
	return NewAmortizationTerm(r.Months)
}
