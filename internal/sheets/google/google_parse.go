package google

import (
	"fmt"
	"strconv"
	"strings"

	"peerlend/internal/core"
	ports "peerlend/internal/sheets"
)

// parseLedger converts a values matrix (as returned by Sheets API) into
// ledger rows. Header rows and rows that do not parse are skipped.
func parseLedger(values [][]interface{}) []ports.LedgerRow {
	var out []ports.LedgerRow
	for _, raw := range values {
		row, ok := parseLedgerRow(toStrings(raw))
		if !ok {
			continue
		}
		out = append(out, row)
	}
	return out
}

func parseLedgerRow(cols []string) (ports.LedgerRow, bool) {
	if len(cols) < 7 || cols[0] == "" {
		return ports.LedgerRow{}, false
	}
	borrower, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return ports.LedgerRow{}, false
	}
	seq, err := strconv.Atoi(cols[2])
	if err != nil {
		return ports.LedgerRow{}, false
	}
	due, err := core.ParseDate(cols[3])
	if err != nil {
		return ports.LedgerRow{}, false
	}

	var amounts [3]core.Money
	for i := range amounts {
		cents, ok := parseAmountToCents(cols[4+i])
		if !ok {
			return ports.LedgerRow{}, false
		}
		amounts[i] = core.NewMoney(cents)
	}

	return ports.LedgerRow{
		LoanRef:    cols[0],
		BorrowerID: borrower,
		Seq:        seq,
		DueDate:    due,
		Amount:     amounts[0],
		Interest:   amounts[1],
		Principal:  amounts[2],
	}, true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// parseAmountToCents accepts both "12.34" and "12,34"; zero is allowed.
func parseAmountToCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	m, err := core.MoneyFromFloat(f)
	if err != nil {
		return 0, false
	}
	return m.Cents, true
}
