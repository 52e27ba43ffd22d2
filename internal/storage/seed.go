package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"peerlend/internal/core"
)

// LoadSeedFile loads borrower onboarding data for local development.
// Each non-empty, non-comment line is one of:
//
//	assessment,<borrower_id>,<approved_capacity>,<rate>,<rating_id>
//	bank,<borrower_id>,<institution>
//
// A missing file is not an error. It returns the number of records written.
func LoadSeedFile(ctx context.Context, w OnboardingWriter, path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	count := 0
	sc := bufio.NewScanner(f)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := seedLine(ctx, w, strings.Split(line, ",")); err != nil {
			return count, fmt.Errorf("seed line %d: %w", lineNo, err)
		}
		count++
	}
	return count, sc.Err()
}

func seedLine(ctx context.Context, w OnboardingWriter, fields []string) error {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 3 {
		return fmt.Errorf("too few fields")
	}
	borrowerID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("borrower id: %w", err)
	}

	switch fields[0] {
	case "assessment":
		if len(fields) != 5 {
			return fmt.Errorf("assessment needs 5 fields, got %d", len(fields))
		}
		capacity, err := core.ParseMoney(fields[2])
		if err != nil {
			return fmt.Errorf("capacity: %w", err)
		}
		rate, err := decimal.NewFromString(fields[3])
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		rating, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return fmt.Errorf("rating: %w", err)
		}
		_, err = w.SaveAssessment(ctx, core.Assessment{
			BorrowerID:       borrowerID,
			ApprovedCapacity: capacity,
			Rate:             rate,
			RatingID:         rating,
		})
		return err
	case "bank":
		_, err := w.SaveBankConnection(ctx, core.BankConnection{BorrowerID: borrowerID, Institution: fields[2]})
		return err
	default:
		return fmt.Errorf("unknown record type %q", fields[0])
	}
}
