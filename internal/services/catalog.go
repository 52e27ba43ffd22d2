package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"peerlend/internal/cache"
	"peerlend/internal/core"
	"peerlend/internal/metrics"
	"peerlend/internal/storage"
)

const (
	frequenciesKey   = "frequencies"
	amortizationsKey = "amortizations"
)

// Catalog serves the reference tables through a small TTL cache.
type Catalog struct {
	reader        storage.ReferenceReader
	frequencies   *cache.LRUCache[[]core.ReferenceFrequency]
	amortizations *cache.LRUCache[[]core.ReferenceAmortization]
}

func NewCatalog(reader storage.ReferenceReader, ttl time.Duration) *Catalog {
	return &Catalog{
		reader:        reader,
		frequencies:   cache.NewLRUCache[[]core.ReferenceFrequency](1, ttl),
		amortizations: cache.NewLRUCache[[]core.ReferenceAmortization](1, ttl),
	}
}

// Caches returns the underlying caches so a cache.Manager can clean them.
func (c *Catalog) Caches() []cache.Cleaner {
	return []cache.Cleaner{c.frequencies, c.amortizations}
}

func (c *Catalog) Frequencies(ctx context.Context) ([]core.ReferenceFrequency, error) {
	return c.frequencies.GetOrLoad(frequenciesKey, func() ([]core.ReferenceFrequency, error) {
		rows, err := c.reader.ListFrequencies(ctx)
		if err != nil {
			return nil, fmt.Errorf("list frequencies: %w", err)
		}
		for _, r := range rows {
			if _, err := r.Resolve(); err != nil {
				reportUnresolvable(ctx, r, err)
			}
		}
		return rows, nil
	})
}

func (c *Catalog) Amortizations(ctx context.Context) ([]core.ReferenceAmortization, error) {
	return c.amortizations.GetOrLoad(amortizationsKey, func() ([]core.ReferenceAmortization, error) {
		rows, err := c.reader.ListAmortizations(ctx)
		if err != nil {
			return nil, fmt.Errorf("list amortizations: %w", err)
		}
		return rows, nil
	})
}

// Frequency returns the reference frequency with id. Unknown ids and rows
// that do not resolve to a supported frequency are rejected.
func (c *Catalog) Frequency(ctx context.Context, id int64) (core.ReferenceFrequency, error) {
	rows, err := c.Frequencies(ctx)
	if err != nil {
		return core.ReferenceFrequency{}, err
	}
	for _, r := range rows {
		if r.ID != id {
			continue
		}
		if _, err := r.Resolve(); err != nil {
			return core.ReferenceFrequency{}, fmt.Errorf("frequency %d: %w", id, err)
		}
		return r, nil
	}
	return core.ReferenceFrequency{}, &core.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %d", id)}
}

func (c *Catalog) Amortization(ctx context.Context, id int64) (core.ReferenceAmortization, error) {
	rows, err := c.Amortizations(ctx)
	if err != nil {
		return core.ReferenceAmortization{}, err
	}
	for _, r := range rows {
		if r.ID != id {
			continue
		}
		if _, err := r.Term(); err != nil {
			return core.ReferenceAmortization{}, err
		}
		return r, nil
	}
	return core.ReferenceAmortization{}, &core.ValidationError{Field: "amortization", Reason: fmt.Sprintf("unknown amortization %d", id)}
}

// Invalidate drops the cached tables.
func (c *Catalog) Invalidate() {
	c.frequencies.Delete(frequenciesKey)
	c.amortizations.Delete(amortizationsKey)
}

func reportUnresolvable(ctx context.Context, r core.ReferenceFrequency, err error) {
	if errors.Is(err, core.ErrUnsupportedFrequency) {
		metrics.UnsupportedFrequencies.Inc()
	}
	slog.ErrorContext(ctx, "Reference frequency cannot be scheduled",
		"frequency_id", r.ID,
		"frequency", r.Name,
		"days", r.Days,
		"per_month", r.PerMonth,
		"error", err)
}
