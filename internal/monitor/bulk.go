package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/models"
)

// SurpriseStats aggregates a batch of surprise records. Absolute-percentage
// statistics only cover records whose percentage is defined.
type SurpriseStats struct {
	Count              int                `json:"count"`
	DefinedCount       int                `json:"defined_count"`
	AverageAbs         float64            `json:"average_abs_pct"`
	MinAbs             float64            `json:"min_abs_pct"`
	MaxAbs             float64            `json:"max_abs_pct"`
	CountryAverage     map[string]float64 `json:"country_average_abs_pct"`
	CategoryAverage    map[string]float64 `json:"category_average_abs_pct"`
	CountryConsistency map[string]float64 `json:"country_consistency"`
}

// BulkResult is the output of CalculateBulk. Records keep input order.
type BulkResult struct {
	Records []models.SurpriseRecord
	Skipped []models.DataError
	Stats   SurpriseStats
}

type bulkSlot struct {
	record models.SurpriseRecord
	err    error
}

// CalculateBulk computes a surprise record for every event on a bounded pool
// of workers. Each worker writes only its own result slot, so no state is
// shared. Events lacking values are skipped and reported. The only error
// returned is ctx's.
func (a *SurpriseAnalyzer) CalculateBulk(ctx context.Context, events []models.EconomicEvent) (BulkResult, error) {
	slots := make([]bulkSlot, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.Calculate(events[i])
			slots[i] = bulkSlot{record: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BulkResult{}, fmt.Errorf("bulk surprise calculation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return BulkResult{}, fmt.Errorf("bulk surprise calculation: %w", err)
	}

	result := BulkResult{Records: make([]models.SurpriseRecord, 0, len(events))}
	included := make([]models.EconomicEvent, 0, len(events))
	for i, slot := range slots {
		if slot.err != nil {
			var de models.DataError
			if !errors.As(slot.err, &de) {
				de = models.DataError{EventID: events[i].EventID, Err: slot.err}
			}
			result.Skipped = append(result.Skipped, de)
			logger.Debug("Skipping surprise for event %q: %v", events[i].EventID, slot.err)
			continue
		}
		result.Records = append(result.Records, slot.record)
		included = append(included, events[i])
	}

	result.Stats = Aggregate(included, result.Records)
	return result, nil
}

// Aggregate summarises records; events[i] must be the event records[i] was built from.
func Aggregate(events []models.EconomicEvent, records []models.SurpriseRecord) SurpriseStats {
	stats := SurpriseStats{
		Count:              len(records),
		CountryAverage:     map[string]float64{},
		CategoryAverage:    map[string]float64{},
		CountryConsistency: map[string]float64{},
	}

	byCountryAbs := map[string][]float64{}
	byCountrySigned := map[string][]float64{}
	byCategoryAbs := map[string][]float64{}
	var sum float64

	for i, r := range records {
		if !r.SurprisePercentage.Valid {
			continue
		}
		pct := r.SurprisePercentage.Decimal.InexactFloat64()
		abs := math.Abs(pct)

		if stats.DefinedCount == 0 || abs < stats.MinAbs {
			stats.MinAbs = abs
		}
		if abs > stats.MaxAbs {
			stats.MaxAbs = abs
		}
		stats.DefinedCount++
		sum += abs

		if i < len(events) {
			country := classifier.NormalizeCountry(events[i].Country)
			category := classifier.Category(events[i])
			byCountryAbs[country] = append(byCountryAbs[country], abs)
			byCountrySigned[country] = append(byCountrySigned[country], pct)
			byCategoryAbs[category] = append(byCategoryAbs[category], abs)
		}
	}

	if stats.DefinedCount > 0 {
		stats.AverageAbs = sum / float64(stats.DefinedCount)
	}
	for country, values := range byCountryAbs {
		stats.CountryAverage[country] = mean(values)
		stats.CountryConsistency[country] = Consistency(byCountrySigned[country])
	}
	for category, values := range byCategoryAbs {
		stats.CategoryAverage[category] = mean(values)
	}
	return stats
}

// Consistency returns 1 / (1 + σ) where σ is the population standard deviation
// of the signed surprise percentages. An empty input scores 0.
func Consistency(pcts []float64) float64 {
	if len(pcts) == 0 {
		return 0
	}
	return 1 / (1 + stddev(pcts))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	m := mean(values)
	var variance float64
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}
