// Package monitor detects what changed between economic-calendar snapshots.
//
// Differ compares two snapshots by event ID and classifies forecast revisions:
//
//	change_percentage = (new - old) / |old| × 100
//
// Forecasts that appear or disappear carry a ±100 sentinel instead of a ratio,
// and a zero baseline leaves the percentage undefined. SurpriseAnalyzer compares
// announced actuals with their forecasts and buckets the deviation.
//
// Everything here is a pure computation over caller-owned values. Malformed
// events are reported as models.DataError and skipped; they never abort a batch.
package monitor

import (
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/models"
)

// DefaultChangeThreshold is the minimum |change_percentage| for a significant change.
const DefaultChangeThreshold = 1.0

var (
	hundred      = decimal.NewFromInt(100)
	minusHundred = decimal.NewFromInt(-100)
)

// Differ compares snapshots. A nil Differ uses DefaultChangeThreshold.
type Differ struct {
	threshold decimal.Decimal
}

// NewDiffer creates a Differ with the given significant-change threshold in percent.
func NewDiffer(threshold float64) *Differ {
	if threshold < 0 {
		threshold = DefaultChangeThreshold
	}
	return &Differ{threshold: decimal.NewFromFloat(threshold)}
}

// Threshold returns the significant-change threshold in percent.
func (d *Differ) Threshold() decimal.Decimal {
	if d == nil {
		return decimal.NewFromFloat(DefaultChangeThreshold)
	}
	return d.threshold
}

// index maps event IDs to events. Events without an ID are reported; a
// duplicate ID keeps the first occurrence.
func index(events []models.EconomicEvent, side string) (map[string]models.EconomicEvent, []models.DataError) {
	idx := make(map[string]models.EconomicEvent, len(events))
	var skipped []models.DataError
	for _, e := range events {
		if e.EventID == "" {
			skipped = append(skipped, models.DataError{Field: "event_id", Err: models.ErrMissingEventID})
			logger.Warn("Skipping %s event without ID (name=%q, country=%q)", side, e.Name, e.Country)
			continue
		}
		if _, dup := idx[e.EventID]; dup {
			logger.Warn("Duplicate event ID %s in %s snapshot, ignoring repeat", e.EventID, side)
			continue
		}
		idx[e.EventID] = e
	}
	return idx, skipped
}

// Diff classifies forecast movements for every event in newEvents, in input order.
// Events without a forecast on either side produce no record. The second return
// value lists events skipped because they had no ID.
func (d *Differ) Diff(oldEvents, newEvents []models.EconomicEvent) ([]models.ChangeRecord, []models.DataError) {
	oldIdx, skipped := index(oldEvents, "old")

	records := make([]models.ChangeRecord, 0, len(newEvents))
	seen := make(map[string]struct{}, len(newEvents))
	for _, ne := range newEvents {
		if ne.EventID == "" {
			skipped = append(skipped, models.DataError{Field: "event_id", Err: models.ErrMissingEventID})
			logger.Warn("Skipping new event without ID (name=%q, country=%q)", ne.Name, ne.Country)
			continue
		}
		if _, dup := seen[ne.EventID]; dup {
			logger.Warn("Duplicate event ID %s in new snapshot, ignoring repeat", ne.EventID)
			continue
		}
		seen[ne.EventID] = struct{}{}

		var oldForecast decimal.NullDecimal
		if oe, ok := oldIdx[ne.EventID]; ok {
			oldForecast = oe.Forecast
		}

		rec, ok := compareForecasts(ne.EventID, oldForecast, ne.Forecast)
		if ok {
			records = append(records, rec)
		}
	}

	logger.Debug("Diff: %d old, %d new, %d change records, %d skipped",
		len(oldEvents), len(newEvents), len(records), len(skipped))

	return records, skipped
}

// compareForecasts builds the change record for one forecast pair.
func compareForecasts(eventID string, oldF, newF decimal.NullDecimal) (models.ChangeRecord, bool) {
	rec := models.ChangeRecord{
		EventID:     eventID,
		OldForecast: oldF,
		NewForecast: newF,
	}

	switch {
	case !oldF.Valid && !newF.Valid:
		return models.ChangeRecord{}, false

	case !oldF.Valid:
		rec.ChangeKind = models.ChangeAdded
		rec.ChangeAmount = newF.Decimal
		rec.ChangePercentage = decimal.NewNullDecimal(hundred)

	case !newF.Valid:
		rec.ChangeKind = models.ChangeRemoved
		rec.ChangeAmount = oldF.Decimal.Neg()
		rec.ChangePercentage = decimal.NewNullDecimal(minusHundred)

	default:
		rec.ChangeAmount = newF.Decimal.Sub(oldF.Decimal)
		if !oldF.Decimal.IsZero() {
			rec.ChangePercentage = decimal.NewNullDecimal(ChangePercentage(oldF.Decimal, newF.Decimal))
		}
		rec.ChangeKind = kindFromSign(rec.ChangeAmount.Sign())
	}

	return rec, true
}

// ChangePercentage returns (new - old) / |old| × 100. old must be non-zero.
func ChangePercentage(oldValue, newValue decimal.Decimal) decimal.Decimal {
	return newValue.Sub(oldValue).Div(oldValue.Abs()).Mul(hundred)
}

func kindFromSign(sign int) models.ChangeKind {
	switch {
	case sign > 0:
		return models.ChangeIncrease
	case sign < 0:
		return models.ChangeDecrease
	default:
		return models.ChangeNoChange
	}
}

// Significant keeps records whose |change_percentage| meets the threshold,
// plus every added or removed record. Undefined percentages never qualify.
func (d *Differ) Significant(records []models.ChangeRecord) []models.ChangeRecord {
	threshold := d.Threshold()
	out := make([]models.ChangeRecord, 0, len(records))
	for _, r := range records {
		if r.ChangeKind.Sentinel() {
			out = append(out, r)
			continue
		}
		if abs, ok := r.AbsPercentage(); ok && abs.GreaterThanOrEqual(threshold) {
			out = append(out, r)
		}
	}
	return out
}

// DetectNewEvents returns events in newEvents whose ID is absent from oldEvents.
func DetectNewEvents(oldEvents, newEvents []models.EconomicEvent) []models.EconomicEvent {
	return difference(newEvents, oldEvents)
}

// DetectRemovedEvents returns events in oldEvents whose ID is absent from newEvents.
func DetectRemovedEvents(oldEvents, newEvents []models.EconomicEvent) []models.EconomicEvent {
	return difference(oldEvents, newEvents)
}

func difference(from, minus []models.EconomicEvent) []models.EconomicEvent {
	drop := make(map[string]struct{}, len(minus))
	for _, e := range minus {
		if e.EventID != "" {
			drop[e.EventID] = struct{}{}
		}
	}
	out := make([]models.EconomicEvent, 0)
	for _, e := range from {
		if e.EventID == "" {
			continue
		}
		if _, ok := drop[e.EventID]; !ok {
			out = append(out, e)
		}
	}
	return out
}
