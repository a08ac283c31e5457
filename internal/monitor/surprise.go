package monitor

import (
	"runtime"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/models"
)

// DefaultSurpriseThreshold is the minimum |surprise_percentage| for a significant surprise.
const DefaultSurpriseThreshold = 20.0

// Magnitude cut points on |surprise_percentage|, lower bounds inclusive.
var magnitudeBands = []struct {
	below     decimal.Decimal
	magnitude models.Magnitude
}{
	{decimal.NewFromInt(1), models.MagnitudeMinimal},
	{decimal.NewFromInt(10), models.MagnitudeSmall},
	{decimal.NewFromInt(20), models.MagnitudeMedium},
	{decimal.NewFromInt(50), models.MagnitudeLarge},
}

var importanceImpactWeights = map[models.Importance]decimal.Decimal{
	models.ImportanceLow:    decimal.NewFromFloat(0.5),
	models.ImportanceMedium: decimal.NewFromInt(1),
	models.ImportanceHigh:   decimal.NewFromFloat(1.5),
}

var (
	impactExtreme = decimal.NewFromInt(30)
	impactHigh    = decimal.NewFromInt(15)
	impactMedium  = decimal.NewFromInt(5)
)

// SurpriseAnalyzer computes actual-versus-forecast deviations.
type SurpriseAnalyzer struct {
	threshold decimal.Decimal
	workers   int
}

// NewSurpriseAnalyzer creates an analyzer with the given significant-surprise
// threshold in percent. workers bounds CalculateBulk parallelism; values <= 0
// use the number of CPUs.
func NewSurpriseAnalyzer(threshold float64, workers int) *SurpriseAnalyzer {
	if threshold < 0 {
		threshold = DefaultSurpriseThreshold
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &SurpriseAnalyzer{
		threshold: decimal.NewFromFloat(threshold),
		workers:   workers,
	}
}

// Threshold returns the significant-surprise threshold in percent.
func (a *SurpriseAnalyzer) Threshold() decimal.Decimal {
	return a.threshold
}

// Calculate builds the surprise record for one event. Both actual and forecast
// must be present; otherwise a models.DataError is returned. A zero forecast
// yields a record whose percentage, magnitude and impact are undefined.
func (a *SurpriseAnalyzer) Calculate(e models.EconomicEvent) (models.SurpriseRecord, error) {
	return CalculateSurprise(e)
}

// CalculateSurprise is the stateless form of SurpriseAnalyzer.Calculate.
//
// The percentage divides by |forecast| so that its sign always matches the
// direction of the surprise, including for negative forecasts.
func CalculateSurprise(e models.EconomicEvent) (models.SurpriseRecord, error) {
	if e.EventID == "" {
		return models.SurpriseRecord{}, models.DataError{Field: "event_id", Err: models.ErrMissingEventID}
	}
	if !e.Actual.Valid {
		return models.SurpriseRecord{}, models.DataError{EventID: e.EventID, Field: "actual", Err: models.ErrMissingValue}
	}
	if !e.Forecast.Valid {
		return models.SurpriseRecord{}, models.DataError{EventID: e.EventID, Field: "forecast", Err: models.ErrMissingValue}
	}

	actual, forecast := e.Actual.Decimal, e.Forecast.Decimal
	amount := actual.Sub(forecast)

	rec := models.SurpriseRecord{
		EventID:        e.EventID,
		Actual:         actual,
		Forecast:       forecast,
		SurpriseAmount: amount,
		Magnitude:      models.MagnitudeUndefined,
		Direction:      directionOf(amount),
		MarketImpact:   models.ImpactUndefined,
	}

	if forecast.IsZero() {
		return rec, nil
	}

	pct := amount.Div(forecast.Abs()).Mul(hundred)
	rec.SurprisePercentage = decimal.NewNullDecimal(pct)
	rec.Magnitude = MagnitudeOf(pct.Abs())
	rec.MarketImpact = MarketImpactOf(pct.Abs(), e.Importance)
	return rec, nil
}

func directionOf(amount decimal.Decimal) models.Direction {
	switch amount.Sign() {
	case 1:
		return models.DirectionPositive
	case -1:
		return models.DirectionNegative
	default:
		return models.DirectionNeutral
	}
}

// MagnitudeOf buckets an absolute percentage: <1 minimal, <10 small, <20 medium,
// <50 large, otherwise extreme.
func MagnitudeOf(absPct decimal.Decimal) models.Magnitude {
	for _, band := range magnitudeBands {
		if absPct.LessThan(band.below) {
			return band.magnitude
		}
	}
	return models.MagnitudeExtreme
}

// MarketImpactOf weights an absolute percentage by importance (high 1.5,
// medium 1.0, low 0.5) and buckets it: >=30 extreme, >=15 high, >=5 medium.
// Unknown importance is weighted as low.
func MarketImpactOf(absPct decimal.Decimal, importance models.Importance) models.MarketImpact {
	weight, ok := importanceImpactWeights[importance]
	if !ok {
		weight = importanceImpactWeights[models.ImportanceLow]
	}
	score := absPct.Mul(weight)
	switch {
	case score.GreaterThanOrEqual(impactExtreme):
		return models.ImpactExtreme
	case score.GreaterThanOrEqual(impactHigh):
		return models.ImpactHigh
	case score.GreaterThanOrEqual(impactMedium):
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

// IsSignificant reports whether r has a defined percentage at or above the threshold.
func (a *SurpriseAnalyzer) IsSignificant(r models.SurpriseRecord) bool {
	abs, ok := r.AbsPercentage()
	return ok && abs.GreaterThanOrEqual(a.threshold)
}

// Significant keeps the records for which IsSignificant holds.
func (a *SurpriseAnalyzer) Significant(records []models.SurpriseRecord) []models.SurpriseRecord {
	out := make([]models.SurpriseRecord, 0, len(records))
	for _, r := range records {
		if a.IsSignificant(r) {
			out = append(out, r)
		}
	}
	return out
}

// DetectAnnouncements returns events in newEvents that carry an actual value
// which the matching old event did not have. Events seen for the first time
// with an actual already populated are included.
func DetectAnnouncements(oldEvents, newEvents []models.EconomicEvent) []models.EconomicEvent {
	hadActual := make(map[string]bool, len(oldEvents))
	for _, e := range oldEvents {
		if e.EventID != "" {
			hadActual[e.EventID] = e.Actual.Valid
		}
	}
	out := make([]models.EconomicEvent, 0)
	for _, e := range newEvents {
		if e.EventID == "" || !e.Actual.Valid {
			continue
		}
		if !hadActual[e.EventID] {
			out = append(out, e)
		}
	}
	return out
}
