package models

import "github.com/shopspring/decimal"

// Magnitude buckets |surprise percentage|: <1 minimal, <10 small, <20 medium,
// <50 large, otherwise extreme. Undefined when the percentage is.
type Magnitude string

const (
	MagnitudeUndefined Magnitude = "undefined"
	MagnitudeMinimal   Magnitude = "minimal"
	MagnitudeSmall     Magnitude = "small"
	MagnitudeMedium    Magnitude = "medium"
	MagnitudeLarge     Magnitude = "large"
	MagnitudeExtreme   Magnitude = "extreme"
)

// Rank returns the ordinal position of m (0 for undefined).
func (m Magnitude) Rank() int {
	switch m {
	case MagnitudeMinimal:
		return 1
	case MagnitudeSmall:
		return 2
	case MagnitudeMedium:
		return 3
	case MagnitudeLarge:
		return 4
	case MagnitudeExtreme:
		return 5
	}
	return 0
}

// Direction is the sign of actual minus forecast.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// MarketImpact buckets |surprise percentage| weighted by event importance.
type MarketImpact string

const (
	ImpactUndefined MarketImpact = "undefined"
	ImpactLow       MarketImpact = "low"
	ImpactMedium    MarketImpact = "medium"
	ImpactHigh      MarketImpact = "high"
	ImpactExtreme   MarketImpact = "extreme"
)

// SurpriseRecord compares an announced actual with its forecast.
type SurpriseRecord struct {
	EventID            string              `json:"event_id"`
	Actual             decimal.Decimal     `json:"actual"`
	Forecast           decimal.Decimal     `json:"forecast"`
	SurpriseAmount     decimal.Decimal     `json:"surprise_amount"`
	SurprisePercentage decimal.NullDecimal `json:"surprise_percentage"`
	Magnitude          Magnitude           `json:"magnitude"`
	Direction          Direction           `json:"direction"`
	MarketImpact       MarketImpact        `json:"market_impact"`
}

// AbsPercentage returns |SurprisePercentage| and whether it is defined.
func (s *SurpriseRecord) AbsPercentage() (decimal.Decimal, bool) {
	if !s.SurprisePercentage.Valid {
		return decimal.Zero, false
	}
	return s.SurprisePercentage.Decimal.Abs(), true
}
