package classifier

import (
	"sort"
	"time"

	"github.com/rewired-gh/econoracle/internal/models"
)

// ImpactBucket is the combined importance/country/category tier of an event.
type ImpactBucket string

const (
	ImpactBucketExtreme ImpactBucket = "extreme_impact"
	ImpactBucketHigh    ImpactBucket = "high_impact"
	ImpactBucketMedium  ImpactBucket = "medium_impact"
	ImpactBucketLow     ImpactBucket = "low_impact"
)

var importanceWeights = map[models.Importance]float64{
	models.ImportanceLow:    1,
	models.ImportanceMedium: 5,
	models.ImportanceHigh:   10,
}

var countryWeights = map[string]float64{
	"US": 3.0,
	"EU": 2.5,
	"CN": 2.5,
	"JP": 2.0,
	"GB": 2.0,
	"DE": 2.0,
	"FR": 1.5,
	"CA": 1.5,
	"AU": 1.5,
	"CH": 1.5,
}

const defaultCountryWeight = 0.5

var categoryWeights = map[string]float64{
	CategoryInterestRate: 3.0,
	CategoryEmployment:   2.5,
	CategoryInflation:    2.5,
	CategoryGDP:          2.0,
	CategoryTrade:        1.5,
}

var countryTiers = map[string]int{
	"US": 2, "EU": 2, "CN": 2,
	"JP": 1, "GB": 1, "DE": 1,
}

var categoryTiers = map[string]int{
	CategoryInterestRate: 2,
	CategoryInflation:    2,
	CategoryEmployment:   2,
	CategoryGDP:          1,
	CategoryTrade:        1,
}

// CountryWeight returns the priority weight of a country (0.5 outside the majors).
func CountryWeight(country string) float64 {
	if w, ok := countryWeights[NormalizeCountry(country)]; ok {
		return w
	}
	return defaultCountryWeight
}

// UrgencyBonus rewards events that are close: +5 within 24h, +3 within 72h,
// +1 within 7 days. Events already in the past get nothing.
func UrgencyBonus(scheduledAt, now time.Time) float64 {
	until := scheduledAt.Sub(now)
	switch {
	case until < 0:
		return 0
	case until <= 24*time.Hour:
		return 5
	case until <= 72*time.Hour:
		return 3
	case until <= 7*24*time.Hour:
		return 1
	}
	return 0
}

// PriorityScore is the weighted sum of importance, country, category and urgency.
func PriorityScore(e models.EconomicEvent, now time.Time) float64 {
	return importanceWeights[e.Importance] +
		CountryWeight(e.Country) +
		categoryWeights[Category(e)] +
		UrgencyBonus(e.ScheduledAt, now)
}

// ScoredEvent pairs an event with its priority score.
type ScoredEvent struct {
	Event models.EconomicEvent
	Score float64
}

// TopPriority returns at most n events ranked by PriorityScore descending.
// Ties go to the earliest ScheduledAt, then to the lower EventID. Never nil.
func TopPriority(events []models.EconomicEvent, n int, now time.Time) []ScoredEvent {
	scored := make([]ScoredEvent, 0, len(events))
	for _, e := range events {
		scored = append(scored, ScoredEvent{Event: e, Score: PriorityScore(e, now)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Event.ScheduledAt.Equal(b.Event.ScheduledAt) {
			return a.Event.ScheduledAt.Before(b.Event.ScheduledAt)
		}
		return a.Event.EventID < b.Event.EventID
	})

	if n <= 0 {
		return []ScoredEvent{}
	}
	if n > len(scored) {
		n = len(scored)
	}
	return scored[:n]
}

// ImpactScore adds importance (1-3), country tier (0-2) and category tier (0-2).
func ImpactScore(e models.EconomicEvent) int {
	score := 0
	if e.Importance.Valid() {
		score += int(e.Importance)
	}
	score += countryTiers[NormalizeCountry(e.Country)]
	score += categoryTiers[Category(e)]
	return score
}

// Impact buckets ImpactScore: >=7 extreme, >=5 high, >=3 medium, else low.
func Impact(e models.EconomicEvent) ImpactBucket {
	switch s := ImpactScore(e); {
	case s >= 7:
		return ImpactBucketExtreme
	case s >= 5:
		return ImpactBucketHigh
	case s >= 3:
		return ImpactBucketMedium
	default:
		return ImpactBucketLow
	}
}

// Classification bundles everything the classifier knows about one event.
type Classification struct {
	Category string
	Priority float64
	Impact   ImpactBucket
}

// Classify computes category, priority and impact bucket for e.
func Classify(e models.EconomicEvent, now time.Time) Classification {
	return Classification{
		Category: Category(e),
		Priority: PriorityScore(e, now),
		Impact:   Impact(e),
	}
}
