package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/econoracle/internal/models"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func event(id, country, name string, imp models.Importance, at time.Time) models.EconomicEvent {
	return models.EconomicEvent{EventID: id, Country: country, Name: name, Importance: imp, ScheduledAt: at}
}

func ids(events []models.EconomicEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventID)
	}
	return out
}

func TestCategory(t *testing.T) {
	tests := []struct {
		name     string
		event    models.EconomicEvent
		expected string
	}{
		{"cpi keyword", models.EconomicEvent{Name: "Core CPI m/m"}, CategoryInflation},
		{"producer prices", models.EconomicEvent{Name: "Producer Price Index"}, CategoryInflation},
		{"payrolls", models.EconomicEvent{Name: "Non-Farm Payrolls"}, CategoryEmployment},
		{"unemployment rate goes to employment first", models.EconomicEvent{Name: "Unemployment Rate"}, CategoryEmployment},
		{"fed decision", models.EconomicEvent{Name: "Fed Interest Rate Decision"}, CategoryInterestRate},
		{"boj", models.EconomicEvent{Name: "BoJ Policy Statement"}, CategoryInterestRate},
		{"gdp", models.EconomicEvent{Name: "GDP q/q"}, CategoryGDP},
		{"trade balance", models.EconomicEvent{Name: "Trade Balance"}, CategoryTrade},
		{"unmatched", models.EconomicEvent{Name: "Consumer Confidence"}, CategoryOther},
		{"explicit overrides inference", models.EconomicEvent{Name: "CPI y/y", Category: "GDP"}, CategoryGDP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Category(tt.event))
		})
	}
}

func TestByImportance(t *testing.T) {
	events := []models.EconomicEvent{
		event("a", "US", "x", models.ImportanceLow, now),
		event("b", "US", "x", models.ImportanceMedium, now),
		event("c", "US", "x", models.ImportanceHigh, now),
	}

	assert.Equal(t, []string{"b", "c"}, ids(ByImportance(events, models.ImportanceMedium)))
	assert.Equal(t, []string{"c"}, ids(ByImportance(events, models.ImportanceHigh)))
	assert.Len(t, ByImportance(events, models.ImportanceLow), 3)
}

func TestByCountries(t *testing.T) {
	events := []models.EconomicEvent{
		event("a", "us", "x", models.ImportanceHigh, now),
		event("b", "United States", "x", models.ImportanceHigh, now),
		event("c", "JP", "x", models.ImportanceHigh, now),
		event("d", "Euro Area", "x", models.ImportanceHigh, now),
	}

	assert.Equal(t, []string{"a", "b"}, ids(ByCountries(events, []string{"US"})))
	assert.Equal(t, []string{"c", "d"}, ids(ByCountries(events, []string{"jp", "eu"})))
	assert.Len(t, ByCountries(events, nil), 4, "empty allow list keeps everything")
}

func TestByCategory(t *testing.T) {
	events := []models.EconomicEvent{
		event("cpi", "US", "CPI m/m", models.ImportanceHigh, now),
		event("nfp", "US", "Non-Farm Payrolls", models.ImportanceHigh, now),
		event("conf", "US", "Consumer Confidence", models.ImportanceHigh, now),
	}

	assert.Equal(t, []string{"cpi", "nfp"}, ids(ByCategory(events, []string{"Inflation", "employment"})))
	assert.Equal(t, []string{"conf"}, ids(ByCategory(events, []string{"other"})))
}

func TestByTimeWindowInclusive(t *testing.T) {
	start := now
	end := now.Add(24 * time.Hour)
	events := []models.EconomicEvent{
		event("before", "US", "x", models.ImportanceHigh, start.Add(-time.Second)),
		event("start", "US", "x", models.ImportanceHigh, start),
		event("mid", "US", "x", models.ImportanceHigh, start.Add(time.Hour)),
		event("end", "US", "x", models.ImportanceHigh, end),
		event("after", "US", "x", models.ImportanceHigh, end.Add(time.Second)),
	}

	assert.Equal(t, []string{"start", "mid", "end"}, ids(ByTimeWindow(events, start, end)))
}

func TestFiltersCompose(t *testing.T) {
	events := []models.EconomicEvent{
		event("us-cpi", "US", "CPI", models.ImportanceHigh, now.Add(time.Hour)),
		event("us-conf", "US", "Consumer Confidence", models.ImportanceHigh, now.Add(time.Hour)),
		event("jp-cpi", "JP", "CPI", models.ImportanceHigh, now.Add(time.Hour)),
		event("us-cpi-low", "US", "CPI", models.ImportanceLow, now.Add(time.Hour)),
	}

	got := ByCategory(ByCountries(ByImportance(events, models.ImportanceMedium), []string{"US"}), []string{"inflation"})
	assert.Equal(t, []string{"us-cpi"}, ids(got))
	assert.Len(t, events, 4, "input must not be mutated")
}

func TestUrgencyBonus(t *testing.T) {
	tests := []struct {
		name     string
		offset   time.Duration
		expected float64
	}{
		{"past", -time.Minute, 0},
		{"now", 0, 5},
		{"24h boundary", 24 * time.Hour, 5},
		{"two days", 48 * time.Hour, 3},
		{"72h boundary", 72 * time.Hour, 3},
		{"five days", 5 * 24 * time.Hour, 1},
		{"a month", 30 * 24 * time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UrgencyBonus(now.Add(tt.offset), now))
		})
	}
}

func TestPriorityScore(t *testing.T) {
	// high (10) + US (3.0) + interest_rate (3.0) + within 24h (5)
	fed := event("fed", "US", "Fed Interest Rate Decision", models.ImportanceHigh, now.Add(2*time.Hour))
	assert.InDelta(t, 21.0, PriorityScore(fed, now), 1e-9)

	// low (1) + other country (0.5) + other category (0) + far away (0)
	minor := event("minor", "NZ", "Business Confidence", models.ImportanceLow, now.Add(60*24*time.Hour))
	assert.InDelta(t, 1.5, PriorityScore(minor, now), 1e-9)

	// medium (5) + EU (2.5) + gdp (2.0) + within 72h (3)
	gdp := event("gdp", "Euro Area", "GDP q/q", models.ImportanceMedium, now.Add(50*time.Hour))
	assert.InDelta(t, 12.5, PriorityScore(gdp, now), 1e-9)
}

func TestTopPriority(t *testing.T) {
	events := []models.EconomicEvent{
		event("minor", "NZ", "Business Confidence", models.ImportanceLow, now.Add(time.Hour)),
		event("fed-late", "US", "Fed Interest Rate Decision", models.ImportanceHigh, now.Add(3*time.Hour)),
		event("fed-early", "US", "Fed Interest Rate Decision", models.ImportanceHigh, now.Add(2*time.Hour)),
		event("jp-cpi", "JP", "CPI", models.ImportanceMedium, now.Add(time.Hour)),
	}

	top := TopPriority(events, 3, now)
	require.Len(t, top, 3)
	assert.Equal(t, "fed-early", top[0].Event.EventID, "ties broken by earliest scheduled_at")
	assert.Equal(t, "fed-late", top[1].Event.EventID)
	assert.Equal(t, "jp-cpi", top[2].Event.EventID)

	assert.NotNil(t, TopPriority(nil, 5, now))
	assert.Empty(t, TopPriority(events, 0, now))
	assert.Len(t, TopPriority(events, 10, now), 4)
}

func TestImpact(t *testing.T) {
	tests := []struct {
		name     string
		event    models.EconomicEvent
		score    int
		expected ImpactBucket
	}{
		{"high US rate decision", event("a", "US", "Fed Interest Rate Decision", models.ImportanceHigh, now), 7, ImpactBucketExtreme},
		{"high JP cpi", event("b", "JP", "CPI", models.ImportanceHigh, now), 6, ImpactBucketHigh},
		{"medium GB gdp", event("c", "GB", "GDP", models.ImportanceMedium, now), 4, ImpactBucketMedium},
		{"medium other", event("d", "NZ", "Business Confidence", models.ImportanceMedium, now), 2, ImpactBucketLow},
		{"low US trade", event("e", "US", "Trade Balance", models.ImportanceLow, now), 4, ImpactBucketMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, ImpactScore(tt.event))
			assert.Equal(t, tt.expected, Impact(tt.event))
		})
	}
}

func TestClassify(t *testing.T) {
	e := event("nfp", "US", "Non-Farm Payrolls", models.ImportanceHigh, now.Add(time.Hour))
	c := Classify(e, now)
	assert.Equal(t, CategoryEmployment, c.Category)
	assert.Equal(t, ImpactBucketExtreme, c.Impact)
	assert.InDelta(t, 10+3.0+2.5+5, c.Priority, 1e-9)
}
