// Package classifier filters and ranks economic events.
//
// Every function here is pure: inputs are never mutated and results are new
// slices, so filters compose freely and are safe to call from many goroutines.
package classifier

import (
	"strings"
	"time"

	"github.com/rewired-gh/econoracle/internal/models"
)

// Categories inferred from event names.
const (
	CategoryInflation    = "inflation"
	CategoryEmployment   = "employment"
	CategoryInterestRate = "interest_rate"
	CategoryGDP          = "gdp"
	CategoryTrade        = "trade"
	CategoryOther        = "other"
)

// KnownCategories lists every category Category can return.
var KnownCategories = []string{
	CategoryInflation,
	CategoryEmployment,
	CategoryInterestRate,
	CategoryGDP,
	CategoryTrade,
	CategoryOther,
}

type keywordRule struct {
	category string
	keywords []string
}

// Order matters: "Unemployment Rate" is employment, not interest_rate.
var keywordTable = []keywordRule{
	{CategoryInflation, []string{"cpi", "inflation", "price"}},
	{CategoryEmployment, []string{"employment", "payroll"}},
	{CategoryInterestRate, []string{"rate", "fed", "ecb", "boj", "boe"}},
	{CategoryGDP, []string{"gdp"}},
	{CategoryTrade, []string{"trade balance"}},
}

var countryAliases = map[string]string{
	"united states":  "US",
	"usa":            "US",
	"u.s.":           "US",
	"euro area":      "EU",
	"eurozone":       "EU",
	"euro zone":      "EU",
	"ez":             "EU",
	"european union": "EU",
	"united kingdom": "GB",
	"uk":             "GB",
	"great britain":  "GB",
	"japan":          "JP",
	"china":          "CN",
	"germany":        "DE",
	"france":         "FR",
	"canada":         "CA",
	"australia":      "AU",
	"switzerland":    "CH",
}

// NormalizeCountry upper-cases codes and maps common country names onto codes.
func NormalizeCountry(country string) string {
	c := strings.ToLower(strings.TrimSpace(country))
	if code, ok := countryAliases[c]; ok {
		return code
	}
	return strings.ToUpper(c)
}

// Category returns the event's explicit category if set, otherwise the first
// keyword match on the event name, otherwise "other".
func Category(e models.EconomicEvent) string {
	if c := strings.TrimSpace(e.Category); c != "" {
		return strings.ToLower(c)
	}
	name := strings.ToLower(e.Name)
	for _, rule := range keywordTable {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// ByImportance keeps events whose importance is at least min.
func ByImportance(events []models.EconomicEvent, min models.Importance) []models.EconomicEvent {
	return filter(events, func(e models.EconomicEvent) bool {
		return e.Importance >= min
	})
}

// ByCountries keeps events whose country is in allow, compared case-insensitively
// after alias normalisation. An empty allow list keeps everything.
func ByCountries(events []models.EconomicEvent, allow []string) []models.EconomicEvent {
	if len(allow) == 0 {
		return append([]models.EconomicEvent(nil), events...)
	}
	set := CountrySet(allow)
	return filter(events, func(e models.EconomicEvent) bool {
		return set.Contains(e.Country)
	})
}

// ByCategory keeps events whose Category is in allow. An empty allow list keeps everything.
func ByCategory(events []models.EconomicEvent, allow []string) []models.EconomicEvent {
	if len(allow) == 0 {
		return append([]models.EconomicEvent(nil), events...)
	}
	set := CategorySet(allow)
	return filter(events, func(e models.EconomicEvent) bool {
		return set.Contains(Category(e))
	})
}

// ByTimeWindow keeps events scheduled within [start, end], both ends inclusive.
func ByTimeWindow(events []models.EconomicEvent, start, end time.Time) []models.EconomicEvent {
	return filter(events, func(e models.EconomicEvent) bool {
		return !e.ScheduledAt.Before(start) && !e.ScheduledAt.After(end)
	})
}

func filter(events []models.EconomicEvent, keep func(models.EconomicEvent) bool) []models.EconomicEvent {
	out := make([]models.EconomicEvent, 0, len(events))
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Set is a normalised membership set for countries or categories.
type Set struct {
	items     map[string]struct{}
	normalize func(string) string
}

// CountrySet builds a Set that compares country codes and names.
func CountrySet(values []string) Set {
	return newSet(values, NormalizeCountry)
}

// CategorySet builds a Set that compares categories case-insensitively.
func CategorySet(values []string) Set {
	return newSet(values, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

func newSet(values []string, normalize func(string) string) Set {
	s := Set{items: make(map[string]struct{}, len(values)), normalize: normalize}
	for _, v := range values {
		s.items[normalize(v)] = struct{}{}
	}
	return s
}

// Contains reports membership of v after normalisation.
func (s Set) Contains(v string) bool {
	_, ok := s.items[s.normalize(v)]
	return ok
}

// Len returns the number of distinct members.
func (s Set) Len() int {
	return len(s.items)
}
