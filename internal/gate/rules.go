package gate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/models"
)

// Signals carries the analyzer outputs a rule may need. Each kind reads only
// its own field; a nil field the kind requires rejects the event.
type Signals struct {
	Change         *models.ChangeRecord
	Surprise       *models.SurpriseRecord
	Classification *classifier.Classification
	AIConfidence   *float64
}

// rules is the compiled, read-only form of Config.
type rules struct {
	importance   models.Importance
	aiImportance models.Importance
	countries    *classifier.Set
	categories   *classifier.Set
	change       decimal.Decimal
	surprise     decimal.Decimal
	aiConfidence float64
}

func compileRules(cfg *Config) rules {
	r := rules{
		importance:   cfg.ImportanceThreshold,
		aiImportance: max(cfg.ImportanceThreshold, cfg.AIReportMinImportance),
		change:       decimal.NewFromFloat(cfg.ForecastChangeThreshold),
		surprise:     decimal.NewFromFloat(cfg.SurpriseThreshold),
		aiConfidence: cfg.AIReportImportanceThreshold,
	}
	if !hasWildcard(cfg.CountriesFilter) {
		set := classifier.CountrySet(cfg.CountriesFilter)
		r.countries = &set
	}
	if !hasWildcard(cfg.CategoriesFilter) {
		set := classifier.CategorySet(cfg.CategoriesFilter)
		r.categories = &set
	}
	return r
}

func hasWildcard(values []string) bool {
	for _, v := range values {
		if v == Wildcard {
			return true
		}
	}
	return false
}

// evaluate returns whether e passes the rules for kind and a short explanation.
func (r *rules) evaluate(e models.EconomicEvent, kind models.NotificationKind, s Signals) (bool, string) {
	switch kind {
	case models.KindNewEvent:
		return r.basic(e, r.importance, s)

	case models.KindForecastChange:
		if ok, detail := r.basic(e, r.importance, s); !ok {
			return false, detail
		}
		if s.Change == nil {
			return false, "no change record"
		}
		abs, ok := s.Change.AbsPercentage()
		if !ok {
			return false, "change percentage undefined"
		}
		if abs.LessThan(r.change) {
			return false, fmt.Sprintf("change %s%% below threshold %s%%", abs.StringFixed(2), r.change)
		}
		return true, fmt.Sprintf("forecast %s %s%%", s.Change.ChangeKind, abs.StringFixed(2))

	case models.KindActualAnnouncement:
		if ok, detail := r.basic(e, r.importance, s); !ok {
			return false, detail
		}
		if s.Surprise == nil {
			return false, "no surprise record"
		}
		abs, ok := s.Surprise.AbsPercentage()
		if !ok {
			return false, "surprise percentage undefined"
		}
		if abs.LessThan(r.surprise) {
			return false, fmt.Sprintf("surprise %s%% below threshold %s%%", abs.StringFixed(2), r.surprise)
		}
		return true, fmt.Sprintf("%s surprise %s%%", s.Surprise.Magnitude, abs.StringFixed(2))

	case models.KindAIReport:
		if ok, detail := r.basic(e, r.aiImportance, s); !ok {
			return false, detail
		}
		if s.AIConfidence == nil {
			return false, "no AI confidence"
		}
		if *s.AIConfidence < r.aiConfidence {
			return false, fmt.Sprintf("AI confidence %.2f below threshold %.2f", *s.AIConfidence, r.aiConfidence)
		}
		return true, fmt.Sprintf("AI confidence %.2f", *s.AIConfidence)
	}

	return false, fmt.Sprintf("unknown notification kind %q", kind)
}

// basic applies the importance floor and the country and category allow-lists.
func (r *rules) basic(e models.EconomicEvent, floor models.Importance, s Signals) (bool, string) {
	if e.Importance < floor {
		return false, fmt.Sprintf("importance %s below %s", e.Importance, floor)
	}
	if r.countries != nil && !r.countries.Contains(e.Country) {
		return false, fmt.Sprintf("country %q not in filter", e.Country)
	}
	if r.categories != nil {
		category := classifier.Category(e)
		if s.Classification != nil && s.Classification.Category != "" {
			category = s.Classification.Category
		}
		if !r.categories.Contains(category) {
			return false, fmt.Sprintf("category %q not in filter", category)
		}
	}
	return true, "basic filters passed"
}
