package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/models"
)

// Accepted layouts for Row.Date, tried in order. Layouts without a zone are UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	dateLayout,
}

// Row is one calendar entry as the feed sends it.
type Row struct {
	ID       string     `json:"id"`
	Date     string     `json:"date"`
	Country  string     `json:"country"`
	Event    string     `json:"event"`
	Impact   flexString `json:"impact"`
	Actual   flexString `json:"actual"`
	Forecast flexString `json:"forecast"`
	Previous flexString `json:"previous"`
	Currency string     `json:"currency"`
	Unit     string     `json:"unit"`
	Category string     `json:"category"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// Decode parses a calendar feed body. Rows without a usable date or importance
// are skipped; unparseable numeric fields become undefined. Both are reported
// in FetchResult.Skipped.
func Decode(data []byte) (FetchResult, error) {
	rows, err := unmarshalRows(data)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Events: make([]models.EconomicEvent, 0, len(rows))}
	for _, row := range rows {
		e, problems, ok := row.toEvent()
		result.Skipped = append(result.Skipped, problems...)
		if !ok {
			continue
		}
		result.Events = append(result.Events, e)
	}

	if len(result.Skipped) > 0 {
		logger.Warn("Calendar feed: %d rows decoded, %d data problems", len(result.Events), len(result.Skipped))
	}
	return result, nil
}

// LoadFile reads a calendar feed from a JSON file.
func LoadFile(path string) (FetchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to read calendar file: %w", err)
	}
	result, err := Decode(data)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to decode calendar file %s: %w", path, err)
	}
	return result, nil
}

// toEvent converts r. ok is false when the row cannot be used at all.
func (r Row) toEvent() (models.EconomicEvent, []models.DataError, bool) {
	var problems []models.DataError

	scheduledAt, err := parseDate(r.Date)
	id := strings.TrimSpace(r.ID)
	if id == "" && err == nil {
		id = StableID(r.Country, r.Event, scheduledAt)
	}
	if err != nil {
		return models.EconomicEvent{}, []models.DataError{{EventID: id, Field: "date", Err: fmt.Errorf("%w: %v", models.ErrInvalidValue, err)}}, false
	}

	importance, err := models.ParseImportance(string(r.Impact))
	if err != nil {
		return models.EconomicEvent{}, []models.DataError{{EventID: id, Field: "impact", Err: fmt.Errorf("%w: %v", models.ErrInvalidValue, err)}}, false
	}

	e := models.EconomicEvent{
		EventID:     id,
		ScheduledAt: scheduledAt,
		Country:     strings.TrimSpace(r.Country),
		Name:        strings.TrimSpace(r.Event),
		Importance:  importance,
		Currency:    strings.TrimSpace(r.Currency),
		Unit:        strings.TrimSpace(r.Unit),
		Category:    strings.TrimSpace(r.Category),
	}

	for _, field := range []struct {
		name string
		raw  flexString
		dst  *decimal.NullDecimal
	}{
		{"actual", r.Actual, &e.Actual},
		{"forecast", r.Forecast, &e.Forecast},
		{"previous", r.Previous, &e.Previous},
	} {
		v, unit, err := ParseValue(string(field.raw))
		if err != nil {
			problems = append(problems, models.DataError{EventID: id, Field: field.name, Err: fmt.Errorf("%w: %v", models.ErrInvalidValue, err)})
			continue
		}
		*field.dst = v
		if e.Unit == "" && unit != "" {
			e.Unit = unit
		}
	}

	return e, problems, true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// StableID derives an event ID from country, name and release time so the same
// release keeps its identity across fetches when the feed omits IDs.
func StableID(country, name string, scheduledAt time.Time) string {
	key := strings.ToUpper(strings.TrimSpace(country)) + "|" +
		strings.ToLower(strings.TrimSpace(name)) + "|" +
		scheduledAt.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

var valueMultipliers = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
	'T': decimal.NewFromInt(1_000_000_000_000),
}

// ParseValue parses a calendar figure such as "2.9%", "-0.3", "210K" or
// "1,234.5". Empty strings, "-" and "n/a" are undefined, not errors. The
// returned unit is "%" for percentages and empty otherwise.
func ParseValue(s string) (decimal.NullDecimal, string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "n/a") {
		return decimal.NullDecimal{}, "", nil
	}

	unit := ""
	s = strings.ReplaceAll(s, ",", "")
	if strings.HasSuffix(s, "%") {
		unit = "%"
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	multiplier := decimal.NewFromInt(1)
	if n := len(s); n > 1 {
		if m, ok := valueMultipliers[strings.ToUpper(s[n-1:])[0]]; ok {
			multiplier = m
			s = s[:n-1]
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, "", err
	}
	return decimal.NewNullDecimal(d.Mul(multiplier)), unit, nil
}
