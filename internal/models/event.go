// Package models defines the core domain entities for econoracle.
// These models represent scheduled economic events, the change and surprise
// records derived from them, and the notification decisions built on top.
//
// Terminology:
//   - Event: one scheduled economic release (e.g. "US Non-Farm Payrolls").
//   - Snapshot: a point-in-time collection of events, one side of a diff.
//   - Forecast change: a forecast revised between two snapshots before release.
//   - Surprise: the announced actual versus the last forecast, after release.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Importance is the ordinal market weight of an event: low < medium < high.
type Importance int

const (
	ImportanceUnknown Importance = iota
	ImportanceLow
	ImportanceMedium
	ImportanceHigh
)

// ParseImportance accepts "low", "medium", "high" (any case) or the
// calendar-style ordinals "1", "2", "3".
func ParseImportance(s string) (Importance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "1":
		return ImportanceLow, nil
	case "medium", "2":
		return ImportanceMedium, nil
	case "high", "3":
		return ImportanceHigh, nil
	}
	return ImportanceUnknown, fmt.Errorf("unknown importance %q", s)
}

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceMedium:
		return "medium"
	case ImportanceHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Valid reports whether i is one of low, medium or high.
func (i Importance) Valid() bool {
	return i >= ImportanceLow && i <= ImportanceHigh
}

// MarshalText encodes the importance by name.
func (i Importance) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("cannot marshal importance %d", int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText decodes an importance name or ordinal.
func (i *Importance) UnmarshalText(text []byte) error {
	parsed, err := ParseImportance(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// EconomicEvent is a single scheduled economic release as seen in one snapshot.
// EventID is stable across snapshots and unique within one.
type EconomicEvent struct {
	EventID     string              `json:"event_id"`
	ScheduledAt time.Time           `json:"scheduled_at"`
	Country     string              `json:"country"`
	Name        string              `json:"name"`
	Importance  Importance          `json:"importance"`
	Actual      decimal.NullDecimal `json:"actual"`
	Forecast    decimal.NullDecimal `json:"forecast"`
	Previous    decimal.NullDecimal `json:"previous"`
	Currency    string              `json:"currency,omitempty"`
	Unit        string              `json:"unit,omitempty"`
	Category    string              `json:"category,omitempty"`
}

// Validate checks the fields every analyzer relies on.
func (e *EconomicEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return DataError{Field: "event_id", Err: ErrMissingEventID}
	}
	if !e.Importance.Valid() {
		return DataError{EventID: e.EventID, Field: "importance", Err: ErrInvalidValue}
	}
	return nil
}

// HasActual reports whether the announced value is populated.
func (e *EconomicEvent) HasActual() bool {
	return e.Actual.Valid
}

// HasForecast reports whether a forecast is populated.
func (e *EconomicEvent) HasForecast() bool {
	return e.Forecast.Valid
}
