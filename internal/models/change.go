package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ChangeKind classifies how a forecast moved between two snapshots.
type ChangeKind string

const (
	ChangeNoChange ChangeKind = "no_change"
	ChangeIncrease ChangeKind = "increase"
	ChangeDecrease ChangeKind = "decrease"
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeNoChange, ChangeIncrease, ChangeDecrease, ChangeAdded, ChangeRemoved:
		return true
	}
	return false
}

// Sentinel reports whether the kind carries the ±100% sentinel instead of a ratio.
func (k ChangeKind) Sentinel() bool {
	return k == ChangeAdded || k == ChangeRemoved
}

// ChangeRecord describes a forecast movement for one event between two snapshots.
//
// ChangePercentage is undefined (Valid=false) when the old forecast is zero.
// For added and removed records it holds the ±100 sentinel, not a true ratio.
type ChangeRecord struct {
	EventID          string              `json:"event_id"`
	OldForecast      decimal.NullDecimal `json:"old_forecast"`
	NewForecast      decimal.NullDecimal `json:"new_forecast"`
	ChangeAmount     decimal.Decimal     `json:"change_amount"`
	ChangePercentage decimal.NullDecimal `json:"change_percentage"`
	ChangeKind       ChangeKind          `json:"change_kind"`
}

// AbsPercentage returns |ChangePercentage| and whether it is defined.
func (c *ChangeRecord) AbsPercentage() (decimal.Decimal, bool) {
	if !c.ChangePercentage.Valid {
		return decimal.Zero, false
	}
	return c.ChangePercentage.Decimal.Abs(), true
}

// Validate checks the invariants between the forecast pair and the kind.
func (c *ChangeRecord) Validate() error {
	if c.EventID == "" {
		return errors.New("event ID must not be empty")
	}
	if !c.ChangeKind.Valid() {
		return errors.New("change kind must be one of no_change, increase, decrease, added, removed")
	}
	switch c.ChangeKind {
	case ChangeAdded:
		if !c.NewForecast.Valid {
			return errors.New("added change must carry a new forecast")
		}
		if !c.ChangePercentage.Valid || !c.ChangePercentage.Decimal.Equal(decimal.NewFromInt(100)) {
			return errors.New("added change must carry change percentage 100")
		}
	case ChangeRemoved:
		if !c.OldForecast.Valid || c.NewForecast.Valid {
			return errors.New("removed change must carry only an old forecast")
		}
		if !c.ChangePercentage.Valid || !c.ChangePercentage.Decimal.Equal(decimal.NewFromInt(-100)) {
			return errors.New("removed change must carry change percentage -100")
		}
	default:
		if !c.OldForecast.Valid || !c.NewForecast.Valid {
			return errors.New("forecast change must carry both forecasts")
		}
		if c.OldForecast.Decimal.IsZero() && c.ChangePercentage.Valid {
			return errors.New("change percentage must be undefined for a zero baseline")
		}
	}
	return nil
}
