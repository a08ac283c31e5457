package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestParseImportance(t *testing.T) {
	tests := []struct {
		in      string
		want    Importance
		wantErr bool
	}{
		{"low", ImportanceLow, false},
		{"Medium", ImportanceMedium, false},
		{" HIGH ", ImportanceHigh, false},
		{"3", ImportanceHigh, false},
		{"critical", ImportanceUnknown, true},
		{"", ImportanceUnknown, true},
	}

	for _, tt := range tests {
		got, err := ParseImportance(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseImportance(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseImportance(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if !(ImportanceLow < ImportanceMedium && ImportanceMedium < ImportanceHigh) {
		t.Error("importance must be ordered low < medium < high")
	}
}

func TestEconomicEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   EconomicEvent
		wantErr error
	}{
		{
			name:  "valid event",
			event: EconomicEvent{EventID: "us-nfp", Importance: ImportanceHigh, ScheduledAt: time.Now()},
		},
		{
			name:    "missing id",
			event:   EconomicEvent{Importance: ImportanceHigh},
			wantErr: ErrMissingEventID,
		},
		{
			name:    "unknown importance",
			event:   EconomicEvent{EventID: "us-nfp"},
			wantErr: ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			var de DataError
			if !errors.As(err, &de) {
				t.Errorf("Validate() error should be a DataError, got %T", err)
			}
		})
	}
}

func TestSnapshotValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		snapshot Snapshot
		wantErr  bool
	}{
		{
			name: "valid snapshot",
			snapshot: Snapshot{
				ID: "snap-1", Source: "daily", TakenAt: now,
				Events: []EconomicEvent{{EventID: "a"}, {EventID: "b"}},
			},
		},
		{
			name:     "empty ID",
			snapshot: Snapshot{Source: "daily", TakenAt: now},
			wantErr:  true,
		},
		{
			name: "duplicate event IDs",
			snapshot: Snapshot{
				ID: "snap-1", Source: "daily", TakenAt: now,
				Events: []EconomicEvent{{EventID: "a"}, {EventID: "a"}},
			},
			wantErr: true,
		},
		{
			name: "malformed event is not a snapshot error",
			snapshot: Snapshot{
				ID: "snap-1", Source: "daily", TakenAt: now,
				Events: []EconomicEvent{{EventID: ""}, {EventID: "a"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snapshot.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Snapshot.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangeRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		change  ChangeRecord
		wantErr bool
	}{
		{
			name: "valid increase",
			change: ChangeRecord{
				EventID: "cpi", OldForecast: dec("2.3"), NewForecast: dec("2.5"),
				ChangeAmount: decimal.RequireFromString("0.2"), ChangePercentage: dec("8.6957"),
				ChangeKind: ChangeIncrease,
			},
		},
		{
			name: "valid added",
			change: ChangeRecord{
				EventID: "cpi", NewForecast: dec("2.5"), ChangeAmount: decimal.RequireFromString("2.5"),
				ChangePercentage: dec("100"), ChangeKind: ChangeAdded,
			},
		},
		{
			name: "added without sentinel",
			change: ChangeRecord{
				EventID: "cpi", NewForecast: dec("2.5"), ChangePercentage: dec("42"), ChangeKind: ChangeAdded,
			},
			wantErr: true,
		},
		{
			name: "removed with new forecast",
			change: ChangeRecord{
				EventID: "cpi", OldForecast: dec("2.5"), NewForecast: dec("2.5"),
				ChangePercentage: dec("-100"), ChangeKind: ChangeRemoved,
			},
			wantErr: true,
		},
		{
			name: "zero baseline with defined percentage",
			change: ChangeRecord{
				EventID: "cpi", OldForecast: dec("0"), NewForecast: dec("1"),
				ChangeAmount: decimal.NewFromInt(1), ChangePercentage: dec("100"), ChangeKind: ChangeIncrease,
			},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			change:  ChangeRecord{EventID: "cpi", ChangeKind: "sideways"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.change.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("ChangeRecord.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func sameNull(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func TestChangeRecordJSONRoundTrip(t *testing.T) {
	orig := ChangeRecord{
		EventID:      "jp-cpi",
		OldForecast:  dec("0"),
		NewForecast:  dec("0.4"),
		ChangeAmount: decimal.RequireFromString("0.4"),
		ChangeKind:   ChangeIncrease,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if v, ok := raw["change_percentage"]; !ok || v != nil {
		t.Errorf("undefined change_percentage should encode as null, got %v", v)
	}

	var back ChangeRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.EventID != orig.EventID || back.ChangeKind != orig.ChangeKind {
		t.Errorf("identity fields differ: %+v vs %+v", back, orig)
	}
	if !sameNull(back.OldForecast, orig.OldForecast) || !sameNull(back.NewForecast, orig.NewForecast) {
		t.Errorf("forecasts differ: %+v vs %+v", back, orig)
	}
	if !back.ChangeAmount.Equal(orig.ChangeAmount) {
		t.Errorf("change amount differs: %s vs %s", back.ChangeAmount, orig.ChangeAmount)
	}
	if back.ChangePercentage.Valid {
		t.Error("undefined change percentage should stay undefined after round trip")
	}
}

func TestSurpriseRecordJSONRoundTrip(t *testing.T) {
	records := []SurpriseRecord{
		{
			EventID:            "us-nfp",
			Actual:             decimal.NewFromInt(210000),
			Forecast:           decimal.NewFromInt(185000),
			SurpriseAmount:     decimal.NewFromInt(25000),
			SurprisePercentage: dec("13.5135135135135135"),
			Magnitude:          MagnitudeMedium,
			Direction:          DirectionPositive,
			MarketImpact:       ImpactHigh,
		},
		{
			EventID:        "de-trade",
			Actual:         decimal.RequireFromString("-1.2"),
			Forecast:       decimal.Zero,
			SurpriseAmount: decimal.RequireFromString("-1.2"),
			Magnitude:      MagnitudeUndefined,
			Direction:      DirectionNegative,
			MarketImpact:   ImpactUndefined,
		},
	}

	for _, orig := range records {
		data, err := json.Marshal(orig)
		if err != nil {
			t.Fatalf("marshal %s: %v", orig.EventID, err)
		}
		var back SurpriseRecord
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", orig.EventID, err)
		}
		if back.EventID != orig.EventID || back.Magnitude != orig.Magnitude ||
			back.Direction != orig.Direction || back.MarketImpact != orig.MarketImpact {
			t.Errorf("enum fields differ for %s: %+v vs %+v", orig.EventID, back, orig)
		}
		if !back.Actual.Equal(orig.Actual) || !back.Forecast.Equal(orig.Forecast) ||
			!back.SurpriseAmount.Equal(orig.SurpriseAmount) {
			t.Errorf("decimal fields differ for %s", orig.EventID)
		}
		if !sameNull(back.SurprisePercentage, orig.SurprisePercentage) {
			t.Errorf("surprise percentage differs for %s: %v vs %v",
				orig.EventID, back.SurprisePercentage, orig.SurprisePercentage)
		}
	}
}

func TestEconomicEventJSONImportanceByName(t *testing.T) {
	e := EconomicEvent{EventID: "x", Importance: ImportanceMedium, Forecast: dec("1.5")}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["importance"] != "medium" {
		t.Errorf("importance should marshal by name, got %v", raw["importance"])
	}
	if raw["actual"] != nil {
		t.Errorf("missing actual should marshal as null, got %v", raw["actual"])
	}

	var back EconomicEvent
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Importance != ImportanceMedium || !sameNull(back.Forecast, e.Forecast) || back.Actual.Valid {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
