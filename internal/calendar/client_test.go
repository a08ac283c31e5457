package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/models"
)

const sampleFeed = `{
  "events": [
    {
      "id": "us-nfp-2026-10",
      "date": "2026-10-02T12:30:00Z",
      "country": "United States",
      "event": "Nonfarm Payrolls",
      "impact": "High",
      "actual": "210K",
      "forecast": "185K",
      "previous": 142000,
      "currency": "USD"
    },
    {
      "date": "2026-10-03 09:00",
      "country": "EU",
      "event": "CPI Flash Estimate YoY",
      "impact": 3,
      "actual": null,
      "forecast": "2.1%",
      "previous": "2.2%"
    },
    {
      "id": "bad-date",
      "date": "next thursday",
      "country": "JP",
      "event": "BoJ Rate Decision",
      "impact": "high"
    },
    {
      "id": "bad-impact",
      "date": "2026-10-04",
      "country": "GB",
      "event": "GDP MoM",
      "impact": "critical"
    },
    {
      "id": "bad-forecast",
      "date": "2026-10-05T08:00:00Z",
      "country": "DE",
      "event": "Trade Balance",
      "impact": "medium",
      "forecast": "about 20"
    }
  ]
}`

func TestDecode(t *testing.T) {
	result, err := Decode([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(result.Events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(result.Events))
	}
	if len(result.Skipped) != 3 {
		t.Fatalf("Expected 3 data problems, got %d: %v", len(result.Skipped), result.Skipped)
	}

	nfp := result.Events[0]
	if nfp.EventID != "us-nfp-2026-10" {
		t.Errorf("Expected id us-nfp-2026-10, got %s", nfp.EventID)
	}
	if nfp.Importance != models.ImportanceHigh {
		t.Errorf("Expected high importance, got %s", nfp.Importance)
	}
	if !nfp.Actual.Decimal.Equal(decimal.NewFromInt(210000)) {
		t.Errorf("Expected actual 210000, got %s", nfp.Actual.Decimal)
	}
	if !nfp.Forecast.Decimal.Equal(decimal.NewFromInt(185000)) {
		t.Errorf("Expected forecast 185000, got %s", nfp.Forecast.Decimal)
	}
	if !nfp.Previous.Decimal.Equal(decimal.NewFromInt(142000)) {
		t.Errorf("Expected previous 142000, got %s", nfp.Previous.Decimal)
	}

	cpi := result.Events[1]
	if cpi.EventID == "" {
		t.Error("Expected derived ID for row without id")
	}
	if cpi.EventID != StableID("EU", "CPI Flash Estimate YoY", time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Derived ID is not stable: %s", cpi.EventID)
	}
	if cpi.Actual.Valid {
		t.Error("Expected undefined actual")
	}
	if cpi.Unit != "%" {
		t.Errorf("Expected unit %%, got %q", cpi.Unit)
	}

	partial := result.Events[2]
	if partial.EventID != "bad-forecast" || partial.Forecast.Valid {
		t.Errorf("Expected bad-forecast kept with undefined forecast, got %+v", partial)
	}

	fields := map[string]bool{}
	for _, de := range result.Skipped {
		if !errors.Is(de, models.ErrInvalidValue) {
			t.Errorf("Expected ErrInvalidValue, got %v", de)
		}
		fields[de.EventID+"/"+de.Field] = true
	}
	for _, want := range []string{"bad-date/date", "bad-impact/impact", "bad-forecast/forecast"} {
		if !fields[want] {
			t.Errorf("Missing data problem %s", want)
		}
	}
}

func TestDecode_BareArray(t *testing.T) {
	result, err := Decode([]byte(` [{"id":"x","date":"2026-10-02","country":"US","event":"GDP","impact":"low"}]`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].EventID != "x" {
		t.Errorf("Unexpected events: %+v", result.Events)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte(`{"events": [`)); err == nil {
		t.Error("Expected error for truncated body")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		unit    string
		defined bool
		wantErr bool
	}{
		{"2.9%", "2.9", "%", true, false},
		{"-0.3", "-0.3", "", true, false},
		{"210K", "210000", "", true, false},
		{"1.2M", "1200000", "", true, false},
		{"-4.5b", "-4500000000", "", true, false},
		{"1,234.5", "1234.5", "", true, false},
		{"", "", "", false, false},
		{"-", "", "", false, false},
		{"N/A", "", "", false, false},
		{"abc", "", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, unit, err := ParseValue(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseValue(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got.Valid != tt.defined {
				t.Fatalf("ParseValue(%q) valid = %v, want %v", tt.in, got.Valid, tt.defined)
			}
			if tt.defined && !got.Decimal.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseValue(%q) = %s, want %s", tt.in, got.Decimal, tt.want)
			}
			if unit != tt.unit {
				t.Errorf("ParseValue(%q) unit = %q, want %q", tt.in, unit, tt.unit)
			}
		})
	}
}

func TestFetchEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("Expected path /events, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "2026-10-01" || r.URL.Query().Get("to") != "2026-10-03" {
			t.Errorf("Unexpected window: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Expected Accept header, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 3, time.Millisecond)
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)

	result, err := client.FetchEvents(context.Background(), from, to)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	// The CPI row at 2026-10-03 09:00 and bad-forecast on the 5th fall outside the window.
	if len(result.Events) != 1 || result.Events[0].EventID != "us-nfp-2026-10" {
		t.Errorf("Expected only the payrolls event, got %+v", result.Events)
	}
}

func TestFetchEvents_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"events": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 3, time.Millisecond)
	result, err := client.FetchEvents(context.Background(), time.Now(), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
	if len(result.Events) != 0 {
		t.Errorf("Expected no events, got %d", len(result.Events))
	}
}

func TestFetchEvents_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 2, time.Millisecond)
	if _, err := client.FetchEvents(context.Background(), time.Now(), time.Now()); err == nil {
		t.Fatal("Expected error after retries")
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchEvents_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 3, time.Millisecond)
	if _, err := client.FetchEvents(context.Background(), time.Now(), time.Now()); err == nil {
		t.Fatal("Expected error for 401")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.json")
	if err := os.WriteFile(path, []byte(sampleFeed), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	result, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(result.Events) != 3 {
		t.Errorf("Expected 3 events, got %d", len(result.Events))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.json")
	if err := os.WriteFile(path, []byte(sampleFeed), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	src := NewFileSource(path)
	from := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 3, 23, 59, 0, 0, time.UTC)
	result, err := src.FetchEvents(context.Background(), from, to)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if len(result.Events) != 2 {
		t.Errorf("Expected 2 events in window, got %d", len(result.Events))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.FetchEvents(ctx, from, to); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
