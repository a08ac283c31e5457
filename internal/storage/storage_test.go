package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/models"
)

func newTestStorage(t *testing.T, maxSnapshots int) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "econoracle.db"), maxSnapshots, 0o755)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSnapshot(id, source string, takenAt time.Time, eventIDs ...string) models.Snapshot {
	snap := models.Snapshot{ID: id, Source: source, TakenAt: takenAt}
	for i, eid := range eventIDs {
		snap.Events = append(snap.Events, models.EconomicEvent{
			EventID:     eid,
			ScheduledAt: takenAt.Add(time.Duration(i+1) * time.Hour),
			Country:     "US",
			Name:        "CPI YoY",
			Importance:  models.ImportanceHigh,
			Forecast:    decimal.NewNullDecimal(decimal.RequireFromString("2.9")),
		})
	}
	return snap
}

func TestStorage_SaveAndLatestSnapshot(t *testing.T) {
	s := newTestStorage(t, 10)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	if err := s.SaveSnapshot(ctx, testSnapshot("s1", "daily", t0, "a", "b")); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := s.SaveSnapshot(ctx, testSnapshot("s2", "daily", t0.Add(time.Hour), "c", "b", "a")); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := s.SaveSnapshot(ctx, testSnapshot("w1", "weekly", t0.Add(2*time.Hour), "z")); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := s.LatestSnapshot(ctx, "daily")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if got.ID != "s2" {
		t.Errorf("Expected snapshot s2, got %s", got.ID)
	}
	if !got.TakenAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expected taken_at %v, got %v", t0.Add(time.Hour), got.TakenAt)
	}

	want := []string{"c", "b", "a"}
	if len(got.Events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(got.Events))
	}
	for i, id := range want {
		if got.Events[i].EventID != id {
			t.Errorf("Event %d: expected %s, got %s", i, id, got.Events[i].EventID)
		}
	}
	if !got.Events[0].Forecast.Valid || !got.Events[0].Forecast.Decimal.Equal(decimal.RequireFromString("2.9")) {
		t.Errorf("Forecast did not round trip: %+v", got.Events[0].Forecast)
	}
	if got.Events[0].Actual.Valid {
		t.Errorf("Expected undefined actual, got %s", got.Events[0].Actual.Decimal)
	}
}

func TestStorage_LatestSnapshotNotFound(t *testing.T) {
	s := newTestStorage(t, 10)

	_, err := s.LatestSnapshot(context.Background(), "daily")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("Expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStorage_SaveSnapshotValidation(t *testing.T) {
	s := newTestStorage(t, 10)
	ctx := context.Background()
	t0 := time.Now()

	tests := []struct {
		name string
		snap models.Snapshot
	}{
		{"missing id", testSnapshot("", "daily", t0, "a")},
		{"missing source", testSnapshot("s", "", t0, "a")},
		{"zero time", testSnapshot("s", "daily", time.Time{}, "a")},
		{"duplicate events", testSnapshot("s", "daily", t0, "a", "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SaveSnapshot(ctx, tt.snap); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	// A failed save leaves nothing behind.
	if _, err := s.LatestSnapshot(ctx, "daily"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Expected no snapshot after failed saves, got %v", err)
	}
}

func TestStorage_SaveSnapshotSkipsEventsWithoutID(t *testing.T) {
	s := newTestStorage(t, 10)
	ctx := context.Background()

	snap := testSnapshot("s1", "daily", time.Now(), "a", "", "b")
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	got, err := s.LatestSnapshot(ctx, "daily")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if len(got.Events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(got.Events))
	}
}

func TestStorage_Rotate(t *testing.T) {
	s := newTestStorage(t, 2)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := range 4 {
		id := fmt.Sprintf("d%d", i)
		if err := s.SaveSnapshot(ctx, testSnapshot(id, "daily", t0.Add(time.Duration(i)*time.Hour), "a")); err != nil {
			t.Fatalf("SaveSnapshot %s failed: %v", id, err)
		}
	}
	if err := s.SaveSnapshot(ctx, testSnapshot("w0", "weekly", t0, "a")); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	removed, err := s.Rotate(ctx, 0)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 snapshots removed, got %d", removed)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshot_events`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 snapshot events left, got %d", count)
	}

	latest, err := s.LatestSnapshot(ctx, "daily")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if latest.ID != "d3" {
		t.Errorf("Expected d3, got %s", latest.ID)
	}
}

func TestStorage_Notifications(t *testing.T) {
	s := newTestStorage(t, 10)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rows := []Notification{
		{DecisionID: "d1", EventID: "a", Kind: models.KindNewEvent, Channel: "telegram", SentAt: now.Add(-3 * time.Hour), OK: true},
		{DecisionID: "d2", EventID: "b", Kind: models.KindActualAnnouncement, Channel: "discord", SentAt: now.Add(-time.Hour), OK: false, Detail: "HTTP 500"},
		{DecisionID: "d3", EventID: "c", Kind: models.KindAIReport, Channel: "telegram", SentAt: now, OK: true},
	}
	for _, n := range rows {
		if err := s.RecordNotification(ctx, n); err != nil {
			t.Fatalf("RecordNotification failed: %v", err)
		}
	}

	got, err := s.RecentNotifications(ctx, now.Add(-2*time.Hour), 10)
	if err != nil {
		t.Fatalf("RecentNotifications failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(got))
	}
	if got[0].EventID != "c" || got[1].EventID != "b" {
		t.Errorf("Expected newest first [c b], got [%s %s]", got[0].EventID, got[1].EventID)
	}
	if got[1].OK || got[1].Detail != "HTTP 500" || got[1].Kind != models.KindActualAnnouncement {
		t.Errorf("Unexpected row: %+v", got[1])
	}
	if got[0].ID == "" {
		t.Error("Expected generated ID")
	}
	if !got[0].SentAt.Equal(now) {
		t.Errorf("Expected sent_at %v, got %v", now, got[0].SentAt)
	}

	limited, err := s.RecentNotifications(ctx, time.Time{}, 1)
	if err != nil {
		t.Fatalf("RecentNotifications failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(limited))
	}

	if _, err := s.Rotate(ctx, 2*time.Hour); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	all, _ := s.RecentNotifications(ctx, time.Time{}, 10)
	if len(all) != 2 {
		t.Errorf("Expected 2 notifications after audit rotation, got %d", len(all))
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:", 0, 0o755)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.SaveSnapshot(context.Background(), testSnapshot("m1", "daily", time.Now(), "a")); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := s.LatestSnapshot(context.Background(), "daily"); err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  ", 0, 0o755); err == nil {
		t.Error("Expected error for empty path")
	}
}
