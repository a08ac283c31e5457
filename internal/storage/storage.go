// Package storage persists calendar snapshots and the notification audit log
// in SQLite.
//
// Snapshots let a restarted process diff against what it saw last instead of
// announcing every event as new. The audit log records every send attempt.
// Neither table is consulted by the notification gate: the cooldown ledger
// lives in a gate.CooldownStore.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/econoracle/internal/models"
)

//go:embed schema.sql
var schema string

// ErrSnapshotNotFound is returned when no snapshot exists for a source.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Notification is one row of the audit log.
type Notification struct {
	ID         string                  `json:"id"`
	DecisionID string                  `json:"decision_id"`
	EventID    string                  `json:"event_id"`
	Kind       models.NotificationKind `json:"kind"`
	Channel    string                  `json:"channel"`
	SentAt     time.Time               `json:"sent_at"`
	OK         bool                    `json:"ok"`
	Detail     string                  `json:"detail,omitempty"`
}

// Storage is a SQLite-backed store. It is safe for concurrent use.
type Storage struct {
	db                    *sql.DB
	path                  string
	maxSnapshotsPerSource int
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database. maxSnapshotsPerSource bounds
// what Rotate keeps; values <= 0 keep everything.
func Open(path string, maxSnapshotsPerSource int, dirPermissions os.FileMode) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db, path: path, maxSnapshotsPerSource: maxSnapshotsPerSource}, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Storage) Path() string {
	return s.path
}

// SaveSnapshot stores snap and all of its events in one transaction.
// Events without an ID are dropped.
func (s *Storage) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := 0
	for _, e := range snap.Events {
		if e.EventID != "" {
			stored++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots(id, source, taken_at, event_count) VALUES(?,?,?,?)`,
		snap.ID, snap.Source, snap.TakenAt.UnixMilli(), stored,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_events(snapshot_id, seq, event_id, scheduled_at, payload) VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	seq := 0
	for _, e := range snap.Events {
		if e.EventID == "" {
			continue
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, seq, e.EventID, e.ScheduledAt.UnixMilli(), string(payload)); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.EventID, err)
		}
		seq++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// LatestSnapshot returns the most recently taken snapshot for source, events in
// their saved order. ErrSnapshotNotFound is returned when there is none.
func (s *Storage) LatestSnapshot(ctx context.Context, source string) (models.Snapshot, error) {
	var (
		snap    models.Snapshot
		takenAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, taken_at FROM snapshots WHERE source = ? ORDER BY taken_at DESC, rowid DESC LIMIT 1`,
		source,
	).Scan(&snap.ID, &snap.Source, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, source)
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	snap.TakenAt = time.UnixMilli(takenAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshot_events WHERE snapshot_id = ? ORDER BY seq`, snap.ID)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to query snapshot events: %w", err)
	}
	defer rows.Close()

	snap.Events = make([]models.EconomicEvent, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return models.Snapshot{}, fmt.Errorf("failed to scan event: %w", err)
		}
		var e models.EconomicEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return models.Snapshot{}, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		snap.Events = append(snap.Events, e)
	}
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read snapshot events: %w", err)
	}
	return snap, nil
}

// RecordNotification appends n to the audit log, assigning an ID and timestamp if unset.
func (s *Storage) RecordNotification(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, decision_id, event_id, kind, channel, sent_at, ok, detail)
		 VALUES(?,?,?,?,?,?,?,?)`,
		n.ID, n.DecisionID, n.EventID, string(n.Kind), n.Channel, n.SentAt.UnixMilli(), n.OK, nullStr(n.Detail),
	)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// RecentNotifications returns up to limit audit rows sent at or after since, newest first.
func (s *Storage) RecentNotifications(ctx context.Context, since time.Time, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, decision_id, event_id, kind, channel, sent_at, ok, detail
		 FROM notifications WHERE sent_at >= ? ORDER BY sent_at DESC, rowid DESC LIMIT ?`,
		since.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		var (
			n      Notification
			kind   string
			sentAt int64
			detail sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.DecisionID, &n.EventID, &kind, &n.Channel, &sentAt, &n.OK, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Kind = models.NotificationKind(kind)
		n.SentAt = time.UnixMilli(sentAt).UTC()
		n.Detail = detail.String
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return out, nil
}

// Rotate deletes all but the newest maxSnapshotsPerSource snapshots of every
// source, and audit rows older than auditRetention (when positive). It returns
// the number of snapshots removed.
func (s *Storage) Rotate(ctx context.Context, auditRetention time.Duration) (int, error) {
	removed := 0
	if s.maxSnapshotsPerSource > 0 {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (PARTITION BY source ORDER BY taken_at DESC, rowid DESC) AS rn
					FROM snapshots
				) WHERE rn > ?
			)`, s.maxSnapshotsPerSource)
		if err != nil {
			return 0, fmt.Errorf("failed to rotate snapshots: %w", err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM snapshot_events WHERE snapshot_id NOT IN (SELECT id FROM snapshots)`); err != nil {
			return removed, fmt.Errorf("failed to rotate snapshot events: %w", err)
		}
	}

	if auditRetention > 0 {
		cutoff := time.Now().Add(-auditRetention).UnixMilli()
		if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE sent_at < ?`, cutoff); err != nil {
			return removed, fmt.Errorf("failed to rotate notifications: %w", err)
		}
	}
	return removed, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
