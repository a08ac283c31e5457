package models

import (
	"errors"
	"fmt"
	"time"
)

// Snapshot is a point-in-time collection of events produced by one fetch.
type Snapshot struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	TakenAt time.Time       `json:"taken_at"`
	Events  []EconomicEvent `json:"events"`
}

// Validate checks that the snapshot is identified and that event IDs are unique.
// Individual malformed events are not an error here; analyzers skip them.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if s.Source == "" {
		return errors.New("snapshot source must not be empty")
	}
	if s.TakenAt.IsZero() {
		return errors.New("snapshot taken_at must be set")
	}
	seen := make(map[string]struct{}, len(s.Events))
	for _, e := range s.Events {
		if e.EventID == "" {
			continue
		}
		if _, dup := seen[e.EventID]; dup {
			return fmt.Errorf("duplicate event ID %s in snapshot", e.EventID)
		}
		seen[e.EventID] = struct{}{}
	}
	return nil
}

// Index maps event IDs to events, skipping events without an ID.
func (s *Snapshot) Index() map[string]EconomicEvent {
	idx := make(map[string]EconomicEvent, len(s.Events))
	for _, e := range s.Events {
		if e.EventID != "" {
			idx[e.EventID] = e
		}
	}
	return idx
}
