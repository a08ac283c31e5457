package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rewired-gh/econoracle/internal/models"
)

// ErrReservationLost is returned by Commit when the caller no longer holds the
// reservation, either because another decision reserved the key after this
// one lapsed or because the key was committed in the meantime.
var ErrReservationLost = errors.New("reservation lost")

// CooldownStore is the ledger behind the gate. Implementations must make
// TryReserve atomic per key: of any number of concurrent callers, at most one
// may succeed while the key is cooling down or reserved.
type CooldownStore interface {
	// TryReserve succeeds when key has no live reservation and its last send
	// is at least cooldown before now. On success the key is reserved for
	// owner until now+hold.
	TryReserve(ctx context.Context, key models.CooldownKey, owner string, now time.Time, cooldown, hold time.Duration) (bool, error)
	// Commit records a successful send at now and clears the reservation.
	// It fails with ErrReservationLost, leaving the entry untouched, unless
	// owner still holds the reservation or the key has no entry at all.
	Commit(ctx context.Context, key models.CooldownKey, owner string, now time.Time) error
	// Release drops owner's reservation without recording a send. Releasing
	// a reservation held by someone else is a no-op.
	Release(ctx context.Context, key models.CooldownKey, owner string) error
	// Sweep removes entries whose last send is older than maxAge and
	// reservations that expired without a send. It returns the number removed.
	Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
	// Get returns the entry for key, if any.
	Get(ctx context.Context, key models.CooldownKey) (models.CooldownEntry, bool, error)
}

// MemoryStore is a process-local CooldownStore. One mutex guards the whole
// map, and Sweep takes the same lock as TryReserve.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[models.CooldownKey]*models.CooldownEntry
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[models.CooldownKey]*models.CooldownEntry)}
}

func (s *MemoryStore) TryReserve(_ context.Context, key models.CooldownKey, owner string, now time.Time, cooldown, hold time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if ok {
		if e.ReservedUntil.After(now) {
			return false, nil
		}
		if !e.LastSentAt.IsZero() && now.Sub(e.LastSentAt) < cooldown {
			return false, nil
		}
	} else {
		e = &models.CooldownEntry{Key: key}
		s.entries[key] = e
	}
	e.ReservedUntil = now.Add(hold)
	e.ReservedBy = owner
	return true, nil
}

func (s *MemoryStore) Commit(_ context.Context, key models.CooldownKey, owner string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &models.CooldownEntry{Key: key}
		s.entries[key] = e
	} else if e.ReservedBy != owner {
		return ErrReservationLost
	}
	e.LastSentAt = now
	e.SendCount++
	e.ReservedUntil = time.Time{}
	e.ReservedBy = ""
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key models.CooldownKey, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.ReservedBy != owner {
		return nil
	}
	if e.LastSentAt.IsZero() {
		delete(s.entries, key)
		return nil
	}
	e.ReservedUntil = time.Time{}
	e.ReservedBy = ""
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.ReservedUntil.After(now) {
			continue
		}
		if e.LastSentAt.IsZero() || now.Sub(e.LastSentAt) > maxAge {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Get(_ context.Context, key models.CooldownKey) (models.CooldownEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return models.CooldownEntry{}, false, nil
	}
	return *e, true, nil
}

// Len returns the number of ledger entries, reservations included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
