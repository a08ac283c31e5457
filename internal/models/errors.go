package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEventID marks an event without identity; it is skipped.
	ErrMissingEventID = errors.New("missing event id")
	// ErrMissingValue marks a numeric field required by a computation.
	ErrMissingValue = errors.New("missing value")
	// ErrInvalidValue marks a field outside its allowed domain.
	ErrInvalidValue = errors.New("invalid value")
	// ErrZeroBaseline marks a ratio whose denominator is zero.
	ErrZeroBaseline = errors.New("zero baseline")
)

// DataError reports a per-event data problem. The affected record is skipped
// or carries an undefined metric; the batch it belongs to continues.
type DataError struct {
	EventID string
	Field   string
	Err     error
}

func (e DataError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("data error on %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("data error for event %s on %s: %v", e.EventID, e.Field, e.Err)
}

func (e DataError) Unwrap() error {
	return e.Err
}
