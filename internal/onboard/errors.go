package onboard

import (
	"errors"
	"fmt"

	"github.com/neulbom/roster/internal/roster"
)

// ErrEmptyBatch is returned when a roster file parses but yields zero
// clean records.
var ErrEmptyBatch = errors.New("onboard: roster produced no records to onboard")

// ErrBatchTooLarge is returned when a roster exceeds the configured
// per-batch row cap.
var ErrBatchTooLarge = errors.New("onboard: roster exceeds the maximum batch size")

// RejectedError carries the row violations that caused a batch to stop
// before any persistence.
type RejectedError struct {
	Violations []roster.Violation
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("onboard: %d row(s) rejected by validation", len(e.Violations))
}

// AccountCreationError reports the record whose account could not be
// created. The whole phase-1 transaction was rolled back: no accounts
// from the batch were persisted.
type AccountCreationError struct {
	StudentID string
	Email     string
	Err       error
}

func (e *AccountCreationError) Error() string {
	return fmt.Sprintf("onboard: create account for %s (%s): %v", e.StudentID, e.Email, e.Err)
}

func (e *AccountCreationError) Unwrap() error {
	return e.Err
}
