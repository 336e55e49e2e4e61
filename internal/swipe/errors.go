package swipe

import (
	"fmt"

	"jobmate/swipe-service/internal/decision"
	"jobmate/swipe-service/internal/port"
)

// ErrNotFound is returned when a job or application is missing or does not
// belong to the caller.
var ErrNotFound = port.ErrNotFound

// ValidationError wraps a user-facing validation message.
type ValidationError = decision.ValidationError

// StaleError reports a status change that lost its compare-and-set to a
// concurrent writer. It matches decision.ErrConflict under errors.Is.
type StaleError struct {
	Entity string // "job" or "application"
	ID     string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s %s changed concurrently; reload and retry", e.Entity, e.ID)
}

func (e *StaleError) Is(target error) bool { return target == decision.ErrConflict }
