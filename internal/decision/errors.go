package decision

import (
	"errors"
	"fmt"

	"jobmate/swipe-service/internal/model"
)

// ErrConflict is returned when an apply or pass targets a job the seeker has
// already decided on. It is advisory: the storage layer's uniqueness
// constraint remains the authority.
var ErrConflict = errors.New("decision already recorded")

// ConflictError carries the pair that conflicted. It matches ErrConflict
// under errors.Is.
type ConflictError struct {
	SeekerID string
	JobID    string
	Action   model.Action
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s on job %s by %s: %v", e.Action, e.JobID, e.SeekerID, ErrConflict)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError wraps a user-facing validation message. Never retried.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
