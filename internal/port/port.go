// Package port declares the storage contracts the swipe service consumes.
// Adapters live under internal/store; the engine never performs I/O itself.
package port

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/saved"
)

// JobFilter narrows what FetchActiveJobs loads. An empty Statuses slice
// means status = active.
type JobFilter struct {
	Statuses   []model.JobStatus
	EmployerID string
}

// DataPort is the contract through which the engine reads job and decision
// data and persists outcomes.
type DataPort interface {
	FetchActiveJobs(ctx context.Context, filter JobFilter) ([]model.JobPosting, error)
	FetchDecided(ctx context.Context, seekerID string) (map[string]struct{}, error)
	FetchSavedSet(ctx context.Context, seekerID string) (saved.Set, error)
	// Persist executes intents in order. A duplicate application must not
	// stop the remaining intents; it is reported as a *PersistError with
	// Kind DuplicateApplication once every intent has been attempted.
	Persist(ctx context.Context, intents []intent.Intent) error
}

// ProfileStore reads and writes candidate profiles.
type ProfileStore interface {
	FetchProfile(ctx context.Context, seekerID string) (*model.CandidateProfile, error)
	UpsertProfile(ctx context.Context, p *model.CandidateProfile) error
}

// JobStore is the employer/admin surface over postings.
type JobStore interface {
	FetchJob(ctx context.Context, jobID string) (*model.JobPosting, error)
	SaveJob(ctx context.Context, j *model.JobPosting) error
	// UpdateJobStatus performs a compare-and-set from → to; it returns
	// ErrNotFound when no row has id jobID and status from.
	UpdateJobStatus(ctx context.Context, jobID string, from, to model.JobStatus, reason string) error
	// ExpireJobs moves every active or paused posting whose expiry has
	// passed to expired and returns their ids.
	ExpireJobs(ctx context.Context, now time.Time) ([]string, error)
}

// ApplicationStore is the employer surface over applications.
type ApplicationStore interface {
	FetchApplication(ctx context.Context, appID string) (*model.Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.Application, error)
	UpdateApplicationStatus(ctx context.Context, appID string, from, to model.ApplicationStatus) (*model.Application, error)
}

// ApplicationFilter selects applications by owner; at least one field is set.
type ApplicationFilter struct {
	ApplicantID string
	EmployerID  string
	JobID       string
}

// Store bundles every contract a full adapter implements.
type Store interface {
	DataPort
	ProfileStore
	JobStore
	ApplicationStore
	Close()
}

// ErrNotFound is returned when a row is missing.
var ErrNotFound = errors.New("not found")

// ErrAlreadyDecided is wrapped in a PersistError of Kind Other when a pass
// swipe hits the (seeker, job) uniqueness constraint.
var ErrAlreadyDecided = errors.New("swipe already recorded")

// PersistErrorKind distinguishes duplicate applications from other failures.
type PersistErrorKind int

const (
	Other PersistErrorKind = iota
	DuplicateApplication
)

func (k PersistErrorKind) String() string {
	if k == DuplicateApplication {
		return "duplicate_application"
	}
	return "other"
}

// PersistError is returned by DataPort.Persist.
type PersistError struct {
	Kind  PersistErrorKind
	JobID string
	Err   error
}

func (e *PersistError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persist: %s (job %s)", e.Kind, e.JobID)
	}
	return fmt.Sprintf("persist: %s (job %s): %v", e.Kind, e.JobID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Duplicate builds the error an adapter returns when the application
// uniqueness constraint fired.
func Duplicate(jobID string, cause error) *PersistError {
	return &PersistError{Kind: DuplicateApplication, JobID: jobID, Err: cause}
}

// Failed wraps any other persistence failure.
func Failed(jobID string, cause error) *PersistError {
	return &PersistError{Kind: Other, JobID: jobID, Err: cause}
}

// IsDuplicate reports whether err is, or wraps, a duplicate-application
// PersistError.
func IsDuplicate(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe) && pe.Kind == DuplicateApplication
}
