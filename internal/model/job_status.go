package model

import "fmt"

// JobStatus mirrors the job_status enum in PostgreSQL.
//
// Valid status graph:
//
//	draft ──► pending_approval ──► active ◄──► paused
//	              ▲      │           │            │
//	              │      ▼           ▼            ▼
//	              └── rejected     closed / expired
//
// closed and expired are terminal states.
type JobStatus string

const (
	JobDraft           JobStatus = "draft"
	JobPendingApproval JobStatus = "pending_approval"
	JobActive          JobStatus = "active"
	JobPaused          JobStatus = "paused"
	JobClosed          JobStatus = "closed"
	JobExpired         JobStatus = "expired"
	JobRejected        JobStatus = "rejected"
)

// validJobTransitions lists every allowed (from → to) pair.
var validJobTransitions = map[JobStatus][]JobStatus{
	JobDraft:           {JobPendingApproval},
	JobPendingApproval: {JobActive, JobRejected},
	JobActive:          {JobPaused, JobClosed, JobExpired},
	JobPaused:          {JobActive, JobClosed, JobExpired},
	JobRejected:        {JobPendingApproval},
	// closed and expired are terminal
}

// ParseJobStatus converts a raw string to a JobStatus, returning an error
// for unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	switch st {
	case JobDraft, JobPendingApproval, JobActive, JobPaused,
		JobClosed, JobExpired, JobRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsJobTransitionAllowed returns true when moving from → to is permitted by
// the posting lifecycle.
func IsJobTransitionAllowed(from, to JobStatus) bool {
	for _, s := range validJobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
