// Package kanban defines the state machine employers move applications
// through once a seeker has applied.
//
// Valid status graph:
//
//	applied ──► viewed ──► shortlisted ──► interview ──► hired
//	   │  │        │            ▲   │             │
//	   │  └────────┼────────────┘   │             │
//	   └───────────┴────────────────┴─────────────┴──► rejected / withdrawn
//
// hired, rejected and withdrawn are terminal states.
package kanban

import (
	"fmt"

	"jobmate/swipe-service/internal/model"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[model.ApplicationStatus][]model.ApplicationStatus{
	model.ApplicationApplied: {
		model.ApplicationViewed, model.ApplicationShortlisted,
		model.ApplicationRejected, model.ApplicationWithdrawn,
	},
	model.ApplicationViewed: {
		model.ApplicationShortlisted, model.ApplicationRejected, model.ApplicationWithdrawn,
	},
	model.ApplicationShortlisted: {
		model.ApplicationInterview, model.ApplicationRejected, model.ApplicationWithdrawn,
	},
	model.ApplicationInterview: {
		model.ApplicationHired, model.ApplicationRejected, model.ApplicationWithdrawn,
	},
	// hired, rejected and withdrawn are terminal: no outgoing transitions
}

// ParseStatus converts a raw string to an application status, returning an
// error for unknown values.
func ParseStatus(s string) (model.ApplicationStatus, error) {
	st := model.ApplicationStatus(s)
	switch st {
	case model.ApplicationApplied, model.ApplicationViewed, model.ApplicationShortlisted,
		model.ApplicationInterview, model.ApplicationHired, model.ApplicationRejected,
		model.ApplicationWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to model.ApplicationStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state, no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
func IsTerminal(s model.ApplicationStatus) bool {
	_, ok := validTransitions[s]
	return !ok
}

// IsWithdrawal returns true when the seeker, not the employer, ended the
// application. Only the applicant may perform this transition.
func IsWithdrawal(s model.ApplicationStatus) bool { return s == model.ApplicationWithdrawn }
