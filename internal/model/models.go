// Package model defines the shared data structures of the swipe service:
// candidate profiles, job postings, swipe records and applications.
package model

import (
	"fmt"
	"time"
)

// EmploymentType mirrors the employment_type enum in PostgreSQL.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full-time"
	EmploymentPartTime   EmploymentType = "part-time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
	EmploymentRemote     EmploymentType = "remote"
	EmploymentHybrid     EmploymentType = "hybrid"
)

// ParseEmploymentType converts a raw string to an EmploymentType, returning
// an error for unknown values.
func ParseEmploymentType(s string) (EmploymentType, error) {
	et := EmploymentType(s)
	switch et {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContract,
		EmploymentInternship, EmploymentRemote, EmploymentHybrid:
		return et, nil
	}
	return "", fmt.Errorf("unknown employment type %q", s)
}

// EducationLevel is informational only; it does not take part in scoring.
type EducationLevel string

const (
	EducationNone       EducationLevel = "none"
	EducationHighSchool EducationLevel = "high_school"
	EducationAssociate  EducationLevel = "associate"
	EducationBachelor   EducationLevel = "bachelor"
	EducationMaster     EducationLevel = "master"
	EducationDoctorate  EducationLevel = "doctorate"
)

// ParseEducationLevel converts a raw string to an EducationLevel. The empty
// string maps to EducationNone.
func ParseEducationLevel(s string) (EducationLevel, error) {
	if s == "" {
		return EducationNone, nil
	}
	el := EducationLevel(s)
	switch el {
	case EducationNone, EducationHighSchool, EducationAssociate,
		EducationBachelor, EducationMaster, EducationDoctorate:
		return el, nil
	}
	return "", fmt.Errorf("unknown education level %q", s)
}

// CandidateProfile is a read-only snapshot of a job seeker, taken once per
// feed build.
type CandidateProfile struct {
	ID                 string           `json:"id"`
	Skills             []string         `json:"skills"`
	ExperienceYears    float64          `json:"experienceYears"`
	EducationLevel     EducationLevel   `json:"educationLevel"`
	PreferredLocations []string         `json:"preferredLocations"`
	PreferredJobTypes  []EmploymentType `json:"preferredJobTypes"`
	ExpectedSalaryMin  *float64         `json:"expectedSalaryMin,omitempty"`
	ExpectedSalaryMax  *float64         `json:"expectedSalaryMax,omitempty"`
}

// JobPosting is a job offer as stored by the employer. The matching engine
// never mutates it.
type JobPosting struct {
	ID                    string         `json:"id"`
	EmployerID            string         `json:"employerId"`
	Title                 string         `json:"title"`
	Category              string         `json:"category"`
	EmploymentType        EmploymentType `json:"employmentType"`
	Location              string         `json:"location"`
	IsRemote              bool           `json:"isRemote"`
	SalaryMin             *float64       `json:"salaryMin,omitempty"`
	SalaryMax             *float64       `json:"salaryMax,omitempty"`
	ExperienceRequiredMin *float64       `json:"experienceRequiredMin,omitempty"`
	ExperienceRequiredMax *float64       `json:"experienceRequiredMax,omitempty"`
	SkillsRequired        []string       `json:"skillsRequired"`
	Status                JobStatus      `json:"status"`
	RejectionReason       string         `json:"rejectionReason,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	ExpiresAt             *time.Time     `json:"expiresAt,omitempty"`
}

// IsExpired reports whether the posting's expiry timestamp has passed.
func (j *JobPosting) IsExpired(now time.Time) bool {
	return j.ExpiresAt != nil && !now.Before(*j.ExpiresAt)
}

// Action is a seeker's decision on a job card.
type Action string

const (
	ActionApply  Action = "apply"
	ActionPass   Action = "pass"
	ActionSave   Action = "save"
	ActionUnsave Action = "unsave"
)

// ParseAction converts a raw string to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	switch a {
	case ActionApply, ActionPass, ActionSave, ActionUnsave:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// IsSwipe reports whether the action is recorded in the swipe log
// (apply or pass). Save and unsave are an independent overlay.
func (a Action) IsSwipe() bool { return a == ActionApply || a == ActionPass }

// SwipeRecord is one append-only entry of the swipe log.
type SwipeRecord struct {
	ID        string    `json:"id"`
	SeekerID  string    `json:"seekerId"`
	JobID     string    `json:"jobId"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

// Application is created once per (seeker, job) as a side effect of apply.
type Application struct {
	ID          string            `json:"id"`
	JobID       string            `json:"jobId"`
	ApplicantID string            `json:"applicantId"`
	EmployerID  string            `json:"employerId"`
	Status      ApplicationStatus `json:"status"`
	AppliedAt   time.Time         `json:"appliedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ApplicationStatus mirrors the application_status enum in PostgreSQL.
// Transitions between values are governed by the kanban package.
type ApplicationStatus string

const (
	ApplicationApplied     ApplicationStatus = "applied"
	ApplicationViewed      ApplicationStatus = "viewed"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationInterview   ApplicationStatus = "interview"
	ApplicationHired       ApplicationStatus = "hired"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)
