package swipe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"jobmate/swipe-service/internal/events"
	"jobmate/swipe-service/internal/feed"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
)

// CreateJob stores a new posting for employerID, as a draft or directly
// submitted for approval.
func (s *Service) CreateJob(ctx context.Context, employerID string, j model.JobPosting, submit bool) (*model.JobPosting, error) {
	if employerID == "" {
		return nil, &ValidationError{Msg: "employer id is required"}
	}
	if strings.TrimSpace(j.Title) == "" {
		return nil, &ValidationError{Msg: "title is required"}
	}
	if _, err := model.ParseEmploymentType(string(j.EmploymentType)); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	if j.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMin > *j.SalaryMax {
		return nil, &ValidationError{Msg: "salary min exceeds max"}
	}
	if j.ExperienceRequiredMin != nil && j.ExperienceRequiredMax != nil && *j.ExperienceRequiredMin > *j.ExperienceRequiredMax {
		return nil, &ValidationError{Msg: "experience min exceeds max"}
	}

	j.ID = s.newID()
	j.EmployerID = employerID
	j.Status = model.JobDraft
	if submit {
		j.Status = model.JobPendingApproval
	}
	j.RejectionReason = ""
	j.CreatedAt = s.now()
	if j.ExpiresAt != nil && !j.ExpiresAt.After(j.CreatedAt) {
		return nil, &ValidationError{Msg: "expiry must be in the future"}
	}

	if err := s.store.SaveJob(ctx, &j); err != nil {
		return nil, fmt.Errorf("createJob: %w", err)
	}
	return &j, nil
}

// EmployerJobs lists employerID's own active, pending and draft postings,
// newest first.
func (s *Service) EmployerJobs(ctx context.Context, employerID string) (feed.Feed, error) {
	jobs, err := s.store.FetchActiveJobs(ctx, port.JobFilter{
		Statuses:   []model.JobStatus{model.JobActive, model.JobPendingApproval, model.JobDraft},
		EmployerID: employerID,
	})
	if err != nil {
		return feed.Feed{}, fmt.Errorf("employerJobs: %w", err)
	}
	return s.builder.Build(nil, jobs, nil, nil, feed.Options{
		Visible: feed.EmployerVisibility(employerID),
		Now:     s.now(),
	})
}

// ModerationQueue lists postings waiting for admin approval, newest first.
func (s *Service) ModerationQueue(ctx context.Context) (feed.Feed, error) {
	jobs, err := s.store.FetchActiveJobs(ctx, port.JobFilter{
		Statuses: []model.JobStatus{model.JobPendingApproval},
	})
	if err != nil {
		return feed.Feed{}, fmt.Errorf("moderationQueue: %w", err)
	}
	return s.builder.Build(nil, jobs, nil, nil, feed.Options{Visible: feed.AdminVisibility, Now: s.now()})
}

// ModerateJob approves or rejects a pending posting. Rejection requires a
// reason.
func (s *Service) ModerateJob(ctx context.Context, jobID string, approve bool, reason string) (*model.JobPosting, error) {
	to := model.JobActive
	if approve {
		reason = ""
	} else {
		to, reason = model.JobRejected, strings.TrimSpace(reason)
		if reason == "" {
			return nil, &ValidationError{Msg: "a rejection reason is required"}
		}
	}
	j, err := s.transitionJob(ctx, "", jobID, to, reason, model.JobPendingApproval)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type: events.JobModerated, EmployerID: j.EmployerID, JobID: j.ID, To: string(j.Status), Reason: reason,
	})
	if approve {
		s.publish(ctx, events.Event{Type: events.FeedStale})
	}
	return j, nil
}

// SubmitJob sends a draft, or a rejected posting after edits, for approval.
func (s *Service) SubmitJob(ctx context.Context, employerID, jobID string) (*model.JobPosting, error) {
	return s.transitionJob(ctx, employerID, jobID, model.JobPendingApproval, "")
}

// PauseJob hides an active posting from seekers.
func (s *Service) PauseJob(ctx context.Context, employerID, jobID string) (*model.JobPosting, error) {
	return s.employerTransition(ctx, employerID, jobID, model.JobPaused)
}

// ResumeJob reactivates a paused posting. Only moderation activates a
// pending one.
func (s *Service) ResumeJob(ctx context.Context, employerID, jobID string) (*model.JobPosting, error) {
	return s.employerTransition(ctx, employerID, jobID, model.JobActive, model.JobPaused)
}

// CloseJob permanently closes an active or paused posting.
func (s *Service) CloseJob(ctx context.Context, employerID, jobID string) (*model.JobPosting, error) {
	return s.employerTransition(ctx, employerID, jobID, model.JobClosed)
}

func (s *Service) employerTransition(ctx context.Context, employerID, jobID string, to model.JobStatus, from ...model.JobStatus) (*model.JobPosting, error) {
	j, err := s.transitionJob(ctx, employerID, jobID, to, "", from...)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.FeedStale})
	return j, nil
}

// transitionJob moves jobID to status to. A non-empty employerID must own
// the posting; an empty one acts as admin. When from is given the current
// status must be one of them. The store update is a compare-and-set, so a
// concurrent change surfaces as a *StaleError.
func (s *Service) transitionJob(ctx context.Context, employerID, jobID string, to model.JobStatus, reason string, from ...model.JobStatus) (*model.JobPosting, error) {
	j, err := s.store.FetchJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if employerID != "" && j.EmployerID != employerID {
		return nil, ErrNotFound
	}
	if !model.IsJobTransitionAllowed(j.Status, to) || (len(from) > 0 && !slices.Contains(from, j.Status)) {
		return nil, &ValidationError{
			Msg: fmt.Sprintf("transition %s → %s is not allowed", j.Status, to),
		}
	}

	err = s.store.UpdateJobStatus(ctx, jobID, j.Status, to, reason)
	if errors.Is(err, port.ErrNotFound) {
		return nil, &StaleError{Entity: "job", ID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("transitionJob: %w", err)
	}

	s.log.Info("job status changed",
		zap.String("job_id", jobID), zap.String("from", string(j.Status)), zap.String("to", string(to)))
	j.Status = to
	j.RejectionReason = reason
	return j, nil
}

// ExpireJobs moves every active or paused posting whose expiry has passed
// to expired.
func (s *Service) ExpireJobs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ExpireJobs(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("expireJobs: %w", err)
	}
	if len(ids) > 0 {
		s.publish(ctx,
			events.Event{Type: events.JobsExpired, JobIDs: ids},
			events.Event{Type: events.FeedStale},
		)
	}
	return ids, nil
}
