// Package swipe wires the matching engine to storage and events.
// It is transport-agnostic: used by both the HTTP handler (httpapi) and the
// gRPC server (grpcserver).
package swipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/swipe-service/internal/decision"
	"jobmate/swipe-service/internal/events"
	"jobmate/swipe-service/internal/feed"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
)

// ─── Service ─────────────────────────────────────────────────────────────────

// Service encapsulates the seeker, employer and admin workflows.
// Per-seeker state (decided and saved sets) is fetched fresh on every call;
// nothing is cached between calls.
type Service struct {
	store    port.Store
	proc     *decision.Processor
	builder  *feed.Builder
	pub      events.Publisher
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
	redFlags []feed.Filter
}

// Options tunes a Service. Zero values select production defaults.
type Options struct {
	RedFlags []string
	Greeting decision.GreetingFunc
	Now      func() time.Time
	NewID    func() string
}

// NewService returns a configured Service.
func NewService(store port.Store, scorer feed.Scorer, pub events.Publisher, log *zap.Logger, opts Options) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	proc := decision.NewProcessor()
	proc.Now = opts.Now
	proc.NewID = opts.NewID
	if opts.Greeting != nil {
		proc.Greeting = opts.Greeting
	}
	return &Service{
		store:    store,
		proc:     proc,
		builder:  feed.NewBuilder(scorer),
		pub:      pub,
		log:      log,
		now:      opts.Now,
		newID:    opts.NewID,
		redFlags: feed.RedFlagFilters(opts.RedFlags),
	}
}

// Outcome is the result of one decision after persistence.
type Outcome struct {
	decision.Result
	// AlreadyApplied is set when storage reported the application as a
	// duplicate; the seeker has applied either way.
	AlreadyApplied bool
}

// ─── Seeker feed ──────────────────────────────────────────────────────────────

// FeedRequest narrows a seeker feed.
type FeedRequest struct {
	Filters []feed.Filter
	Limit   int
}

// Feed builds the ranked feed for seekerID. A seeker without a stored
// profile is scored against an empty one.
func (s *Service) Feed(ctx context.Context, seekerID string, req FeedRequest) (feed.Feed, error) {
	if seekerID == "" {
		return feed.Feed{}, &ValidationError{Msg: "seeker id is required"}
	}

	profile, err := s.store.FetchProfile(ctx, seekerID)
	if errors.Is(err, port.ErrNotFound) {
		s.log.Debug("no profile, scoring against empty profile", zap.String("seeker_id", seekerID))
		profile = &model.CandidateProfile{ID: seekerID}
	} else if err != nil {
		return feed.Feed{}, fmt.Errorf("feed profile: %w", err)
	}

	jobs, err := s.store.FetchActiveJobs(ctx, port.JobFilter{})
	if err != nil {
		return feed.Feed{}, fmt.Errorf("feed jobs: %w", err)
	}
	decided, err := s.store.FetchDecided(ctx, seekerID)
	if err != nil {
		return feed.Feed{}, fmt.Errorf("feed decided: %w", err)
	}
	savedSet, err := s.store.FetchSavedSet(ctx, seekerID)
	if err != nil {
		return feed.Feed{}, fmt.Errorf("feed saved: %w", err)
	}

	filters := make([]feed.Filter, 0, len(s.redFlags)+len(req.Filters))
	filters = append(filters, s.redFlags...)
	filters = append(filters, req.Filters...)

	out, err := s.builder.Build(profile, jobs, decided, savedSet, feed.Options{
		Visible: feed.SeekerVisibility,
		Filters: filters,
		Limit:   req.Limit,
		Now:     s.now(),
	})
	if err != nil {
		return feed.Feed{}, &ValidationError{Msg: err.Error()}
	}
	return out, nil
}

// SavedJobs returns the seeker's saved postings that still exist, in the
// order of the saved set.
func (s *Service) SavedJobs(ctx context.Context, seekerID string) ([]model.JobPosting, error) {
	set, err := s.store.FetchSavedSet(ctx, seekerID)
	if err != nil {
		return nil, fmt.Errorf("savedJobs: %w", err)
	}
	jobs := make([]model.JobPosting, 0, len(set))
	for _, id := range set.IDs() {
		j, err := s.store.FetchJob(ctx, id)
		if errors.Is(err, port.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("savedJobs: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

// ─── Decisions ────────────────────────────────────────────────────────────────

// Decide applies action on jobID for seekerID and persists the emitted
// intents.
//
// A decision on an already-decided job returns a *decision.ConflictError,
// whether the engine noticed it or the storage uniqueness constraint did.
// Any other persistence failure is returned together with the rolled-back
// Outcome.
func (s *Service) Decide(ctx context.Context, seekerID, jobID string, action model.Action) (*Outcome, error) {
	if _, err := model.ParseAction(string(action)); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	if seekerID == "" || jobID == "" {
		return nil, &ValidationError{Msg: "seeker id and job id are required"}
	}

	job, err := s.store.FetchJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	decided, err := s.store.FetchDecided(ctx, seekerID)
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}
	savedSet, err := s.store.FetchSavedSet(ctx, seekerID)
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}

	res, err := s.proc.Decide(decision.Input{
		SeekerID: seekerID,
		Job:      job,
		Action:   action,
		Decided:  decided,
		Saved:    savedSet,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Intents) == 0 {
		return &Outcome{Result: res}, nil
	}

	persistErr := s.store.Persist(ctx, res.Intents)
	out, already, err := decision.Reconcile(res, persistErr)
	if err != nil {
		out = s.keepAutoSave(ctx, seekerID, out)
		if errors.Is(err, port.ErrAlreadyDecided) {
			return nil, &decision.ConflictError{SeekerID: seekerID, JobID: jobID, Action: action}
		}
		s.log.Error("persist decision failed",
			zap.String("seeker_id", seekerID), zap.String("job_id", jobID),
			zap.String("action", string(action)), zap.Error(err))
		return &Outcome{Result: out}, err
	}

	s.publishDecision(ctx, seekerID, job, out, already)
	return &Outcome{Result: out, AlreadyApplied: already}, nil
}

// keepAutoSave writes the save implied by a failed apply in its own batch.
// If that fails too the job is dropped from the returned saved set.
func (s *Service) keepAutoSave(ctx context.Context, seekerID string, out decision.Result) decision.Result {
	pending := out.AutoSaveIntents()
	if len(pending) == 0 {
		return out
	}
	if err := s.store.Persist(ctx, pending); err != nil {
		s.log.Warn("auto-save after failed apply",
			zap.String("seeker_id", seekerID), zap.String("job_id", out.JobID), zap.Error(err))
		out.Saved = out.Saved.Unsave(out.JobID)
		out.IsSaved = false
	}
	return out
}

func (s *Service) publishDecision(ctx context.Context, seekerID string, job *model.JobPosting, out decision.Result, already bool) {
	evs := []events.Event{{Type: events.JobDecided, SeekerID: seekerID, JobID: job.ID, Action: string(out.Action)}}
	if out.Action == model.ActionApply && !already && out.Application != nil {
		evs = append(evs, events.Event{
			Type:          events.ApplicationCreated,
			SeekerID:      seekerID,
			EmployerID:    job.EmployerID,
			JobID:         job.ID,
			ApplicationID: out.Application.ID,
		})
	}
	if out.Action.IsSwipe() {
		evs = append(evs, events.Event{Type: events.FeedStale, SeekerID: seekerID})
	}
	s.publish(ctx, evs...)
}

// ToggleSave flips the saved state of jobID and reports the new state.
func (s *Service) ToggleSave(ctx context.Context, seekerID, jobID string) (bool, error) {
	savedSet, err := s.store.FetchSavedSet(ctx, seekerID)
	if err != nil {
		return false, fmt.Errorf("toggleSave: %w", err)
	}
	res, err := s.proc.Toggle(seekerID, jobID, savedSet, nil)
	if err != nil {
		return false, err
	}
	if err := s.store.Persist(ctx, res.Intents); err != nil {
		return savedSet.Contains(jobID), fmt.Errorf("toggleSave: %w", err)
	}
	return res.IsSaved, nil
}

// ─── Profiles ─────────────────────────────────────────────────────────────────

// UpsertProfile validates and stores a candidate profile.
func (s *Service) UpsertProfile(ctx context.Context, p *model.CandidateProfile) error {
	if p == nil || p.ID == "" {
		return &ValidationError{Msg: "profile id is required"}
	}
	if p.ExperienceYears < 0 {
		return &ValidationError{Msg: "experience years must not be negative"}
	}
	if _, err := model.ParseEducationLevel(string(p.EducationLevel)); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	for _, t := range p.PreferredJobTypes {
		if _, err := model.ParseEmploymentType(string(t)); err != nil {
			return &ValidationError{Msg: err.Error()}
		}
	}
	if p.ExpectedSalaryMin != nil && p.ExpectedSalaryMax != nil && *p.ExpectedSalaryMin > *p.ExpectedSalaryMax {
		return &ValidationError{Msg: "expected salary min exceeds max"}
	}
	return s.store.UpsertProfile(ctx, p)
}

// Profile returns the stored profile of seekerID.
func (s *Service) Profile(ctx context.Context, seekerID string) (*model.CandidateProfile, error) {
	return s.store.FetchProfile(ctx, seekerID)
}

func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	for _, e := range evs {
		if err := s.pub.Publish(ctx, e); err != nil {
			s.log.Warn("publish failed", zap.String("type", e.Type), zap.Error(err))
		}
	}
}
