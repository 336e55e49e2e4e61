// Package decision applies a seeker's decision on a job card and emits the
// resulting side effects as intents.
//
// Per (seeker, job) pair the swipe state machine is:
//
//	undecided ──► applied
//	    └───────► passed
//
// Both targets are final. Save and unsave are an orthogonal overlay and
// never touch the swipe state.
package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/saved"
)

// GreetingFunc renders the first message of the conversation opened on apply.
type GreetingFunc func(job *model.JobPosting) string

// DefaultGreeting references the job title and the applicant's interest.
func DefaultGreeting(job *model.JobPosting) string {
	return fmt.Sprintf("Hi! I'm interested in the %s position and have just applied. Looking forward to hearing from you.", job.Title)
}

// Processor is stateless; every call receives the seeker's current decided
// and saved sets and returns updated copies.
type Processor struct {
	Greeting GreetingFunc
	Now      func() time.Time
	NewID    func() string
}

// NewProcessor returns a Processor with the default greeting, wall clock
// and uuid ids.
func NewProcessor() *Processor {
	return &Processor{
		Greeting: DefaultGreeting,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// Input is one decision request.
type Input struct {
	SeekerID string
	Job      *model.JobPosting
	Action   model.Action
	Decided  map[string]struct{}
	Saved    saved.Set
}

// Result carries the emitted intents and the seeker state as it will be once
// they are persisted.
type Result struct {
	Action      model.Action
	JobID       string
	Intents     []intent.Intent
	Decided     map[string]struct{}
	Saved       saved.Set
	IsSaved     bool
	Application *model.Application

	prevDecided map[string]struct{}
	prevSaved   saved.Set
	autoSaved   bool
}

// Decide validates the request and emits intents.
//
// apply or pass on a job already in Decided returns a *ConflictError and no
// intents. apply emits RecordSwipe, CreateApplication, BootstrapConversation,
// ToggleSave (only when the job is not yet saved) and ExcludeFromFeed in
// that order.
func (p *Processor) Decide(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	switch in.Action {
	case model.ActionSave, model.ActionUnsave:
		return p.setSaved(in.SeekerID, in.Job.ID, in.Saved, in.Decided, in.Action == model.ActionSave), nil
	}

	if _, done := in.Decided[in.Job.ID]; done {
		return Result{}, &ConflictError{SeekerID: in.SeekerID, JobID: in.Job.ID, Action: in.Action}
	}
	if in.Action == model.ActionApply && in.Job.Status != model.JobActive {
		return Result{}, &ValidationError{
			Msg: fmt.Sprintf("job %s is not accepting applications (status %s)", in.Job.ID, in.Job.Status),
		}
	}

	now := p.now()
	res := Result{
		Action:      in.Action,
		JobID:       in.Job.ID,
		Decided:     cloneSet(in.Decided),
		Saved:       in.Saved.Clone(),
		IsSaved:     in.Saved.Contains(in.Job.ID),
		prevDecided: in.Decided,
		prevSaved:   in.Saved,
	}
	res.Decided[in.Job.ID] = struct{}{}

	res.Intents = append(res.Intents, intent.Intent{
		Kind: intent.KindRecordSwipe,
		Swipe: &model.SwipeRecord{
			ID:        p.newID(),
			SeekerID:  in.SeekerID,
			JobID:     in.Job.ID,
			Action:    in.Action,
			CreatedAt: now,
		},
	})

	if in.Action == model.ActionApply {
		app := &model.Application{
			ID:          p.newID(),
			JobID:       in.Job.ID,
			ApplicantID: in.SeekerID,
			EmployerID:  in.Job.EmployerID,
			Status:      model.ApplicationApplied,
			AppliedAt:   now,
			UpdatedAt:   now,
		}
		res.Application = app
		res.Intents = append(res.Intents,
			intent.Intent{Kind: intent.KindCreateApplication, Application: app},
			intent.Intent{
				Kind: intent.KindBootstrapConversation,
				Conversation: &intent.ConversationBootstrap{
					ID:            p.newID(),
					JobID:         in.Job.ID,
					ApplicationID: app.ID,
					SenderID:      in.SeekerID,
					RecipientID:   in.Job.EmployerID,
					Message:       p.greeting(in.Job),
					CreatedAt:     now,
				},
			},
		)
		if !res.IsSaved {
			res.Intents = append(res.Intents, intent.Intent{
				Kind: intent.KindToggleSave,
				Save: &intent.SaveToggle{SeekerID: in.SeekerID, JobID: in.Job.ID, Saved: true, Auto: true},
			})
			res.Saved = res.Saved.Save(in.Job.ID)
			res.IsSaved = true
			res.autoSaved = true
		}
	}

	res.Intents = append(res.Intents, intent.Intent{
		Kind:    intent.KindExcludeFromFeed,
		Exclude: &intent.FeedExclusion{SeekerID: in.SeekerID, JobID: in.Job.ID},
	})
	return res, nil
}

// Toggle flips the saved state of jobID. It cannot fail for a valid id.
func (p *Processor) Toggle(seekerID, jobID string, s saved.Set, decided map[string]struct{}) (Result, error) {
	if seekerID == "" || jobID == "" {
		return Result{}, &ValidationError{Msg: "seeker id and job id are required"}
	}
	return p.setSaved(seekerID, jobID, s, decided, !s.Contains(jobID)), nil
}

func (p *Processor) setSaved(seekerID, jobID string, s saved.Set, decided map[string]struct{}, want bool) Result {
	res := Result{
		JobID:       jobID,
		Action:      model.ActionUnsave,
		Decided:     cloneSet(decided),
		IsSaved:     want,
		prevDecided: decided,
		prevSaved:   s,
	}
	if want {
		res.Action = model.ActionSave
		res.Saved = s.Save(jobID)
	} else {
		res.Saved = s.Unsave(jobID)
	}
	if s.Contains(jobID) != want {
		res.Intents = []intent.Intent{{
			Kind: intent.KindToggleSave,
			Save: &intent.SaveToggle{SeekerID: seekerID, JobID: jobID, Saved: want},
		}}
	}
	return res
}

// Reconcile folds the outcome of DataPort.Persist into the result.
//
// A duplicate-application error means the seeker has applied already, so the
// result stands and alreadyApplied is true. Any other error rolls the state
// back to what the caller passed in, keeping only the auto-save implied by
// apply, and is returned unchanged.
func Reconcile(res Result, persistErr error) (out Result, alreadyApplied bool, err error) {
	if persistErr == nil {
		return res, false, nil
	}
	if port.IsDuplicate(persistErr) {
		// the stored application predates this call; ours was never written
		res.Application = nil
		return res, true, nil
	}

	out = res
	out.Decided = cloneSet(res.prevDecided)
	out.Saved = res.prevSaved.Clone()
	if res.autoSaved {
		out.Saved = out.Saved.Save(res.JobID)
	}
	out.IsSaved = out.Saved.Contains(res.JobID)
	out.Application = nil
	return out, false, persistErr
}

// AutoSaveIntents returns the save implied by apply on its own, so a caller
// can persist it after the decision batch failed. It is empty unless the
// apply added the job to the saved set.
func (r Result) AutoSaveIntents() []intent.Intent {
	if !r.autoSaved {
		return nil
	}
	for _, in := range r.Intents {
		if in.Kind == intent.KindToggleSave && in.Save != nil && in.Save.Auto {
			return []intent.Intent{in}
		}
	}
	return nil
}

func validate(in Input) error {
	if in.SeekerID == "" {
		return &ValidationError{Msg: "seeker id is required"}
	}
	if in.Job == nil || in.Job.ID == "" {
		return &ValidationError{Msg: "job id is required"}
	}
	if _, err := model.ParseAction(string(in.Action)); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	if in.Action == model.ActionApply && in.Job.EmployerID == "" {
		return &ValidationError{Msg: fmt.Sprintf("job %s has no employer", in.Job.ID)}
	}
	return nil
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now()
}

func (p *Processor) greeting(job *model.JobPosting) string {
	if p.Greeting == nil {
		return DefaultGreeting(job)
	}
	return p.Greeting(job)
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	c := make(map[string]struct{}, len(s)+1)
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

func (p *Processor) newID() string {
	if p.NewID == nil {
		return uuid.NewString()
	}
	return p.NewID()
}
