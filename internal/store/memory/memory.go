// Package memory is an in-process port.Store. It enforces the same
// uniqueness rules as the SQL adapters and is used by tests and the
// --store=memory demo mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/saved"
)

// Conversation is a bootstrapped thread and its first message.
type Conversation struct {
	intent.ConversationBootstrap
}

type pair struct{ seeker, job string }

// Store keeps everything in maps behind one mutex.
type Store struct {
	mu            sync.RWMutex
	profiles      map[string]model.CandidateProfile
	jobs          map[string]model.JobPosting
	swipes        map[pair]model.SwipeRecord
	applications  map[string]model.Application
	appByPair     map[pair]string
	saved         map[string]saved.Set
	conversations []Conversation

	// FailPersist, when set, is consulted before Persist touches any state.
	// A non-nil return aborts the call with that error.
	FailPersist func(intents []intent.Intent) error
}

var _ port.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		profiles:     make(map[string]model.CandidateProfile),
		jobs:         make(map[string]model.JobPosting),
		swipes:       make(map[pair]model.SwipeRecord),
		applications: make(map[string]model.Application),
		appByPair:    make(map[pair]string),
		saved:        make(map[string]saved.Set),
	}
}

func (s *Store) Close() {}

func (s *Store) FetchActiveJobs(_ context.Context, filter port.JobFilter) ([]model.JobPosting, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []model.JobStatus{model.JobActive}
	}
	want := make(map[model.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.JobPosting, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !want[j.Status] {
			continue
		}
		if filter.EmployerID != "" && j.EmployerID != filter.EmployerID {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) FetchDecided(_ context.Context, seekerID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for k := range s.swipes {
		if k.seeker == seekerID {
			out[k.job] = struct{}{}
		}
	}
	return out, nil
}

func (s *Store) FetchSavedSet(_ context.Context, seekerID string) (saved.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved[seekerID].Clone(), nil
}

// Persist applies intents atomically: a pass on an already-decided job
// aborts before any change, while a repeated apply only skips the
// application and its conversation.
func (s *Store) Persist(_ context.Context, intents []intent.Intent) error {
	if s.FailPersist != nil {
		if err := s.FailPersist(intents); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range intents {
		if in.Kind != intent.KindRecordSwipe || in.Swipe == nil {
			continue
		}
		prev, exists := s.swipes[pair{in.Swipe.SeekerID, in.Swipe.JobID}]
		if exists && (in.Swipe.Action != model.ActionApply || prev.Action != model.ActionApply) {
			return port.Failed(in.Swipe.JobID, port.ErrAlreadyDecided)
		}
	}

	var dupJob string
	skipped := map[string]bool{}
	for _, in := range intents {
		switch in.Kind {
		case intent.KindRecordSwipe:
			k := pair{in.Swipe.SeekerID, in.Swipe.JobID}
			if _, exists := s.swipes[k]; !exists {
				s.swipes[k] = *in.Swipe
			}
		case intent.KindCreateApplication:
			a := *in.Application
			k := pair{a.ApplicantID, a.JobID}
			if _, exists := s.appByPair[k]; exists {
				dupJob = a.JobID
				skipped[a.ID] = true
				continue
			}
			s.applications[a.ID] = a
			s.appByPair[k] = a.ID
		case intent.KindBootstrapConversation:
			if skipped[in.Conversation.ApplicationID] {
				continue
			}
			s.conversations = append(s.conversations, Conversation{*in.Conversation})
		case intent.KindToggleSave:
			t := in.Save
			if t.Saved {
				s.saved[t.SeekerID] = s.saved[t.SeekerID].Save(t.JobID)
			} else {
				s.saved[t.SeekerID] = s.saved[t.SeekerID].Unsave(t.JobID)
			}
		case intent.KindExcludeFromFeed:
			// the swipe row already excludes the job
		}
	}
	if dupJob != "" {
		return port.Duplicate(dupJob, nil)
	}
	return nil
}

func (s *Store) FetchProfile(_ context.Context, seekerID string) (*model.CandidateProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[seekerID]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertProfile(_ context.Context, p *model.CandidateProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = *p
	return nil
}

func (s *Store) FetchJob(_ context.Context, jobID string) (*model.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, port.ErrNotFound
	}
	j = cloneJob(j)
	return &j, nil
}

func (s *Store) SaveJob(_ context.Context, j *model.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = cloneJob(*j)
	return nil
}

func (s *Store) UpdateJobStatus(_ context.Context, jobID string, from, to model.JobStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != from {
		return port.ErrNotFound
	}
	j.Status = to
	j.RejectionReason = reason
	s.jobs[jobID] = j
	return nil
}

func (s *Store) ExpireJobs(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, j := range s.jobs {
		if (j.Status == model.JobActive || j.Status == model.JobPaused) && j.IsExpired(now) {
			j.Status = model.JobExpired
			s.jobs[id] = j
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) FetchApplication(_ context.Context, appID string) (*model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applications[appID]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListApplications(_ context.Context, f port.ApplicationFilter) ([]model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Application, 0)
	for _, a := range s.applications {
		if f.ApplicantID != "" && a.ApplicantID != f.ApplicantID {
			continue
		}
		if f.EmployerID != "" && a.EmployerID != f.EmployerID {
			continue
		}
		if f.JobID != "" && a.JobID != f.JobID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) UpdateApplicationStatus(_ context.Context, appID string, from, to model.ApplicationStatus) (*model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[appID]
	if !ok || a.Status != from {
		return nil, port.ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	s.applications[appID] = a
	return &a, nil
}

// Conversations returns every bootstrapped conversation in insertion order.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Conversation(nil), s.conversations...)
}

func cloneJob(j model.JobPosting) model.JobPosting {
	j.SkillsRequired = append([]string(nil), j.SkillsRequired...)
	return j
}
