// Package feed assembles the ranked card stack shown to a job seeker.
//
// Build never reads storage: the caller passes the raw postings together with
// the seeker's decided and saved sets, fetched fresh for each call.
package feed

import (
	"sort"
	"time"

	"jobmate/swipe-service/internal/match"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/saved"
)

// Visibility decides whether a posting may appear at all for the viewer.
type Visibility func(j *model.JobPosting, now time.Time) bool

// SeekerVisibility admits active postings that have not expired.
func SeekerVisibility(j *model.JobPosting, now time.Time) bool {
	return j.Status == model.JobActive && !j.IsExpired(now)
}

// EmployerVisibility admits an employer's own active, pending and draft
// postings.
func EmployerVisibility(employerID string) Visibility {
	return func(j *model.JobPosting, _ time.Time) bool {
		if j.EmployerID != employerID {
			return false
		}
		switch j.Status {
		case model.JobActive, model.JobPendingApproval, model.JobDraft:
			return true
		}
		return false
	}
}

// AdminVisibility admits everything.
func AdminVisibility(*model.JobPosting, time.Time) bool { return true }

// Scorer computes the match breakdown for one posting.
type Scorer interface {
	Breakdown(p *model.CandidateProfile, j *model.JobPosting) match.Breakdown
}

// Options tunes one Build call. A nil Visible defaults to SeekerVisibility.
type Options struct {
	Visible Visibility
	Filters []Filter
	Limit   int
	Now     time.Time
}

// Item is one ranked card.
type Item struct {
	Job       model.JobPosting
	Score     int
	Breakdown match.Breakdown
	IsSaved   bool
}

// Feed is the build output. Total is the raw input size, Visible what
// survived visibility and filters, Remaining what is left after removing
// decided jobs. Items holds at most Limit of the Remaining jobs.
type Feed struct {
	Items     []Item
	Total     int
	Visible   int
	Remaining int
}

// NoJobs reports the "nothing posted" empty state.
func (f Feed) NoJobs() bool { return f.Visible == 0 }

// AllDecided reports the "you've seen everything" empty state.
func (f Feed) AllDecided() bool { return f.Visible > 0 && f.Remaining == 0 }

// Builder ranks postings for one profile.
type Builder struct {
	Scorer Scorer
}

// NewBuilder returns a Builder scoring with s.
func NewBuilder(s Scorer) *Builder {
	return &Builder{Scorer: s}
}

// Build filters, de-duplicates, scores, sorts and annotates jobs.
//
// Ordering is score descending, then CreatedAt descending, then ID ascending.
// A nil profile scores every job 0, which leaves the newest-first order.
// Filters must be valid; an invalid one is reported before any work is done.
func (b *Builder) Build(profile *model.CandidateProfile, jobs []model.JobPosting, decided map[string]struct{}, s saved.Set, opts Options) (Feed, error) {
	for _, f := range opts.Filters {
		if err := f.Validate(); err != nil {
			return Feed{}, err
		}
	}
	visible := opts.Visible
	if visible == nil {
		visible = SeekerVisibility
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	out := Feed{Total: len(jobs), Items: []Item{}}
	for i := range jobs {
		j := &jobs[i]
		if !visible(j, now) || !matchesAll(j, opts.Filters) {
			continue
		}
		out.Visible++
		if _, done := decided[j.ID]; done {
			continue
		}
		item := Item{Job: *j, IsSaved: s.Contains(j.ID)}
		if profile != nil && b.Scorer != nil {
			item.Breakdown = b.Scorer.Breakdown(profile, j)
			item.Score = item.Breakdown.Total
		}
		out.Items = append(out.Items, item)
	}
	out.Remaining = len(out.Items)

	sort.SliceStable(out.Items, func(a, c int) bool {
		x, y := out.Items[a], out.Items[c]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if !x.Job.CreatedAt.Equal(y.Job.CreatedAt) {
			return x.Job.CreatedAt.After(y.Job.CreatedAt)
		}
		return x.Job.ID < y.Job.ID
	})

	if opts.Limit > 0 && len(out.Items) > opts.Limit {
		out.Items = out.Items[:opts.Limit]
	}
	return out, nil
}

func matchesAll(j *model.JobPosting, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(j) {
			return false
		}
	}
	return true
}
