package swipe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/swipe-service/internal/decision"
	"jobmate/swipe-service/internal/events"
	"jobmate/swipe-service/internal/feed"
	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/match"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/store/memory"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	rec   *events.Recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	n := 0
	opts.Now = func() time.Time { return testNow }
	opts.NewID = func() string { n++; return fmt.Sprintf("id-%d", n) }

	st := memory.New()
	rec := &events.Recorder{}
	svc := NewService(st, match.New(match.DefaultExperienceGap), rec, zap.NewNop(), opts)
	return &fixture{svc: svc, store: st, rec: rec}
}

func (f *fixture) seedJob(t *testing.T, id string, status model.JobStatus, mutate ...func(*model.JobPosting)) {
	t.Helper()
	j := model.JobPosting{
		ID:             id,
		EmployerID:     "emp-1",
		Title:          "Go developer " + id,
		Category:       "engineering",
		EmploymentType: model.EmploymentFullTime,
		Location:       "Paris",
		SkillsRequired: []string{"go"},
		Status:         status,
		CreatedAt:      testNow.Add(-time.Hour),
	}
	for _, m := range mutate {
		m(&j)
	}
	require.NoError(t, f.store.SaveJob(context.Background(), &j))
}

func feedIDs(fd feed.Feed) []string {
	ids := make([]string, len(fd.Items))
	for i, it := range fd.Items {
		ids[i] = it.Job.ID
	}
	return ids
}

// ─── Feed ─────────────────────────────────────────────────────────────────────

func TestFeed_PassedJobLeavesFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)
	f.seedJob(t, "j2", model.JobActive, func(j *model.JobPosting) { j.SkillsRequired = []string{"rust"} })
	require.NoError(t, f.svc.UpsertProfile(ctx, &model.CandidateProfile{
		ID: "s1", Skills: []string{"Go"}, EducationLevel: model.EducationBachelor,
	}))

	fd, err := f.svc.Feed(ctx, "s1", FeedRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j2"}, feedIDs(fd))

	_, err = f.svc.Decide(ctx, "s1", "j1", model.ActionPass)
	require.NoError(t, err)

	fd, err = f.svc.Feed(ctx, "s1", FeedRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"j2"}, feedIDs(fd))
	assert.Equal(t, []string{events.JobDecided, events.FeedStale}, f.rec.Types())
}

func TestFeed_WithoutProfileScoresZeroSkills(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)

	fd, err := f.svc.Feed(context.Background(), "nobody", FeedRequest{})
	require.NoError(t, err)
	require.Len(t, fd.Items, 1)
	assert.Zero(t, fd.Items[0].Breakdown.Skills)
}

func TestFeed_RedFlagsAndRequestFilters(t *testing.T) {
	f := newFixture(t, Options{RedFlags: []string{"unpaid"}})
	f.seedJob(t, "j1", model.JobActive, func(j *model.JobPosting) { j.Title = "Unpaid internship" })
	f.seedJob(t, "j2", model.JobActive, func(j *model.JobPosting) { j.Location = "Lyon" })
	f.seedJob(t, "j3", model.JobActive)

	fd, err := f.svc.Feed(context.Background(), "s1", FeedRequest{
		Filters: []feed.Filter{feed.Equals(feed.FieldLocation, "paris")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"j3"}, feedIDs(fd))
}

func TestFeed_Validation(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Feed(context.Background(), "", FeedRequest{})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Feed(context.Background(), "s1", FeedRequest{
		Filters: []feed.Filter{{Kind: feed.KindTextContains, Field: feed.FieldSalaryMin, Value: "x"}},
	})
	assert.ErrorAs(t, err, &ve)
}

// ─── Decisions ────────────────────────────────────────────────────────────────

func TestDecide_ApplyCreatesApplicationConversationAndSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)

	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.NoError(t, err)
	require.NotNil(t, out.Application)
	assert.False(t, out.AlreadyApplied)
	assert.True(t, out.IsSaved)
	assert.Contains(t, out.Decided, "j1")

	apps, err := f.svc.ListApplications(ctx, port.ApplicationFilter{ApplicantID: "s1"})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, model.ApplicationApplied, apps[0].Status)
	assert.Equal(t, "emp-1", apps[0].EmployerID)

	convs := f.store.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "s1", convs[0].SenderID)
	assert.Equal(t, "emp-1", convs[0].RecipientID)
	assert.Contains(t, convs[0].Message, "Go developer j1")

	savedJobs, err := f.svc.SavedJobs(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, savedJobs, 1)
	assert.Equal(t, "j1", savedJobs[0].ID)

	assert.Equal(t,
		[]string{events.JobDecided, events.ApplicationCreated, events.FeedStale},
		f.rec.Types())
}

func TestDecide_SecondSwipeConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)

	_, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.NoError(t, err)

	for _, a := range []model.Action{model.ActionApply, model.ActionPass} {
		out, err := f.svc.Decide(ctx, "s1", "j1", a)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, decision.ErrConflict, "action %s", a)
	}

	apps, err := f.store.ListApplications(ctx, port.ApplicationFilter{ApplicantID: "s1"})
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestDecide_StoredApplicationIsReportedAsAlreadyApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)

	// application written by another path without a swipe row
	require.NoError(t, f.store.Persist(ctx, []intent.Intent{{
		Kind: intent.KindCreateApplication,
		Application: &model.Application{
			ID: "legacy", JobID: "j1", ApplicantID: "s1", EmployerID: "emp-1",
			Status: model.ApplicationApplied, AppliedAt: testNow, UpdatedAt: testNow,
		},
	}}))

	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.NoError(t, err)
	assert.True(t, out.AlreadyApplied)
	assert.Nil(t, out.Application)
	assert.True(t, out.IsSaved)
	assert.Empty(t, f.store.Conversations())
	assert.NotContains(t, f.rec.Types(), events.ApplicationCreated)

	decided, err := f.store.FetchDecided(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, decided, "j1")
}

func TestDecide_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)
	boom := errors.New("disk full")
	f.store.FailPersist = func([]intent.Intent) error { return port.Failed("j1", boom) }

	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionPass)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, out)
	assert.NotContains(t, out.Decided, "j1")
	assert.Empty(t, f.rec.Events)

	decided, err := f.store.FetchDecided(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, decided)
}

func TestDecide_FailedApplyKeepsAutoSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)
	boom := errors.New("conversation insert failed")
	calls := 0
	f.store.FailPersist = func([]intent.Intent) error {
		calls++
		if calls == 1 {
			return port.Failed("j1", boom)
		}
		return nil
	}

	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, out)
	assert.True(t, out.IsSaved)
	assert.NotContains(t, out.Decided, "j1")
	assert.Equal(t, 2, calls)

	set, err := f.store.FetchSavedSet(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, set.Contains("j1"))

	decided, err := f.store.FetchDecided(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, decided)
	apps, err := f.store.ListApplications(ctx, port.ApplicationFilter{ApplicantID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestDecide_FailedApplyAndFailedAutoSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)
	boom := errors.New("connection reset")
	f.store.FailPersist = func([]intent.Intent) error { return port.Failed("j1", boom) }

	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, out)
	assert.False(t, out.IsSaved, "reported state matches storage")

	set, err := f.store.FetchSavedSet(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestDecide_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "paused", model.JobPaused)

	_, err := f.svc.Decide(ctx, "s1", "missing", model.ActionPass)
	assert.ErrorIs(t, err, ErrNotFound)

	var ve *ValidationError
	_, err = f.svc.Decide(ctx, "s1", "paused", model.ActionApply)
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Decide(ctx, "s1", "paused", "like")
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Decide(ctx, "", "paused", model.ActionPass)
	assert.ErrorAs(t, err, &ve)
}

func TestToggleSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)

	on, err := f.svc.ToggleSave(ctx, "s1", "j1")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := f.svc.ToggleSave(ctx, "s1", "j1")
	require.NoError(t, err)
	assert.False(t, off)

	set, err := f.store.FetchSavedSet(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, set.Contains("j1"))

	// saving never touches the swipe log
	decided, err := f.store.FetchDecided(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, decided)
}

func TestUpsertProfile_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	lo, hi := 50000.0, 40000.0

	cases := []struct {
		name string
		p    *model.CandidateProfile
	}{
		{"nil", nil},
		{"no id", &model.CandidateProfile{}},
		{"negative experience", &model.CandidateProfile{ID: "s1", ExperienceYears: -1}},
		{"bad education", &model.CandidateProfile{ID: "s1", EducationLevel: "wizard"}},
		{"bad job type", &model.CandidateProfile{ID: "s1", PreferredJobTypes: []model.EmploymentType{"gig"}}},
		{"salary inverted", &model.CandidateProfile{ID: "s1", ExpectedSalaryMin: &lo, ExpectedSalaryMax: &hi}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ve *ValidationError
			assert.ErrorAs(t, f.svc.UpsertProfile(context.Background(), tc.p), &ve)
		})
	}
}

// ─── Jobs ─────────────────────────────────────────────────────────────────────

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	j, err := f.svc.CreateJob(ctx, "emp-1", model.JobPosting{
		Title: "Backend engineer", EmploymentType: model.EmploymentFullTime,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobDraft, j.Status)

	// employers cannot activate their own posting
	_, err = f.svc.ResumeJob(ctx, "emp-1", j.ID)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.SubmitJob(ctx, "emp-1", j.ID)
	require.NoError(t, err)

	queue, err := f.svc.ModerationQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{j.ID}, feedIDs(queue))

	_, err = f.svc.ModerateJob(ctx, j.ID, false, "  ")
	require.ErrorAs(t, err, &ve)

	rejected, err := f.svc.ModerateJob(ctx, j.ID, false, "missing salary")
	require.NoError(t, err)
	assert.Equal(t, model.JobRejected, rejected.Status)
	assert.Equal(t, "missing salary", rejected.RejectionReason)

	_, err = f.svc.SubmitJob(ctx, "emp-1", j.ID)
	require.NoError(t, err)
	active, err := f.svc.ModerateJob(ctx, j.ID, true, "ignored")
	require.NoError(t, err)
	assert.Equal(t, model.JobActive, active.Status)
	assert.Empty(t, active.RejectionReason)

	// approving twice is not a valid transition
	_, err = f.svc.ModerateJob(ctx, j.ID, true, "")
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.PauseJob(ctx, "emp-2", j.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.PauseJob(ctx, "emp-1", j.ID)
	require.NoError(t, err)
	_, err = f.svc.ResumeJob(ctx, "emp-1", j.ID)
	require.NoError(t, err)
	closed, err := f.svc.CloseJob(ctx, "emp-1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobClosed, closed.Status)

	mine, err := f.svc.EmployerJobs(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, mine.Items, "closed postings leave the employer board")

	assert.Contains(t, f.rec.Types(), events.JobModerated)
}

func TestCreateJob_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	past := testNow.Add(-time.Minute)
	lo, hi := 10.0, 5.0

	cases := []struct {
		name     string
		employer string
		j        model.JobPosting
	}{
		{"no employer", "", model.JobPosting{Title: "x", EmploymentType: model.EmploymentFullTime}},
		{"no title", "emp-1", model.JobPosting{Title: " ", EmploymentType: model.EmploymentFullTime}},
		{"bad type", "emp-1", model.JobPosting{Title: "x", EmploymentType: "gig"}},
		{"salary inverted", "emp-1", model.JobPosting{Title: "x", EmploymentType: model.EmploymentFullTime, SalaryMin: &lo, SalaryMax: &hi}},
		{"expired", "emp-1", model.JobPosting{Title: "x", EmploymentType: model.EmploymentFullTime, ExpiresAt: &past}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateJob(context.Background(), tc.employer, tc.j, true)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestExpireJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)
	f.seedJob(t, "old", model.JobActive, func(j *model.JobPosting) { j.ExpiresAt = &past })
	f.seedJob(t, "fresh", model.JobActive, func(j *model.JobPosting) { j.ExpiresAt = &future })
	f.seedJob(t, "draft", model.JobDraft, func(j *model.JobPosting) { j.ExpiresAt = &past })

	ids, err := f.svc.ExpireJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
	assert.Equal(t, []string{events.JobsExpired, events.FeedStale}, f.rec.Types())

	j, err := f.store.FetchJob(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.JobExpired, j.Status)

	f.rec.Events = nil
	ids, err = f.svc.ExpireJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, f.rec.Events)
}

// ─── Applications ─────────────────────────────────────────────────────────────

func TestMoveApplication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)
	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.NoError(t, err)
	appID := out.Application.ID

	var ve *ValidationError
	_, err = f.svc.MoveApplication(ctx, "emp-1", appID, "bogus")
	assert.ErrorAs(t, err, &ve)
	_, err = f.svc.MoveApplication(ctx, "emp-1", appID, "withdrawn")
	assert.ErrorAs(t, err, &ve)
	_, err = f.svc.MoveApplication(ctx, "emp-1", appID, "hired")
	assert.ErrorAs(t, err, &ve)
	_, err = f.svc.MoveApplication(ctx, "emp-2", appID, "viewed")
	assert.ErrorIs(t, err, ErrNotFound)

	app, err := f.svc.MoveApplication(ctx, "emp-1", appID, "viewed")
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationViewed, app.Status)

	last := f.rec.Events[len(f.rec.Events)-1]
	assert.Equal(t, events.ApplicationMoved, last.Type)
	assert.Equal(t, "applied", last.From)
	assert.Equal(t, "viewed", last.To)

	_, err = f.svc.WithdrawApplication(ctx, "s2", appID)
	assert.ErrorIs(t, err, ErrNotFound)
	app, err = f.svc.WithdrawApplication(ctx, "s1", appID)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationWithdrawn, app.Status)

	// withdrawn is terminal
	_, err = f.svc.MoveApplication(ctx, "emp-1", appID, "shortlisted")
	assert.ErrorAs(t, err, &ve)
}

func TestListApplications_RequiresFilter(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.ListApplications(context.Background(), port.ApplicationFilter{})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

// racingStore lets another writer move a record right after the service
// has read it.
type racingStore struct {
	*memory.Store
	afterFetchApp func(*model.Application)
	afterFetchJob func(*model.JobPosting)
}

func (r *racingStore) FetchApplication(ctx context.Context, id string) (*model.Application, error) {
	a, err := r.Store.FetchApplication(ctx, id)
	if err == nil && r.afterFetchApp != nil {
		r.afterFetchApp(a)
	}
	return a, err
}

func (r *racingStore) FetchJob(ctx context.Context, id string) (*model.JobPosting, error) {
	j, err := r.Store.FetchJob(ctx, id)
	if err == nil && r.afterFetchJob != nil {
		r.afterFetchJob(j)
	}
	return j, err
}

func TestMoveApplication_LostRaceIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)
	out, err := f.svc.Decide(ctx, "s1", "j1", model.ActionApply)
	require.NoError(t, err)
	appID := out.Application.ID

	race := &racingStore{Store: f.store}
	race.afterFetchApp = func(a *model.Application) {
		race.afterFetchApp = nil
		_, err := f.store.UpdateApplicationStatus(ctx, a.ID, a.Status, model.ApplicationRejected)
		require.NoError(t, err)
	}
	f.svc.store = race

	_, err = f.svc.MoveApplication(ctx, "emp-1", appID, "viewed")
	require.Error(t, err)
	assert.ErrorIs(t, err, decision.ErrConflict)
	var stale *StaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "application", stale.Entity)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))

	app, err := f.store.FetchApplication(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationRejected, app.Status, "the concurrent write stands")
}

func TestPauseJob_LostRaceIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.seedJob(t, "j1", model.JobActive)

	race := &racingStore{Store: f.store}
	race.afterFetchJob = func(j *model.JobPosting) {
		race.afterFetchJob = nil
		require.NoError(t, f.store.UpdateJobStatus(ctx, j.ID, j.Status, model.JobClosed, ""))
	}
	f.svc.store = race

	_, err := f.svc.PauseJob(ctx, "emp-1", "j1")
	assert.ErrorIs(t, err, decision.ErrConflict)
	var stale *StaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "job", stale.Entity)
}
