package feed_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/swipe-service/internal/feed"
	"jobmate/swipe-service/internal/match"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/saved"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func day(n int) time.Time { return time.Date(2026, 3, n, 0, 0, 0, 0, time.UTC) }

func seeker() *model.CandidateProfile {
	return &model.CandidateProfile{
		ID:                 "seeker1",
		Skills:             []string{"JavaScript", "React"},
		ExperienceYears:    3,
		PreferredLocations: []string{"Remote"},
		PreferredJobTypes:  []model.EmploymentType{model.EmploymentFullTime},
	}
}

func jobA() model.JobPosting {
	return model.JobPosting{
		ID: "A", EmployerID: "emp", Title: "Frontend Dev", Category: "Engineering",
		EmploymentType: model.EmploymentFullTime, IsRemote: true,
		ExperienceRequiredMin: f64(2), ExperienceRequiredMax: f64(5),
		SkillsRequired: []string{"JavaScript", "React"},
		Status:         model.JobActive, CreatedAt: day(1),
	}
}

func jobB() model.JobPosting {
	return model.JobPosting{
		ID: "B", EmployerID: "emp", Title: "Backend Dev", Category: "Engineering",
		EmploymentType: model.EmploymentContract, Location: "NYC",
		ExperienceRequiredMin: f64(2), ExperienceRequiredMax: f64(5),
		SkillsRequired: []string{"JavaScript", "Python"},
		Status:         model.JobActive, CreatedAt: day(2),
	}
}

func builder() *feed.Builder { return feed.NewBuilder(match.New(match.DefaultExperienceGap)) }

func ids(f feed.Feed) []string {
	out := make([]string, 0, len(f.Items))
	for _, it := range f.Items {
		out = append(out, it.Job.ID)
	}
	return out
}

func TestBuild_BasicRanking(t *testing.T) {
	f, err := builder().Build(seeker(), []model.JobPosting{jobB(), jobA()}, nil, nil, feed.Options{Now: now})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, ids(f))
	assert.Equal(t, 100, f.Items[0].Score)
	assert.Equal(t, 45, f.Items[1].Score)
	assert.Equal(t, 2, f.Total)
	assert.Equal(t, 2, f.Remaining)
}

func TestBuild_TieBrokenByNewestFirst(t *testing.T) {
	a, b := jobA(), jobA()
	a.CreatedAt = day(2)
	b.ID, b.CreatedAt = "B", day(1)

	f, err := builder().Build(seeker(), []model.JobPosting{b, a}, nil, nil, feed.Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(f))
	assert.Equal(t, f.Items[0].Score, f.Items[1].Score)
}

func TestBuild_FullTieFallsBackToID(t *testing.T) {
	x, y := jobA(), jobA()
	x.ID, y.ID = "y", "x"

	f, err := builder().Build(seeker(), []model.JobPosting{x, y}, nil, nil, feed.Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids(f))
}

func TestBuild_PassedJobExcluded(t *testing.T) {
	y := jobB()
	y.ID = "jobY"
	decided := map[string]struct{}{"jobY": {}}

	f, err := builder().Build(seeker(), []model.JobPosting{jobA(), y}, decided, nil, feed.Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(f))
	assert.Equal(t, 2, f.Visible)
	assert.Equal(t, 1, f.Remaining)
}

func TestBuild_EmptyStates(t *testing.T) {
	empty, err := builder().Build(seeker(), nil, nil, nil, feed.Options{Now: now})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.NoJobs())
	assert.False(t, empty.AllDecided())

	decided := map[string]struct{}{"A": {}, "B": {}}
	done, err := builder().Build(seeker(), []model.JobPosting{jobA(), jobB()}, decided, nil, feed.Options{Now: now})
	require.NoError(t, err)
	assert.Empty(t, done.Items)
	assert.Equal(t, 2, done.Total)
	assert.Equal(t, 0, done.Remaining)
	assert.False(t, done.NoJobs())
	assert.True(t, done.AllDecided())
}

func TestBuild_SavedAnnotatesWithoutExcluding(t *testing.T) {
	f, err := builder().Build(seeker(), []model.JobPosting{jobA(), jobB()}, nil, saved.FromIDs("B"), feed.Options{Now: now})
	require.NoError(t, err)
	require.Len(t, f.Items, 2)
	assert.False(t, f.Items[0].IsSaved)
	assert.True(t, f.Items[1].IsSaved)
}

func TestBuild_SeekerVisibility(t *testing.T) {
	draft := jobA()
	draft.ID, draft.Status = "draft", model.JobDraft
	expired := jobA()
	expired.ID = "old"
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past

	f, err := builder().Build(seeker(), []model.JobPosting{draft, expired, jobB()}, nil, nil, feed.Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(f))
	assert.Equal(t, 3, f.Total)
	assert.Equal(t, 1, f.Visible)
}

func TestBuild_EmployerVisibility(t *testing.T) {
	own := []model.JobPosting{jobA(), jobB()}
	own[0].Status = model.JobDraft
	own[1].Status = model.JobClosed
	other := jobA()
	other.ID, other.EmployerID = "C", "someone-else"
	pending := jobA()
	pending.ID, pending.Status, pending.CreatedAt = "D", model.JobPendingApproval, day(5)

	f, err := builder().Build(nil, append(own, other, pending), nil, nil, feed.Options{
		Visible: feed.EmployerVisibility("emp"),
		Now:     now,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "A"}, ids(f))
	assert.Zero(t, f.Items[0].Score)
}

func TestBuild_AdminSeesEverything(t *testing.T) {
	r := jobA()
	r.Status = model.JobRejected
	f, err := builder().Build(nil, []model.JobPosting{r, jobB()}, nil, nil, feed.Options{Visible: feed.AdminVisibility, Now: now})
	require.NoError(t, err)
	assert.Len(t, f.Items, 2)
}

func TestBuild_Limit(t *testing.T) {
	f, err := builder().Build(seeker(), []model.JobPosting{jobA(), jobB()}, nil, nil, feed.Options{Limit: 1, Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(f))
	assert.Equal(t, 2, f.Remaining)
}

func TestBuild_Filters(t *testing.T) {
	salaried := jobB()
	salaried.SalaryMin = f64(90000)

	tests := []struct {
		name    string
		filters []feed.Filter
		want    []string
	}{
		{"contains title", []feed.Filter{feed.TextContains(feed.FieldTitle, "front")}, []string{"A"}},
		{"negated contains", []feed.Filter{feed.NotContains(feed.FieldTitle, "front")}, []string{"B"}},
		{"equals type", []feed.Filter{feed.Equals(feed.FieldEmploymentType, "CONTRACT")}, []string{"B"}},
		{"range skips unset", []feed.Filter{feed.Range(feed.FieldSalaryMin, f64(50000), nil)}, []string{"B"}},
		{"remote flag", []feed.Filter{feed.Flag(feed.FieldIsRemote, true)}, []string{"A"}},
		{"conjunction", []feed.Filter{
			feed.TextContains(feed.FieldCategory, "engineering"),
			feed.Flag(feed.FieldIsRemote, false),
		}, []string{"B"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := builder().Build(seeker(), []model.JobPosting{jobA(), salaried}, nil, nil, feed.Options{Filters: tc.filters, Now: now})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(f))
		})
	}
}

func TestBuild_InvalidFilter(t *testing.T) {
	_, err := builder().Build(seeker(), []model.JobPosting{jobA()}, nil, nil, feed.Options{
		Filters: []feed.Filter{feed.Flag(feed.FieldTitle, true)},
	})
	assert.ErrorIs(t, err, feed.ErrInvalidFilter)
}

func TestParseQuery(t *testing.T) {
	q := url.Values{
		"contains.title": {"dev"},
		"min.salary_min": {"1000"},
		"max.salary_min": {"5000"},
		"flag.is_remote": {"true"},
		"limit":          {"10"},
	}
	filters, err := feed.ParseQuery(q)
	require.NoError(t, err)
	require.Len(t, filters, 3)

	var rng *feed.Filter
	for i := range filters {
		if filters[i].Kind == feed.KindRange {
			rng = &filters[i]
		}
	}
	require.NotNil(t, rng)
	assert.Equal(t, 1000.0, *rng.Min)
	assert.Equal(t, 5000.0, *rng.Max)
}

func TestParseQuery_StableOrder(t *testing.T) {
	q := url.Values{
		"min.salary_min": {"1000"},
		"flag.is_remote": {"true"},
		"eq.category":    {"engineering"},
		"contains.title": {"dev"},
		"not.text":       {"mlm"},
	}
	first, err := feed.ParseQuery(q)
	require.NoError(t, err)
	kinds := make([]feed.Kind, len(first))
	for i, f := range first {
		kinds[i] = f.Kind
	}
	assert.Equal(t, []feed.Kind{
		feed.KindTextContains, // contains.title
		feed.KindEquals,       // eq.category
		feed.KindFlag,         // flag.is_remote
		feed.KindTextContains, // not.text
		feed.KindRange,        // min.salary_min
	}, kinds)

	for range 20 {
		again, err := feed.ParseQuery(q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	bad := url.Values{"min.salary_min": {"lots"}, "flag.is_remote": {"maybe"}}
	for range 20 {
		_, err := feed.ParseQuery(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "flag.is_remote")
	}
}

func TestParseQuery_Rejects(t *testing.T) {
	bad := []url.Values{
		{"flag.is_remote": {"maybe"}},
		{"min.salary_min": {"lots"}},
		{"contains.salary_min": {"x"}},
		{"eq.unknown": {"x"}},
		{"min.title": {"1"}},
		{"min.salary_max": {"9"}, "max.salary_max": {"1"}},
	}
	for _, q := range bad {
		_, err := feed.ParseQuery(q)
		assert.ErrorIs(t, err, feed.ErrInvalidFilter, "%v", q)
	}
}

func TestRedFlags(t *testing.T) {
	mlm := jobB()
	mlm.ID = "mlm"
	mlm.Title = "Unlimited income: mlm opportunity"
	unpaid := jobB()
	unpaid.ID = "unpaid"
	unpaid.Category = "Unpaid Internship"
	jobs := []model.JobPosting{jobA(), mlm, unpaid}

	filters := feed.RedFlagFilters([]string{"MLM", " ", "", "unpaid"})
	require.Len(t, filters, 2, "blank terms are skipped")

	f, err := builder().Build(seeker(), jobs, nil, nil, feed.Options{Filters: filters, Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(f), "title and category are both checked, case-insensitively")

	assert.Empty(t, feed.RedFlagFilters(nil))
	f, err = builder().Build(seeker(), jobs, nil, nil, feed.Options{Filters: feed.RedFlagFilters(nil), Now: now})
	require.NoError(t, err)
	assert.Len(t, f.Items, 3)
}
