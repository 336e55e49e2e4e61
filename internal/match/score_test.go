package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobmate/swipe-service/internal/match"
	"jobmate/swipe-service/internal/model"
)

func f(v float64) *float64 { return &v }

func seeker() *model.CandidateProfile {
	return &model.CandidateProfile{
		ID:                 "seeker-1",
		Skills:             []string{"JavaScript", "React"},
		ExperienceYears:    3,
		PreferredLocations: []string{"Remote"},
		PreferredJobTypes:  []model.EmploymentType{model.EmploymentFullTime},
	}
}

func TestScore_BasicRanking(t *testing.T) {
	calc := match.Calculator{}
	jobA := &model.JobPosting{
		ID:                    "A",
		SkillsRequired:        []string{"JavaScript", "React"},
		ExperienceRequiredMin: f(2),
		ExperienceRequiredMax: f(5),
		IsRemote:              true,
		EmploymentType:        model.EmploymentFullTime,
	}
	jobB := &model.JobPosting{
		ID:                    "B",
		SkillsRequired:        []string{"JavaScript", "Python"},
		ExperienceRequiredMin: f(2),
		ExperienceRequiredMax: f(5),
		Location:              "NYC",
		EmploymentType:        model.EmploymentContract,
	}

	assert.Equal(t, 100, calc.Score(seeker(), jobA))

	b := calc.Breakdown(seeker(), jobB)
	assert.Equal(t, 20.0, b.Skills)
	assert.Equal(t, 25.0, b.Experience)
	assert.Equal(t, 0.0, b.Location)
	assert.Equal(t, 0.0, b.Type)
	assert.Equal(t, 45, b.Total)
}

func TestScore_EmptySkillsGetFullCredit(t *testing.T) {
	calc := match.Calculator{}
	for _, p := range []*model.CandidateProfile{
		seeker(),
		{ID: "no-skills"},
	} {
		b := calc.Breakdown(p, &model.JobPosting{ID: "j"})
		assert.Equal(t, float64(match.WeightSkills), b.Skills, "profile %s", p.ID)
	}
}

func TestScore_SkillsCaseInsensitive(t *testing.T) {
	p := &model.CandidateProfile{Skills: []string{" golang ", "POSTGRES"}}
	j := &model.JobPosting{SkillsRequired: []string{"Golang", "postgres", "Kafka", "kafka"}}
	b := match.Calculator{}.Breakdown(p, j)
	// duplicate "kafka" collapses: 2 of 3 distinct skills
	assert.InDelta(t, 40.0*2/3, b.Skills, 1e-9)
}

func TestScore_ExperienceCurve(t *testing.T) {
	calc := match.Calculator{}
	cases := []struct {
		name     string
		years    float64
		min, max *float64
		want     float64
	}{
		{"no requirement", 0, nil, nil, 25},
		{"meets minimum", 3, f(3), nil, 25},
		{"one year short", 2, f(3), nil, 20},
		{"four years short", 0, f(4), nil, 5},
		{"short by exactly the gap", 0, f(5), nil, 0},
		{"short by more than the gap", 1, f(10), nil, 0},
		{"over max within gap", 8, f(2), f(5), 25},
		{"over max by exactly gap", 10, nil, f(5), 25},
		{"over max beyond gap", 11, nil, f(5), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &model.CandidateProfile{ExperienceYears: tc.years}
			j := &model.JobPosting{ExperienceRequiredMin: tc.min, ExperienceRequiredMax: tc.max}
			assert.InDelta(t, tc.want, calc.Breakdown(p, j).Experience, 1e-9)
		})
	}
}

func TestScore_CustomGap(t *testing.T) {
	p := &model.CandidateProfile{ExperienceYears: 1}
	j := &model.JobPosting{ExperienceRequiredMin: f(3)}
	assert.InDelta(t, 15.0, match.New(5).Breakdown(p, j).Experience, 1e-9)
	assert.InDelta(t, 0.0, match.New(2).Breakdown(p, j).Experience, 1e-9)
	assert.InDelta(t, 20.0, match.New(10).Breakdown(p, j).Experience, 1e-9)
}

func TestScore_Location(t *testing.T) {
	calc := match.Calculator{}
	cases := []struct {
		name      string
		preferred []string
		job       model.JobPosting
		want      float64
	}{
		{"remote flag", nil, model.JobPosting{IsRemote: true}, 20},
		{"substring match", []string{"new york"}, model.JobPosting{Location: "New York, NY"}, 20},
		{"job location inside preference", []string{"Paris, France"}, model.JobPosting{Location: "paris"}, 20},
		{"remote preference matches remote type", []string{"Remote"}, model.JobPosting{EmploymentType: model.EmploymentRemote}, 20},
		{"no match", []string{"Berlin"}, model.JobPosting{Location: "NYC"}, 0},
		{"partial word does not match", []string{"Sunnyvale"}, model.JobPosting{Location: "NY"}, 0},
		{"partial word in job location", []string{"par"}, model.JobPosting{Location: "Paris"}, 0},
		{"state code token", []string{"NY"}, model.JobPosting{Location: "New York, NY"}, 20},
		{"case and punctuation", []string{"SAN FRANCISCO"}, model.JobPosting{Location: "San-Francisco (HQ)"}, 20},
		{"blank preference ignored", []string{"  "}, model.JobPosting{Location: "NYC"}, 0},
		{"blank job location", []string{"Berlin"}, model.JobPosting{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &model.CandidateProfile{PreferredLocations: tc.preferred}
			assert.Equal(t, tc.want, calc.Breakdown(p, &tc.job).Location)
		})
	}
}

func TestScore_Bounds(t *testing.T) {
	calc := match.Calculator{}
	profiles := []*model.CandidateProfile{
		{},
		seeker(),
		{ExperienceYears: 40, Skills: []string{"x"}},
	}
	jobs := []*model.JobPosting{
		{},
		{SkillsRequired: []string{"a", "b", "c"}, ExperienceRequiredMin: f(30), Location: "Mars"},
		{IsRemote: true, EmploymentType: model.EmploymentFullTime, ExperienceRequiredMax: f(1)},
	}
	for _, p := range profiles {
		for _, j := range jobs {
			s := calc.Score(p, j)
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	calc := match.Calculator{}
	j := &model.JobPosting{
		SkillsRequired:        []string{"JavaScript", "Python", "Go"},
		ExperienceRequiredMin: f(4.5),
		Location:              "Remote - EU",
	}
	first := calc.Score(seeker(), j)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, calc.Score(seeker(), j))
	}
}

func TestScore_RoundsToNearest(t *testing.T) {
	// skills 40*1/3 = 13.33, experience 25, location 0, type 0 → 38.33 → 38
	p := &model.CandidateProfile{Skills: []string{"a"}}
	j := &model.JobPosting{SkillsRequired: []string{"a", "b", "c"}}
	assert.Equal(t, 38, match.Calculator{}.Score(p, j))

	// skills 40*2/3 = 26.67 → 51.67 → 52
	p.Skills = []string{"a", "b"}
	assert.Equal(t, 52, match.Calculator{}.Score(p, j))
}
