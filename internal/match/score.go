// Package match computes the 0–100 match score between a candidate profile
// and a job posting.
//
// The score is a weighted sum:
//
//	skills      40  overlap of profile skills with required skills
//	experience  25  years versus the required range, linear penalty
//	location    20  remote or a preferred location
//	type        15  employment type among the preferred ones
//
// Scoring is pure: identical input always yields the identical integer.
package match

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"jobmate/swipe-service/internal/model"
)

// Component weights. They sum to 100.
const (
	WeightSkills     = 40
	WeightExperience = 25
	WeightLocation   = 20
	WeightType       = 15
)

// DefaultExperienceGap is the number of years of under- or over-qualification
// at which the experience component drops to zero.
const DefaultExperienceGap = 5

// Breakdown is the per-component detail of a score.
type Breakdown struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Location   float64 `json:"location"`
	Type       float64 `json:"type"`
	Total      int     `json:"total"`
}

// Calculator scores profiles against jobs. The zero value is usable and
// applies DefaultExperienceGap.
type Calculator struct {
	ExperienceGap float64
}

// New returns a Calculator with the given experience gap; gap <= 0 selects
// the default.
func New(gap float64) Calculator {
	return Calculator{ExperienceGap: gap}
}

// Score returns the match score in [0,100].
func (c Calculator) Score(p *model.CandidateProfile, j *model.JobPosting) int {
	return c.Breakdown(p, j).Total
}

// Breakdown returns the score together with its components.
func (c Calculator) Breakdown(p *model.CandidateProfile, j *model.JobPosting) Breakdown {
	b := Breakdown{
		Skills:     skillScore(p.Skills, j.SkillsRequired),
		Experience: c.experienceScore(p.ExperienceYears, j.ExperienceRequiredMin, j.ExperienceRequiredMax),
		Location:   locationScore(p.PreferredLocations, j),
		Type:       typeScore(p.PreferredJobTypes, j.EmploymentType),
	}
	total := math.Round(b.Skills + b.Experience + b.Location + b.Type)
	b.Total = int(math.Max(0, math.Min(100, total)))
	return b
}

func (c Calculator) gap() float64 {
	if c.ExperienceGap <= 0 {
		return DefaultExperienceGap
	}
	return c.ExperienceGap
}

// skillScore awards the full weight to jobs that require nothing.
func skillScore(have, required []string) float64 {
	req := normalizeSet(required)
	if len(req) == 0 {
		return WeightSkills
	}
	own := normalizeSet(have)
	inter := 0
	for s := range req {
		if _, ok := own[s]; ok {
			inter++
		}
	}
	return WeightSkills * float64(inter) / float64(len(req))
}

func (c Calculator) experienceScore(years float64, minReq, maxReq *float64) float64 {
	gap := c.gap()
	if minReq != nil && years < *minReq {
		credit := WeightExperience * (1 - (*minReq-years)/gap)
		return math.Max(0, credit)
	}
	if maxReq != nil && years-*maxReq > gap {
		return 0
	}
	return WeightExperience
}

func locationScore(preferred []string, j *model.JobPosting) float64 {
	if j.IsRemote {
		return WeightLocation
	}
	loc := locationTokens(j.Location)
	for _, p := range preferred {
		want := locationTokens(p)
		if len(want) == 0 {
			continue
		}
		if len(want) == 1 && want[0] == "remote" && j.EmploymentType == model.EmploymentRemote {
			return WeightLocation
		}
		if len(loc) > 0 && (containsRun(loc, want) || containsRun(want, loc)) {
			return WeightLocation
		}
	}
	return 0
}

// locationTokens lowercases s and splits it into words, so "New York, NY"
// becomes [new york ny].
func locationTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsRun reports whether sub appears in words as a contiguous run.
// Matching on whole words keeps "ny" from matching "sunnyvale".
func containsRun(words, sub []string) bool {
	for i := 0; i+len(sub) <= len(words); i++ {
		if slices.Equal(words[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}

func typeScore(preferred []model.EmploymentType, t model.EmploymentType) float64 {
	for _, p := range preferred {
		if p == t {
			return WeightType
		}
	}
	return 0
}

func normalizeSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
