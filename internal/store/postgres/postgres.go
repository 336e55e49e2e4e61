// Package postgres implements port.Store over a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/saved"
)

// Store is the production adapter.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var _ port.Store = (*Store)(nil)

// New wraps an open pool. The schema is expected to be migrated already
// (see db.Migrate).
func New(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, log: log}
}

func (s *Store) Close() { s.pool.Close() }

const jobColumns = `id, employer_id, title, category, employment_type, location, is_remote,
	salary_min, salary_max, experience_min, experience_max, skills_required,
	status, rejection_reason, created_at, expires_at`

func scanJob(row pgx.Row) (model.JobPosting, error) {
	var (
		j          model.JobPosting
		et, status string
	)
	err := row.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Category, &et, &j.Location, &j.IsRemote,
		&j.SalaryMin, &j.SalaryMax, &j.ExperienceRequiredMin, &j.ExperienceRequiredMax, &j.SkillsRequired,
		&status, &j.RejectionReason, &j.CreatedAt, &j.ExpiresAt)
	j.EmploymentType = model.EmploymentType(et)
	j.Status = model.JobStatus(status)
	return j, err
}

func (s *Store) FetchActiveJobs(ctx context.Context, filter port.JobFilter) ([]model.JobPosting, error) {
	statuses := []string{string(model.JobActive)}
	if len(filter.Statuses) > 0 {
		statuses = statuses[:0]
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ANY($1) AND ($2 = '' OR employer_id = $2)
		 ORDER BY created_at DESC`,
		statuses, filter.EmployerID)
	if err != nil {
		return nil, fmt.Errorf("fetchActiveJobs query: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.JobPosting, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("fetchActiveJobs scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) FetchDecided(ctx context.Context, seekerID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id FROM swipes WHERE seeker_id = $1`, seekerID)
	if err != nil {
		return nil, fmt.Errorf("fetchDecided query: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("fetchDecided scan: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Store) FetchSavedSet(ctx context.Context, seekerID string) (saved.Set, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id FROM saved_jobs WHERE seeker_id = $1`, seekerID)
	if err != nil {
		return nil, fmt.Errorf("fetchSavedSet query: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("fetchSavedSet scan: %w", err)
	}
	return saved.FromIDs(ids...), nil
}

// Persist runs every intent in one transaction. Inserts use
// ON CONFLICT DO NOTHING so a racing duplicate never aborts the
// transaction: a skipped application is reported as DuplicateApplication
// once the remaining intents are committed. A swipe that collides with a
// different earlier decision rolls everything back.
func (s *Store) Persist(ctx context.Context, intents []intent.Intent) error {
	jobID := persistJobID(intents)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return port.Failed(jobID, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var dupJob string
	skipped := map[string]bool{}
	for _, in := range intents {
		switch in.Kind {
		case intent.KindRecordSwipe:
			sw := in.Swipe
			tag, err := tx.Exec(ctx,
				`INSERT INTO swipes (id, seeker_id, job_id, action, created_at)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (seeker_id, job_id) DO NOTHING`,
				sw.ID, sw.SeekerID, sw.JobID, string(sw.Action), sw.CreatedAt)
			if err != nil {
				return port.Failed(sw.JobID, fmt.Errorf("record swipe: %w", err))
			}
			if tag.RowsAffected() == 0 {
				var prev string
				if err := tx.QueryRow(ctx,
					`SELECT action FROM swipes WHERE seeker_id = $1 AND job_id = $2`,
					sw.SeekerID, sw.JobID).Scan(&prev); err != nil {
					return port.Failed(sw.JobID, fmt.Errorf("lookup swipe: %w", err))
				}
				if sw.Action != model.ActionApply || prev != string(model.ActionApply) {
					return port.Failed(sw.JobID, port.ErrAlreadyDecided)
				}
			}

		case intent.KindCreateApplication:
			a := in.Application
			tag, err := tx.Exec(ctx,
				`INSERT INTO applications (id, job_id, applicant_id, employer_id, status, applied_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (job_id, applicant_id) DO NOTHING`,
				a.ID, a.JobID, a.ApplicantID, a.EmployerID, string(a.Status), a.AppliedAt, a.UpdatedAt)
			if err != nil {
				return port.Failed(a.JobID, fmt.Errorf("create application: %w", err))
			}
			if tag.RowsAffected() == 0 {
				dupJob = a.JobID
				skipped[a.ID] = true
				s.log.Debug("application already exists",
					zap.String("job_id", a.JobID), zap.String("applicant_id", a.ApplicantID))
			}

		case intent.KindBootstrapConversation:
			c := in.Conversation
			if skipped[c.ApplicationID] {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO conversations (id, job_id, application_id, participant_1, participant_2, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				c.ID, c.JobID, c.ApplicationID, c.SenderID, c.RecipientID, c.CreatedAt); err != nil {
				return port.Failed(c.JobID, fmt.Errorf("create conversation: %w", err))
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO messages (conversation_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4)`,
				c.ID, c.SenderID, c.Message, c.CreatedAt); err != nil {
				return port.Failed(c.JobID, fmt.Errorf("create message: %w", err))
			}

		case intent.KindToggleSave:
			t := in.Save
			q := `DELETE FROM saved_jobs WHERE seeker_id = $1 AND job_id = $2`
			if t.Saved {
				q = `INSERT INTO saved_jobs (seeker_id, job_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
			}
			if _, err := tx.Exec(ctx, q, t.SeekerID, t.JobID); err != nil {
				return port.Failed(t.JobID, fmt.Errorf("toggle save: %w", err))
			}

		case intent.KindExcludeFromFeed:
			// the swipe row already excludes the job
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return port.Failed(jobID, fmt.Errorf("commit: %w", err))
	}
	if dupJob != "" {
		return port.Duplicate(dupJob, nil)
	}
	return nil
}

func persistJobID(intents []intent.Intent) string {
	for _, in := range intents {
		switch {
		case in.Swipe != nil:
			return in.Swipe.JobID
		case in.Save != nil:
			return in.Save.JobID
		}
	}
	return ""
}

func (s *Store) FetchProfile(ctx context.Context, seekerID string) (*model.CandidateProfile, error) {
	var (
		p     model.CandidateProfile
		level string
		types []string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, skills, experience_years, education_level, preferred_locations, preferred_job_types,
		        expected_salary_min, expected_salary_max
		 FROM profiles WHERE id = $1`, seekerID,
	).Scan(&p.ID, &p.Skills, &p.ExperienceYears, &level, &p.PreferredLocations, &types,
		&p.ExpectedSalaryMin, &p.ExpectedSalaryMax)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetchProfile: %w", err)
	}
	p.EducationLevel = model.EducationLevel(level)
	for _, t := range types {
		p.PreferredJobTypes = append(p.PreferredJobTypes, model.EmploymentType(t))
	}
	return &p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *model.CandidateProfile) error {
	types := make([]string, 0, len(p.PreferredJobTypes))
	for _, t := range p.PreferredJobTypes {
		types = append(types, string(t))
	}
	level := p.EducationLevel
	if level == "" {
		level = model.EducationNone
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, skills, experience_years, education_level, preferred_locations,
		                       preferred_job_types, expected_salary_min, expected_salary_max)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   skills = EXCLUDED.skills, experience_years = EXCLUDED.experience_years,
		   education_level = EXCLUDED.education_level, preferred_locations = EXCLUDED.preferred_locations,
		   preferred_job_types = EXCLUDED.preferred_job_types,
		   expected_salary_min = EXCLUDED.expected_salary_min, expected_salary_max = EXCLUDED.expected_salary_max,
		   updated_at = NOW()`,
		p.ID, nonNil(p.Skills), p.ExperienceYears, string(level), nonNil(p.PreferredLocations), types,
		p.ExpectedSalaryMin, p.ExpectedSalaryMax)
	if err != nil {
		return fmt.Errorf("upsertProfile: %w", err)
	}
	return nil
}

func (s *Store) FetchJob(ctx context.Context, jobID string) (*model.JobPosting, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetchJob: %w", err)
	}
	return &j, nil
}

func (s *Store) SaveJob(ctx context.Context, j *model.JobPosting) error {
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, category = EXCLUDED.category, employment_type = EXCLUDED.employment_type,
		   location = EXCLUDED.location, is_remote = EXCLUDED.is_remote,
		   salary_min = EXCLUDED.salary_min, salary_max = EXCLUDED.salary_max,
		   experience_min = EXCLUDED.experience_min, experience_max = EXCLUDED.experience_max,
		   skills_required = EXCLUDED.skills_required, status = EXCLUDED.status,
		   rejection_reason = EXCLUDED.rejection_reason, expires_at = EXCLUDED.expires_at`,
		j.ID, j.EmployerID, j.Title, j.Category, string(j.EmploymentType), j.Location, j.IsRemote,
		j.SalaryMin, j.SalaryMax, j.ExperienceRequiredMin, j.ExperienceRequiredMax, nonNil(j.SkillsRequired),
		string(j.Status), j.RejectionReason, created, j.ExpiresAt)
	if err != nil {
		return fmt.Errorf("saveJob: %w", err)
	}
	return nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, from, to model.JobStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, rejection_reason = $2 WHERE id = $3 AND status = $4`,
		string(to), reason, jobID, string(from))
	if err != nil {
		return fmt.Errorf("updateJobStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (s *Store) ExpireJobs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = 'expired'
		 WHERE status IN ('active', 'paused') AND expires_at IS NOT NULL AND expires_at <= $1
		 RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("expireJobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("expireJobs scan: %w", err)
	}
	return ids, nil
}

const appColumns = `id, job_id, applicant_id, employer_id, status, applied_at, updated_at`

func scanApplication(row pgx.Row) (model.Application, error) {
	var (
		a      model.Application
		status string
	)
	err := row.Scan(&a.ID, &a.JobID, &a.ApplicantID, &a.EmployerID, &status, &a.AppliedAt, &a.UpdatedAt)
	a.Status = model.ApplicationStatus(status)
	return a, err
}

func (s *Store) FetchApplication(ctx context.Context, appID string) (*model.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE id = $1`, appID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetchApplication: %w", err)
	}
	return &a, nil
}

func (s *Store) ListApplications(ctx context.Context, f port.ApplicationFilter) ([]model.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+appColumns+` FROM applications
		 WHERE ($1 = '' OR applicant_id = $1)
		   AND ($2 = '' OR employer_id = $2)
		   AND ($3 = '' OR job_id = $3)
		 ORDER BY updated_at DESC`,
		f.ApplicantID, f.EmployerID, f.JobID)
	if err != nil {
		return nil, fmt.Errorf("listApplications query: %w", err)
	}
	defer rows.Close()

	apps := make([]model.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("listApplications scan: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, appID string, from, to model.ApplicationStatus) (*model.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`UPDATE applications SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING `+appColumns,
		string(to), appID, string(from)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updateApplicationStatus: %w", err)
	}
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
