// Package sqlite is a single-file port.Store for local runs, built on the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/saved"
)

//go:embed schema.sql
var schema string

// Fixed width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements port.Store over one SQLite file.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var _ port.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	log.Info("sqlite store opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("sqlite close failed", zap.Error(err))
	}
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const jobColumns = `id, employer_id, title, category, employment_type, location, is_remote,
	salary_min, salary_max, experience_min, experience_max, skills_required,
	status, rejection_reason, created_at, expires_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (model.JobPosting, error) {
	var (
		j                  model.JobPosting
		et, status, skills string
		created            string
		expires            sql.NullString
	)
	err := row.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Category, &et, &j.Location, &j.IsRemote,
		&j.SalaryMin, &j.SalaryMax, &j.ExperienceRequiredMin, &j.ExperienceRequiredMax, &skills,
		&status, &j.RejectionReason, &created, &expires)
	if err != nil {
		return j, err
	}
	j.EmploymentType = model.EmploymentType(et)
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal([]byte(skills), &j.SkillsRequired); err != nil {
		return j, fmt.Errorf("decode skills: %w", err)
	}
	if j.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return j, fmt.Errorf("decode created_at: %w", err)
	}
	if expires.Valid {
		t, err := time.Parse(timeLayout, expires.String)
		if err != nil {
			return j, fmt.Errorf("decode expires_at: %w", err)
		}
		j.ExpiresAt = &t
	}
	return j, nil
}

func (s *Store) FetchActiveJobs(ctx context.Context, filter port.JobFilter) ([]model.JobPosting, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []model.JobStatus{model.JobActive}
	}
	args := make([]any, 0, len(statuses)+1)
	marks := make([]string, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
		marks = append(marks, "?")
	}
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + strings.Join(marks, ",") + `)`
	if filter.EmployerID != "" {
		q += ` AND employer_id = ?`
		args = append(args, filter.EmployerID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	ids, err := s.queryIDs(ctx, `SELECT job_id FROM swipes WHERE seeker_id = ?`, seekerID)
	if err != nil {
		return nil, fmt.Errorf("fetchDecided: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Store) FetchSavedSet(ctx context.Context, seekerID string) (saved.Set, error) {
	ids, err := s.queryIDs(ctx, `SELECT job_id FROM saved_jobs WHERE seeker_id = ?`, seekerID)
	if err != nil {
		return nil, fmt.Errorf("fetchSavedSet: %w", err)
	}
	return saved.FromIDs(ids...), nil
}

func (s *Store) queryIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Persist runs every intent in one transaction. A duplicate application is
// skipped along with its conversation and reported after commit; a
// repeated pass, or a pass/apply mix, rolls everything back.
func (s *Store) Persist(ctx context.Context, intents []intent.Intent) error {
	jobID := persistJobID(intents)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return port.Failed(jobID, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var dupJob string
	skipped := map[string]bool{}
	for _, in := range intents {
		switch in.Kind {
		case intent.KindRecordSwipe:
			sw := in.Swipe
			_, err := tx.ExecContext(ctx,
				`INSERT INTO swipes (id, seeker_id, job_id, action, created_at) VALUES (?, ?, ?, ?, ?)`,
				sw.ID, sw.SeekerID, sw.JobID, string(sw.Action), sw.CreatedAt.UTC().Format(timeLayout))
			if isUniqueViolation(err) {
				var prev string
				if qerr := tx.QueryRowContext(ctx,
					`SELECT action FROM swipes WHERE seeker_id = ? AND job_id = ?`,
					sw.SeekerID, sw.JobID).Scan(&prev); qerr != nil {
					return port.Failed(sw.JobID, fmt.Errorf("lookup swipe: %w", qerr))
				}
				if sw.Action == model.ActionApply && prev == string(model.ActionApply) {
					continue
				}
				return port.Failed(sw.JobID, port.ErrAlreadyDecided)
			}
			if err != nil {
				return port.Failed(sw.JobID, fmt.Errorf("record swipe: %w", err))
			}

		case intent.KindCreateApplication:
			a := in.Application
			_, err := tx.ExecContext(ctx,
				`INSERT INTO applications (id, job_id, applicant_id, employer_id, status, applied_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.JobID, a.ApplicantID, a.EmployerID, string(a.Status),
				a.AppliedAt.UTC().Format(timeLayout), a.UpdatedAt.UTC().Format(timeLayout))
			if isUniqueViolation(err) {
				dupJob = a.JobID
				skipped[a.ID] = true
				s.log.Debug("application already exists",
					zap.String("job_id", a.JobID), zap.String("applicant_id", a.ApplicantID))
				continue
			}
			if err != nil {
				return port.Failed(a.JobID, fmt.Errorf("create application: %w", err))
			}

		case intent.KindBootstrapConversation:
			c := in.Conversation
			if skipped[c.ApplicationID] {
				continue
			}
			at := c.CreatedAt.UTC().Format(timeLayout)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO conversations (id, job_id, application_id, participant_1, participant_2, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, c.JobID, c.ApplicationID, c.SenderID, c.RecipientID, at); err != nil {
				return port.Failed(c.JobID, fmt.Errorf("create conversation: %w", err))
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)`,
				c.ID, c.SenderID, c.Message, at); err != nil {
				return port.Failed(c.JobID, fmt.Errorf("create message: %w", err))
			}

		case intent.KindToggleSave:
			t := in.Save
			q := `DELETE FROM saved_jobs WHERE seeker_id = ? AND job_id = ?`
			if t.Saved {
				q = `INSERT INTO saved_jobs (seeker_id, job_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
			}
			if _, err := tx.ExecContext(ctx, q, t.SeekerID, t.JobID); err != nil {
				return port.Failed(t.JobID, fmt.Errorf("toggle save: %w", err))
			}

		case intent.KindExcludeFromFeed:
			// the swipe row already excludes the job
		}
	}

	if err := tx.Commit(); err != nil {
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
		p                          model.CandidateProfile
		skills, locs, types, level string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, skills, experience_years, education_level, preferred_locations, preferred_job_types,
		        expected_salary_min, expected_salary_max
		 FROM profiles WHERE id = ?`, seekerID,
	).Scan(&p.ID, &skills, &p.ExperienceYears, &level, &locs, &types, &p.ExpectedSalaryMin, &p.ExpectedSalaryMax)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetchProfile: %w", err)
	}
	p.EducationLevel = model.EducationLevel(level)
	for _, f := range []struct {
		raw string
		dst any
	}{{skills, &p.Skills}, {locs, &p.PreferredLocations}, {types, &p.PreferredJobTypes}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("fetchProfile decode: %w", err)
		}
	}
	return &p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *model.CandidateProfile) error {
	skills, _ := json.Marshal(nonNil(p.Skills))
	locs, _ := json.Marshal(nonNil(p.PreferredLocations))
	types, _ := json.Marshal(p.PreferredJobTypes)
	if p.PreferredJobTypes == nil {
		types = []byte("[]")
	}
	level := p.EducationLevel
	if level == "" {
		level = model.EducationNone
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, skills, experience_years, education_level, preferred_locations,
		                       preferred_job_types, expected_salary_min, expected_salary_max)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   skills = excluded.skills, experience_years = excluded.experience_years,
		   education_level = excluded.education_level, preferred_locations = excluded.preferred_locations,
		   preferred_job_types = excluded.preferred_job_types,
		   expected_salary_min = excluded.expected_salary_min, expected_salary_max = excluded.expected_salary_max`,
		p.ID, string(skills), p.ExperienceYears, string(level), string(locs), string(types),
		p.ExpectedSalaryMin, p.ExpectedSalaryMax)
	if err != nil {
		return fmt.Errorf("upsertProfile: %w", err)
	}
	return nil
}

func (s *Store) FetchJob(ctx context.Context, jobID string) (*model.JobPosting, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetchJob: %w", err)
	}
	return &j, nil
}

func (s *Store) SaveJob(ctx context.Context, j *model.JobPosting) error {
	skills, _ := json.Marshal(nonNil(j.SkillsRequired))
	var expires any
	if j.ExpiresAt != nil {
		expires = j.ExpiresAt.UTC().Format(timeLayout)
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title, category = excluded.category, employment_type = excluded.employment_type,
		   location = excluded.location, is_remote = excluded.is_remote,
		   salary_min = excluded.salary_min, salary_max = excluded.salary_max,
		   experience_min = excluded.experience_min, experience_max = excluded.experience_max,
		   skills_required = excluded.skills_required, status = excluded.status,
		   rejection_reason = excluded.rejection_reason, expires_at = excluded.expires_at`,
		j.ID, j.EmployerID, j.Title, j.Category, string(j.EmploymentType), j.Location, j.IsRemote,
		j.SalaryMin, j.SalaryMax, j.ExperienceRequiredMin, j.ExperienceRequiredMax, string(skills),
		string(j.Status), j.RejectionReason, created.UTC().Format(timeLayout), expires)
	if err != nil {
		return fmt.Errorf("saveJob: %w", err)
	}
	return nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, from, to model.JobStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, rejection_reason = ? WHERE id = ? AND status = ?`,
		string(to), reason, jobID, string(from))
	if err != nil {
		return fmt.Errorf("updateJobStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (s *Store) ExpireJobs(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("expireJobs begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cutoff := now.UTC().Format(timeLayout)
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status IN ('active', 'paused') AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY id`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("expireJobs select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("expireJobs scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'expired' WHERE status IN ('active', 'paused') AND expires_at IS NOT NULL AND expires_at <= ?`,
		cutoff); err != nil {
		return nil, fmt.Errorf("expireJobs update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("expireJobs commit: %w", err)
	}
	return ids, nil
}

const appColumns = `id, job_id, applicant_id, employer_id, status, applied_at, updated_at`

func scanApplication(row scanner) (model.Application, error) {
	var (
		a                    model.Application
		status, applied, upd string
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.ApplicantID, &a.EmployerID, &status, &applied, &upd); err != nil {
		return a, err
	}
	a.Status = model.ApplicationStatus(status)
	var err error
	if a.AppliedAt, err = time.Parse(timeLayout, applied); err != nil {
		return a, err
	}
	a.UpdatedAt, err = time.Parse(timeLayout, upd)
	return a, err
}

func (s *Store) FetchApplication(ctx context.Context, appID string) (*model.Application, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM applications WHERE id = ?`, appID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetchApplication: %w", err)
	}
	return &a, nil
}

func (s *Store) ListApplications(ctx context.Context, f port.ApplicationFilter) ([]model.Application, error) {
	q := `SELECT ` + appColumns + ` FROM applications WHERE 1 = 1`
	var args []any
	if f.ApplicantID != "" {
		q += ` AND applicant_id = ?`
		args = append(args, f.ApplicantID)
	}
	if f.EmployerID != "" {
		q += ` AND employer_id = ?`
		args = append(args, f.EmployerID)
	}
	if f.JobID != "" {
		q += ` AND job_id = ?`
		args = append(args, f.JobID)
	}
	q += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC().Format(timeLayout), appID, string(from))
	if err != nil {
		return nil, fmt.Errorf("updateApplicationStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, port.ErrNotFound
	}
	return s.FetchApplication(ctx, appID)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
