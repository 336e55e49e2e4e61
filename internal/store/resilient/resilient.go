// Package resilient wraps a port.Store with retry/backoff and a circuit
// breaker. Domain outcomes (not found, duplicate application, already
// decided) pass straight through: they are neither retried nor counted
// against the breaker.
package resilient

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"jobmate/swipe-service/internal/intent"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/saved"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig suits a database round trip.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: 100 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Multiplier:  2.0,
}

// BreakerConfig trips the breaker once MinRequests calls have been seen in
// Interval and at least FailureThreshold of them failed.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

// DefaultBreakerConfig is used by the serve command unless overridden.
var DefaultBreakerConfig = BreakerConfig{
	Enabled:          true,
	MaxRequests:      3,
	Interval:         time.Minute,
	Timeout:          30 * time.Second,
	MinRequests:      5,
	FailureThreshold: 0.6,
}

// Store decorates another port.Store.
type Store struct {
	next  port.Store
	retry RetryConfig
	cb    *gobreaker.CircuitBreaker[any]
	log   *zap.Logger
}

var _ port.Store = (*Store)(nil)

// Wrap returns next guarded by retries and, when enabled, a breaker.
func Wrap(next port.Store, rc RetryConfig, bc BreakerConfig, log *zap.Logger) *Store {
	s := &Store{next: next, retry: rc, log: log}
	if !bc.Enabled {
		return s
	}
	s.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "store",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= bc.MinRequests && failureRatio >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: isDomainOutcome,
	})
	return s
}

// Healthy reports whether the breaker is closed. Without a breaker the
// store is always healthy.
func (s *Store) Healthy() bool {
	return s.cb == nil || s.cb.State() == gobreaker.StateClosed
}

// IsUnavailable reports whether err came from an open or saturated breaker.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// isDomainOutcome treats nil and expected business results as success.
func isDomainOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, port.ErrNotFound) ||
		errors.Is(err, port.ErrAlreadyDecided) ||
		port.IsDuplicate(err) ||
		errors.Is(err, context.Canceled)
}

// isRetryable returns true for transient errors worth retrying.
func isRetryable(err error) bool {
	if isDomainOutcome(err) {
		return false
	}
	if IsUnavailable(err) {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// call runs fn through the breaker and retries transient failures with
// exponential backoff.
func call[T any](ctx context.Context, s *Store, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	guarded := fn
	if s.cb != nil {
		guarded = func() (T, error) {
			v, err := s.cb.Execute(func() (any, error) { return fn() })
			t, _ := v.(T)
			return t, err
		}
	}

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := guarded()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return result, err
		}

		if attempt < s.retry.MaxRetries {
			wait := time.Duration(float64(s.retry.InitialWait) * math.Pow(s.retry.Multiplier, float64(attempt)))
			if wait > s.retry.MaxWait {
				wait = s.retry.MaxWait
			}
			s.log.Debug("retrying store call",
				zap.String("op", op), zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait), zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

func (s *Store) Close() { s.next.Close() }

func (s *Store) FetchActiveJobs(ctx context.Context, f port.JobFilter) ([]model.JobPosting, error) {
	return call(ctx, s, "fetchActiveJobs", func() ([]model.JobPosting, error) { return s.next.FetchActiveJobs(ctx, f) })
}

func (s *Store) FetchDecided(ctx context.Context, seekerID string) (map[string]struct{}, error) {
	return call(ctx, s, "fetchDecided", func() (map[string]struct{}, error) { return s.next.FetchDecided(ctx, seekerID) })
}

func (s *Store) FetchSavedSet(ctx context.Context, seekerID string) (saved.Set, error) {
	return call(ctx, s, "fetchSavedSet", func() (saved.Set, error) { return s.next.FetchSavedSet(ctx, seekerID) })
}

// Persist is safe to retry: adapters run it in one transaction and every
// insert is keyed, so a retried batch either commits once or reports a
// duplicate.
func (s *Store) Persist(ctx context.Context, intents []intent.Intent) error {
	_, err := call(ctx, s, "persist", func() (struct{}, error) { return struct{}{}, s.next.Persist(ctx, intents) })
	return err
}

func (s *Store) FetchProfile(ctx context.Context, seekerID string) (*model.CandidateProfile, error) {
	return call(ctx, s, "fetchProfile", func() (*model.CandidateProfile, error) { return s.next.FetchProfile(ctx, seekerID) })
}

func (s *Store) UpsertProfile(ctx context.Context, p *model.CandidateProfile) error {
	_, err := call(ctx, s, "upsertProfile", func() (struct{}, error) { return struct{}{}, s.next.UpsertProfile(ctx, p) })
	return err
}

func (s *Store) FetchJob(ctx context.Context, jobID string) (*model.JobPosting, error) {
	return call(ctx, s, "fetchJob", func() (*model.JobPosting, error) { return s.next.FetchJob(ctx, jobID) })
}

func (s *Store) SaveJob(ctx context.Context, j *model.JobPosting) error {
	_, err := call(ctx, s, "saveJob", func() (struct{}, error) { return struct{}{}, s.next.SaveJob(ctx, j) })
	return err
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, from, to model.JobStatus, reason string) error {
	_, err := call(ctx, s, "updateJobStatus", func() (struct{}, error) {
		return struct{}{}, s.next.UpdateJobStatus(ctx, jobID, from, to, reason)
	})
	return err
}

func (s *Store) ExpireJobs(ctx context.Context, now time.Time) ([]string, error) {
	return call(ctx, s, "expireJobs", func() ([]string, error) { return s.next.ExpireJobs(ctx, now) })
}

func (s *Store) FetchApplication(ctx context.Context, appID string) (*model.Application, error) {
	return call(ctx, s, "fetchApplication", func() (*model.Application, error) { return s.next.FetchApplication(ctx, appID) })
}

func (s *Store) ListApplications(ctx context.Context, f port.ApplicationFilter) ([]model.Application, error) {
	return call(ctx, s, "listApplications", func() ([]model.Application, error) { return s.next.ListApplications(ctx, f) })
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, appID string, from, to model.ApplicationStatus) (*model.Application, error) {
	return call(ctx, s, "updateApplicationStatus", func() (*model.Application, error) {
		return s.next.UpdateApplicationStatus(ctx, appID, from, to)
	})
}
