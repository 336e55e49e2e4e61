// Package scheduler wires up the cron job that periodically expires job
// postings whose expiry timestamp has passed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper expires overdue postings and returns their ids.
type Sweeper interface {
	ExpireJobs(ctx context.Context) ([]string, error)
}

// Scheduler wraps robfig/cron and manages the expiry loop.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *zap.Logger
	spec    string // cron spec, e.g. "@every 15m"

	// sweep is shared by the ticks and the start-up run, so SkipIfStillRunning
	// covers both.
	sweep cron.Job
	wg    sync.WaitGroup
}

// New creates a Scheduler that sweeps every interval.
func New(sweeper Sweeper, interval time.Duration, log *zap.Logger) (*Scheduler, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("expiry interval %s is below one second", interval)
	}
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		log:     log,
		spec:    "@every " + interval.String(),
	}, nil
}

// Start registers the job and starts the scheduler. Also runs one sweep
// immediately so stale postings disappear without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.sweep = cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.RunOnce(ctx)
	}))
	if _, err := s.cron.AddJob(s.spec, s.sweep); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("spec", s.spec))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweep.Run()
	}()
	return nil
}

// Stop shuts the scheduler down and waits for any running sweep, the
// start-up one included, to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("cron stopped")
}

// RunOnce performs one sweep and returns the number of expired postings.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	ids, err := s.sweeper.ExpireJobs(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
		return 0
	}
	if len(ids) > 0 {
		s.log.Info("expired postings", zap.Int("count", len(ids)), zap.Strings("job_ids", ids))
	} else {
		s.log.Debug("expiry sweep found nothing")
	}
	return len(ids)
}
