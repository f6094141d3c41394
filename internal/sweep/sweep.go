// Package sweep runs the refresh-token sweep on a cron schedule.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule runs a sweep once an hour.
const DefaultSchedule = "@every 1h"

// ErrNilTarget is returned by New when no sweeper is supplied.
var ErrNilTarget = errors.New("sweep: nil target")

// Sweeper removes expired refresh records. *tokenauth.Engine satisfies it.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Scheduler owns a cron instance with a single sweep job. Overlapping runs
// are skipped.
type Scheduler struct {
	target  Sweeper
	cron    *cron.Cron
	log     logrus.FieldLogger
	timeout time.Duration

	mu      sync.Mutex
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds each sweep run. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// New parses schedule (standard five-field cron or @every descriptors) and
// registers the sweep job. An empty schedule selects DefaultSchedule.
func New(target Sweeper, schedule string, log logrus.FieldLogger, opts ...Option) (*Scheduler, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	if log == nil {
		log = logrus.New()
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	s := &Scheduler{
		target:  target,
		log:     log.WithField("component", "sweep"),
		timeout: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	cronLog := cron.PrintfLogger(s.log)
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("sweep: schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("tokenauth: sweep scheduler started")
}

// Stop halts scheduling and waits for a running sweep, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.target.SweepExpired(ctx)
}

func (s *Scheduler) run() {
	start := time.Now()
	n, err := s.RunOnce(context.Background())
	entry := s.log.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		entry.WithError(err).Warn("tokenauth: sweep failed")
		return
	}
	entry.WithField("removed", n).Info("tokenauth: sweep completed")
}
