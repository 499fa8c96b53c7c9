package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"IdeaDigest/internal/ports"
)

// CronScheduler runs a job on a standard five-field cron expression.
// Overlapping triggers are skipped while the previous run is still going.
type CronScheduler struct {
	spec       string
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	done    chan struct{}
	initial sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Option customises a CronScheduler.
type Option func(*CronScheduler)

// WithLocation evaluates the expression in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *CronScheduler) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithRunOnStart fires the job once immediately when the scheduler starts.
func WithRunOnStart(enabled bool) Option {
	return func(c *CronScheduler) { c.runOnStart = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *CronScheduler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCronScheduler validates spec and builds a scheduler for it.
func NewCronScheduler(spec string, opts ...Option) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	c := &CronScheduler{spec: spec, location: time.UTC, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cron")
	return c, nil
}

// Next returns the first activation after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(c.location))
}

// Start registers job and begins scheduling. It stops on its own when ctx ends.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("cron: nil job")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("cron: already started")
	}

	logger := cronLogger{c.logger}
	cr := cron.New(cron.WithLocation(c.location), cron.WithLogger(logger))
	// The initial run shares the chain so it counts as a running job too.
	run := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { job(time.Now().In(c.location)) }))
	if _, err := cr.AddJob(c.spec, run); err != nil {
		return fmt.Errorf("cron: add job: %w", err)
	}

	c.cron = cr
	c.done = make(chan struct{})
	cr.Start()
	c.logger.Info("scheduler started", "spec", c.spec, "location", c.location.String())

	if c.runOnStart {
		c.initial.Add(1)
		go func() {
			defer c.initial.Done()
			run.Run()
		}()
	}

	done := c.done
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-done:
		}
	}()
	return nil
}

// Stop halts scheduling and waits for running jobs or ctx, whichever ends first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	if cr == nil {
		c.mu.Unlock()
		return nil
	}
	c.cron = nil
	close(c.done)
	c.mu.Unlock()

	stopped := cr.Stop()
	initial := make(chan struct{})
	go func() {
		c.initial.Wait()
		close(initial)
	}()

	for _, wait := range []<-chan struct{}{stopped.Done(), initial} {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.logger.Info("scheduler stopped")
	return nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
