package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled activation.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Schedule is a cron expression with optional seconds field, or a
	// descriptor such as "@every 5m" or "@hourly".
	Schedule   string
	RunOnStart bool
}

// Scheduler drives repeated detection runs.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the schedule expression and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	expr := strings.TrimSpace(opts.Schedule)
	if expr == "" {
		return nil, fmt.Errorf("schedule must not be empty")
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next returns the activation following t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks, invoking tick on schedule until ctx is cancelled. Activations
// that fire while a tick is still running are skipped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	cronLogger := cron.PrintfLogger(&s.logger)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	job := cron.FuncJob(func() {
		at := time.Now().UTC()
		s.logger.Info().Time("at", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	})
	c.Schedule(s.schedule, job)

	if s.opts.RunOnStart {
		job.Run()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	c.Start()
	s.logger.Debug().Time("next", s.Next(time.Now().UTC())).Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Debug().Msg("scheduler stopped")
	return ctx.Err()
}
