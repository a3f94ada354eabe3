// Package scheduler runs recurring digests on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// slowThreshold is the run time above which a job logs a warning.
const slowThreshold = 30 * time.Second

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	log       *slog.Logger
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
}

// New creates and starts a scheduler in loc. A nil loc means UTC.
func New(loc *time.Location, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")

	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(&gocronLogAdapter{log: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s.Start()
	log.Debug("scheduler started")

	return &Scheduler{scheduler: s, log: log}, nil
}

// AddJob schedules job on a five-field cron expression. The job receives
// ctx and is not started concurrently with itself.
func (s *Scheduler) AddJob(ctx context.Context, name, cronExpr string, job func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if cronExpr == "" {
		return errors.New("empty cron expression")
	}
	if job == nil {
		return errors.New("nil job function")
	}

	wrapped := func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		if d := time.Since(start); d > slowThreshold {
			s.log.Warn("slow scheduled job", "job", name, "duration", d.Round(time.Millisecond))
		}
	}

	j, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(wrapped),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	attrs := []any{"job", name, "cron", cronExpr}
	if next, err := j.NextRun(); err == nil {
		attrs = append(attrs, "next_run", next.Format(time.RFC3339))
	}
	s.log.Info("job scheduled", attrs...)
	return nil
}

// Jobs lists scheduled jobs with their next run time.
func (s *Scheduler) Jobs() []JobInfo {
	jobs := s.scheduler.Jobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{Name: j.Name()}
		if next, err := j.NextRun(); err == nil {
			info.NextRun = next
		}
		out = append(out, info)
	}
	return out
}

// Stop shuts down the scheduler and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.log.Debug("stopping scheduler", "jobs", len(s.scheduler.Jobs()))
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

type gocronLogAdapter struct {
	log *slog.Logger
}

func (l *gocronLogAdapter) Debug(msg string, args ...any) { l.log.Debug(msg, toSlogArgs(args)...) }
func (l *gocronLogAdapter) Info(msg string, args ...any)  { l.log.Info(msg, toSlogArgs(args)...) }
func (l *gocronLogAdapter) Warn(msg string, args ...any)  { l.log.Warn(msg, toSlogArgs(args)...) }
func (l *gocronLogAdapter) Error(msg string, args ...any) { l.log.Error(msg, toSlogArgs(args)...) }

func toSlogArgs(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			key, ok := args[i].(string)
			if !ok {
				key = fmt.Sprintf("%v", args[i])
			}
			out = append(out, key, args[i+1])
		} else {
			out = append(out, "value", args[i])
		}
	}
	return out
}
