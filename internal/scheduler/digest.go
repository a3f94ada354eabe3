package scheduler

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/slackbot"
)

// DigestSchedule is one recurring digest from configuration. Either Project
// or Channels selects what to summarize.
type DigestSchedule struct {
	Name        string   `mapstructure:"name" yaml:"name" validate:"required"`
	User        string   `mapstructure:"user" yaml:"user" validate:"required"`
	Cron        string   `mapstructure:"cron" yaml:"cron" validate:"required"`
	Project     string   `mapstructure:"project" yaml:"project" validate:"required_without=Channels"`
	Channels    []string `mapstructure:"channels" yaml:"channels" validate:"required_without=Project"`
	Hours       int      `mapstructure:"hours" yaml:"hours" validate:"omitempty,min=1,max=168"`
	PostChannel string   `mapstructure:"post_channel" yaml:"post_channel" validate:"required"`
}

// Poster delivers rendered digests.
type Poster interface {
	PostText(ctx context.Context, channel, text string) error
}

var validate = validator.New()

// Validate checks a schedule's required fields.
func (d DigestSchedule) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("schedule %q: %w", d.Name, err)
	}
	return nil
}

// DigestJob builds the job function for a schedule.
func DigestJob(svc *digest.Service, poster Poster, d DigestSchedule) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var (
			res *digest.Result
			err error
		)
		if d.Project != "" {
			res, err = svc.ProjectDigest(ctx, d.User, d.Project, d.Hours, "")
		} else {
			res, err = svc.ChannelDigest(ctx, digest.Request{User: d.User, Channels: d.Channels, Hours: d.Hours})
		}
		if err != nil {
			return fmt.Errorf("digest %s: %w", d.Name, err)
		}
		return poster.PostText(ctx, d.PostChannel, slackbot.RenderDigest(slackbot.DigestTitle(res), res).Text())
	}
}

// RegisterDigests validates and schedules every digest.
func (s *Scheduler) RegisterDigests(ctx context.Context, svc *digest.Service, poster Poster, schedules []DigestSchedule) error {
	for _, d := range schedules {
		if err := d.Validate(); err != nil {
			return err
		}
		if err := s.AddJob(ctx, "digest:"+d.Name, d.Cron, DigestJob(svc, poster, d)); err != nil {
			return err
		}
	}
	return nil
}
