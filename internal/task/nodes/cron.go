package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"ticktree/internal/task/scheduler"
	logx "ticktree/pkg/logx"
)

// Cron gates a job on a cron schedule. The owning node's interval is the
// check granularity: the job runs on the first firing at or after each
// scheduled time, never more than once per scheduled time.
type Cron struct {
	schedule cron.Schedule
	job      scheduler.Updater
	loc      *time.Location
	now      func() time.Time
	log      logx.Logger

	next    time.Time
	lastRun time.Time
}

type CronOption func(*Cron)

// WithLocation evaluates the schedule in loc (default time.Local).
func WithLocation(loc *time.Location) CronOption {
	return func(c *Cron) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock overrides the wall clock; used by tests.
func WithClock(now func() time.Time) CronOption {
	return func(c *Cron) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCron(schedule cron.Schedule, job scheduler.Updater, log logx.Logger, opts ...CronOption) (*Cron, error) {
	if schedule == nil {
		return nil, errors.New("cron: schedule required")
	}
	if job == nil {
		return nil, errors.New("cron: job required")
	}
	c := &Cron{schedule: schedule, job: job, loc: time.Local, now: time.Now, log: log}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c, nil
}

// Start starts the job (if it is a Starter) and arms the first trigger time.
func (c *Cron) Start(ctx context.Context) error {
	if s, ok := c.job.(scheduler.Starter); ok {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	now := c.now().In(c.loc)
	c.next = c.schedule.Next(now)
	c.lastRun = now
	c.log.Debug("cron armed", logx.Time("next", c.next))
	return nil
}

// Stop forwards to the job when it is a Stopper.
func (c *Cron) Stop(ctx context.Context) error {
	if s, ok := c.job.(scheduler.Stopper); ok {
		return s.Stop(ctx)
	}
	return nil
}

// Next returns the next trigger time (zero before Start).
func (c *Cron) Next() time.Time { return c.next }

func (c *Cron) Update(ctx context.Context, _ time.Duration) error {
	now := c.now().In(c.loc)
	if c.next.IsZero() {
		c.next = c.schedule.Next(now)
		c.lastRun = now
		return nil
	}
	if now.Before(c.next) {
		return nil
	}
	// Skip missed slots rather than replaying them.
	c.next = c.schedule.Next(now)
	since := now.Sub(c.lastRun)
	c.lastRun = now
	c.log.Debug("cron due", logx.Time("next", c.next))
	return c.job.Update(ctx, since)
}
