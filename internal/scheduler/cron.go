package scheduler

import (
	"github.com/robfig/cron/v3"
)

// Cron wraps a cron runner for the fixed maintenance schedules: the daily
// reschedule pass and the hourly stale-conversation sweep.
type Cron struct {
	cron *cron.Cron
}

// NewCron creates and starts a cron runner.
func NewCron() *Cron {
	// Standard 5-field parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Cron{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (c *Cron) AddJob(expr string, task func()) error {
	_, err := c.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron runner and waits for running jobs to finish.
func (c *Cron) Stop() {
	c.cron.Stop()
}
