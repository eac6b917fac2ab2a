// Package scheduler owns the in-memory job table: one pending job per
// user, category, and period, fired at a random instant inside the period
// and replaced on the next scheduling pass.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/store"
	"github.com/karunahq/CarePing/internal/timeutil"
	"github.com/karunahq/CarePing/internal/util"
)

// Scheduling constants
const (
	// DefaultTickInterval is how often the firing loop checks for due jobs.
	DefaultTickInterval = 1 * time.Second
	// DefaultConflictWindow is the minimum spacing between two jobs for the
	// same user; draws closer than this are redrawn.
	DefaultConflictWindow = 5 * time.Minute
	// DefaultMaxRedraws bounds conflict redraws before falling back to the
	// period midpoint.
	DefaultMaxRedraws = 5
)

// Dispatcher is the delivery surface the scheduler fires jobs into.
type Dispatcher interface {
	SendForCategory(ctx context.Context, userID string, category models.Category) (models.SendResult, error)
	SendTaskReminder(ctx context.Context, userID string, task models.TaskReminderCandidate) (models.SendResult, error)
	SendCheckInPrompt(ctx context.Context, userID string) (models.SendResult, error)
}

// categories lists every category a scheduling pass considers.
var categories = []models.Category{
	models.CategoryMotivational,
	models.CategoryTaskReminder,
	models.CategoryCheckIn,
}

// Scheduler maintains pending jobs and fires them when due. All state is
// in memory; a restart rebuilds the table from the store via ScheduleAll.
type Scheduler struct {
	store      store.Store
	dispatcher Dispatcher

	tickInterval   time.Duration
	conflictWindow time.Duration
	maxRedraws     int

	mu   sync.Mutex
	jobs map[string]*models.Job // keyed user|category|period

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the firing loop interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithConflictWindow overrides the minimum spacing between a user's jobs.
func WithConflictWindow(d time.Duration) Option {
	return func(s *Scheduler) { s.conflictWindow = d }
}

// New creates a scheduler over the given store and dispatcher.
func New(st store.Store, dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:          st,
		dispatcher:     dispatcher,
		tickInterval:   DefaultTickInterval,
		conflictWindow: DefaultConflictWindow,
		maxRedraws:     DefaultMaxRedraws,
		jobs:           make(map[string]*models.Job),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the firing loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fireLoop(ctx)
	}()
	slog.Info("Scheduler started", "tickInterval", s.tickInterval)
}

// Stop halts the firing loop. Jobs already firing run to completion.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

func jobKey(userID string, category models.Category, periodName string) string {
	return strings.Join([]string{userID, string(category), periodName}, "|")
}

// ScheduleCategoryJob draws a random fire time inside the period and
// records one pending job, replacing any existing job for the same user,
// category, and period. If the period's window has already closed today,
// the job lands on the period's next active day.
func (s *Scheduler) ScheduleCategoryJob(userID string, category models.Category, period models.Period) (models.Job, error) {
	if err := period.Validate(); err != nil {
		return models.Job{}, fmt.Errorf("cannot schedule on invalid period %q: %w", period.Name, err)
	}
	if !period.Active {
		return models.Job{}, fmt.Errorf("period %q is inactive", period.Name)
	}

	fireAt, err := s.drawFireTime(time.Now(), userID, category, period)
	if err != nil {
		return models.Job{}, err
	}

	kind := models.JobKindMessage
	switch category {
	case models.CategoryCheckIn:
		kind = models.JobKindCheckIn
	case models.CategoryTaskReminder:
		kind = models.JobKindTaskReminder
	}

	job := &models.Job{
		ID:         util.GenerateJobID(),
		UserID:     userID,
		Category:   category,
		PeriodName: period.Name,
		FireAt:     fireAt,
		Kind:       kind,
	}
	if kind == models.JobKindTaskReminder {
		task, ok := s.pickTask(userID)
		if !ok {
			slog.Debug("No task reminder candidates, skipping slot", "userID", userID, "period", period.Name)
			return models.Job{}, nil
		}
		job.TaskID = task.TaskID
	}

	s.mu.Lock()
	s.jobs[jobKey(userID, category, period.Name)] = job
	s.mu.Unlock()

	slog.Debug("Job scheduled",
		"jobID", job.ID, "userID", userID, "category", category,
		"period", period.Name, "fireAt", fireAt, "taskID", job.TaskID)
	return *job, nil
}

// drawFireTime picks a random instant in the period's next open window,
// redrawing a bounded number of times when the draw lands too close to
// another of the user's pending jobs. Exhausted redraws fall back to the
// period midpoint.
func (s *Scheduler) drawFireTime(now time.Time, userID string, category models.Category, period models.Period) (time.Time, error) {
	day, lower, upper, err := s.nextWindow(now, period)
	if err != nil {
		return time.Time{}, err
	}

	for i := 0; i < s.maxRedraws; i++ {
		candidate, err := timeutil.RandomTimeBetween(lower, upper)
		if err != nil {
			return time.Time{}, err
		}
		if !s.conflicts(userID, category, period.Name, candidate) {
			return candidate, nil
		}
		slog.Debug("Fire time conflicts with another job, redrawing",
			"userID", userID, "category", category, "candidate", candidate, "attempt", i+1)
	}
	mid, err := timeutil.Midpoint(day, period)
	if err != nil {
		return time.Time{}, err
	}
	if mid.Before(lower) {
		mid = lower
	}
	slog.Debug("Redraws exhausted, using period midpoint", "userID", userID, "category", category, "fireAt", mid)
	return mid, nil
}

// nextWindow finds the next open slice of the period: the remainder of
// today's window if it is still open on an active day, otherwise the full
// window on the next active day.
func (s *Scheduler) nextWindow(now time.Time, period models.Period) (day time.Time, lower, upper time.Time, err error) {
	if period.ActiveOn(now.Weekday()) {
		start, end, err := timeutil.PeriodBounds(now, period)
		if err != nil {
			return time.Time{}, time.Time{}, time.Time{}, err
		}
		if end.After(now) {
			lower = start
			if now.After(lower) {
				lower = now
			}
			return now, lower, end, nil
		}
	}

	day, ok := timeutil.NextActiveDay(now.AddDate(0, 0, 1), period)
	if !ok {
		return time.Time{}, time.Time{}, time.Time{}, models.ErrNoActiveDays
	}
	start, end, err := timeutil.PeriodBounds(day, period)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	return day, start, end, nil
}

// conflicts reports whether t lands within the conflict window of another
// pending job for the same user.
func (s *Scheduler) conflicts(userID string, category models.Category, periodName string, t time.Time) bool {
	self := jobKey(userID, category, periodName)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, job := range s.jobs {
		if job.UserID != userID || key == self {
			continue
		}
		gap := job.FireAt.Sub(t)
		if gap < 0 {
			gap = -gap
		}
		if gap < s.conflictWindow {
			return true
		}
	}
	return false
}

// pickTask selects one task reminder candidate by weighted draw over the
// user's eligible tasks: those overdue, due within the urgency horizon, or
// without a due date.
func (s *Scheduler) pickTask(userID string) (models.TaskReminderCandidate, bool) {
	candidates, err := s.store.GetTaskCandidates(userID)
	if err != nil {
		slog.Error("Failed to load task candidates", "error", err, "userID", userID)
		return models.TaskReminderCandidate{}, false
	}

	now := time.Now()
	eligible := candidates[:0]
	for _, c := range candidates {
		if c.DueAt == nil || c.DueAt.Before(now.Add(urgencyHorizon)) {
			eligible = append(eligible, c)
		}
	}
	return pickWeighted(now, eligible)
}

// scheduleCategory schedules one job per active period of the category.
func (s *Scheduler) scheduleCategory(userID string, category models.Category) error {
	periods, err := s.store.GetActivePeriods(userID, category)
	if err != nil {
		return fmt.Errorf("failed to load %s periods for %s: %w", category, userID, err)
	}
	for _, period := range periods {
		if _, err := s.ScheduleCategoryJob(userID, category, period); err != nil {
			slog.Warn("Failed to schedule job",
				"error", err, "userID", userID, "category", category, "period", period.Name)
		}
	}
	return nil
}

// ScheduleTaskReminders reschedules the user's task reminder slots. Called
// when the user's task list or reminder periods change; each slot picks its
// task by weighted draw at scheduling time.
func (s *Scheduler) ScheduleTaskReminders(userID string) error {
	return s.scheduleCategory(userID, models.CategoryTaskReminder)
}

// ScheduleUser runs a full scheduling pass for one user: every category,
// every active period.
func (s *Scheduler) ScheduleUser(userID string) error {
	for _, category := range categories {
		if err := s.scheduleCategory(userID, category); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleAll runs a scheduling pass for every known user. Called at
// startup and from the daily reschedule cron.
func (s *Scheduler) ScheduleAll() error {
	userIDs, err := s.store.ListUserIDs()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	for _, userID := range userIDs {
		if err := s.ScheduleUser(userID); err != nil {
			slog.Warn("Scheduling pass failed for user", "error", err, "userID", userID)
		}
	}
	slog.Info("Scheduling pass complete", "users", len(userIDs), "jobs", s.Len())
	return nil
}

// CancelJobsFor removes every pending job for the user and returns how many
// were removed. A job that is already firing completes its delivery.
func (s *Scheduler) CancelJobsFor(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, job := range s.jobs {
		if job.UserID == userID {
			delete(s.jobs, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Cancelled pending jobs", "userID", userID, "count", removed)
	}
	return removed
}

// CancelCategoryJobs removes the user's pending jobs for one category.
// Used when a category is disabled without touching the user's other slots.
func (s *Scheduler) CancelCategoryJobs(userID string, category models.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, job := range s.jobs {
		if job.UserID == userID && job.Category == category {
			delete(s.jobs, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Cancelled pending category jobs", "userID", userID, "category", category, "count", removed)
	}
	return removed
}

// Jobs returns a snapshot of the pending jobs. Exposed for the admin API
// and tests.
func (s *Scheduler) Jobs() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

// Len returns the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// fireLoop pops due jobs every tick and fires each on its own goroutine.
func (s *Scheduler) fireLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, job := range s.popDue(now) {
				s.wg.Add(1)
				go func(job models.Job) {
					defer s.wg.Done()
					s.fire(ctx, job)
				}(job)
			}
		}
	}
}

// popDue removes and returns jobs whose fire time has arrived.
func (s *Scheduler) popDue(now time.Time) []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Job
	for key, job := range s.jobs {
		if !job.FireAt.After(now) {
			due = append(due, *job)
			delete(s.jobs, key)
		}
	}
	return due
}

// fire dispatches one due job. Delivery failures are the orchestrator's to
// retry; the scheduler only logs the handoff result.
func (s *Scheduler) fire(ctx context.Context, job models.Job) {
	slog.Info("Firing job",
		"jobID", job.ID, "userID", job.UserID, "category", job.Category,
		"kind", job.Kind, "period", job.PeriodName)

	var (
		result models.SendResult
		err    error
	)
	switch job.Kind {
	case models.JobKindCheckIn:
		result, err = s.dispatcher.SendCheckInPrompt(ctx, job.UserID)
	case models.JobKindTaskReminder:
		task, ok := s.resolveTask(job.UserID, job.TaskID)
		if !ok {
			slog.Info("Task gone before reminder fired, skipping", "jobID", job.ID, "userID", job.UserID, "taskID", job.TaskID)
			return
		}
		result, err = s.dispatcher.SendTaskReminder(ctx, job.UserID, task)
	default:
		result, err = s.dispatcher.SendForCategory(ctx, job.UserID, job.Category)
	}

	if err != nil {
		slog.Error("Job dispatch failed",
			"error", err, "jobID", job.ID, "userID", job.UserID, "category", job.Category)
		return
	}
	slog.Debug("Job dispatched", "jobID", job.ID, "userID", job.UserID, "outcome", result.Outcome)
}

// resolveTask refetches the scheduled task at fire time so a completed or
// deleted task is not reminded about. If the original task is gone, a fresh
// weighted pick is tried before giving up.
func (s *Scheduler) resolveTask(userID, taskID string) (models.TaskReminderCandidate, bool) {
	candidates, err := s.store.GetTaskCandidates(userID)
	if err != nil {
		slog.Error("Failed to load task candidates at fire time", "error", err, "userID", userID)
		return models.TaskReminderCandidate{}, false
	}
	for _, c := range candidates {
		if c.TaskID == taskID {
			return c, true
		}
	}
	return pickWeighted(time.Now(), candidates)
}
