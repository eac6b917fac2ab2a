// Package models defines the core data structures for CarePing.
//
// It includes periods, scheduled jobs, task-reminder candidates, channel
// configuration and status, retry entries, and check-in conversation state,
// which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Category names a class of recurring message.
type Category string

const (
	// CategoryMotivational is the daily motivational message category.
	CategoryMotivational Category = "motivational"
	// CategoryTaskReminder is the task reminder category.
	CategoryTaskReminder Category = "task_reminder"
	// CategoryCheckIn is the check-in prompt category.
	CategoryCheckIn Category = "checkin"
)

// Validation constants for input validation
const (
	// MaxMessageBodyLength defines the maximum allowed length for outbound message bodies
	MaxMessageBodyLength = 4096
	// MaxPeriodNameLength defines the maximum allowed length for period names
	MaxPeriodNameLength = 64
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient       = errors.New("recipient cannot be empty")
	ErrEmptyBody            = errors.New("message body cannot be empty")
	ErrBodyTooLong          = errors.New("message body exceeds maximum length")
	ErrEmptyPeriodName      = errors.New("period name cannot be empty")
	ErrPeriodNameTooLong    = errors.New("period name exceeds maximum length")
	ErrInvalidTimeFormat    = errors.New("time must be in HH:MM format")
	ErrPeriodOrder          = errors.New("period start time must be before end time")
	ErrNoActiveDays         = errors.New("period must have at least one active day")
	ErrChannelNotRegistered = errors.New("channel is not registered")
	ErrChannelNotReady      = errors.New("channel is not ready")
	ErrChannelDisabled      = errors.New("channel is disabled pending manual reset")
	ErrSendTimeout          = errors.New("channel send timed out")
	ErrServiceStopped       = errors.New("service has been stopped")
	ErrConversationActive   = errors.New("a check-in conversation is already active")
	ErrNoConversation       = errors.New("no active check-in conversation")
	ErrNoQuestions          = errors.New("no check-in questions configured")
	ErrUnknownUser          = errors.New("unknown user")
	ErrNoChannelPreference  = errors.New("user has no channel preference configured")
)

// Weekday aliases time.Weekday for period day sets.
type Weekday = time.Weekday

// AllWeek returns the full set of weekdays, used for periods active every day.
func AllWeek() []Weekday {
	return []Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}

// Period is a named daily time window plus applicable weekdays during which
// a category's message may fire. Periods are configured externally and are
// read-only to the scheduler.
type Period struct {
	Name       string    `json:"name"`
	StartTime  string    `json:"start_time"` // "HH:MM", 24-hour
	EndTime    string    `json:"end_time"`   // "HH:MM", 24-hour
	ActiveDays []Weekday `json:"active_days"`
	Active     bool      `json:"active"`
}

// Validate checks the period invariants: valid HH:MM times, start before
// end within the day, and a non-empty active day set.
func (p *Period) Validate() error {
	if p.Name == "" {
		return ErrEmptyPeriodName
	}
	if len(p.Name) > MaxPeriodNameLength {
		return ErrPeriodNameTooLong
	}
	start, err := time.Parse("15:04", p.StartTime)
	if err != nil {
		return ErrInvalidTimeFormat
	}
	end, err := time.Parse("15:04", p.EndTime)
	if err != nil {
		return ErrInvalidTimeFormat
	}
	if !start.Before(end) {
		return ErrPeriodOrder
	}
	if len(p.ActiveDays) == 0 {
		return ErrNoActiveDays
	}
	return nil
}

// ActiveOn reports whether the period applies on the given weekday.
func (p *Period) ActiveOn(day Weekday) bool {
	for _, d := range p.ActiveDays {
		if d == day {
			return true
		}
	}
	return false
}

// JobKind identifies what firing a job does.
type JobKind string

const (
	// JobKindMessage sends a category message built by the content provider.
	JobKindMessage JobKind = "message"
	// JobKindTaskReminder sends a reminder for a specific task.
	JobKindTaskReminder JobKind = "task_reminder"
	// JobKindCheckIn sends a check-in prompt and may start a conversation.
	JobKindCheckIn JobKind = "checkin"
)

// Job is a scheduled, not-yet-fired instance of sending a message to one
// user for one category/period. Jobs are ephemeral: created when scheduled,
// consumed when fired, replaced when rescheduled.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Category   Category  `json:"category"`
	PeriodName string    `json:"period_name,omitempty"`
	FireAt     time.Time `json:"fire_at"`
	Kind       JobKind   `json:"kind"`
	TaskID     string    `json:"task_id,omitempty"` // set for task reminder jobs
}

// TaskPriority orders task reminder candidates.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// IsValidTaskPriority checks if the given priority is supported.
func IsValidTaskPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// TaskReminderCandidate is a task considered for a reminder slot. A nil
// DueAt means the task has no due date and receives a fixed baseline weight.
type TaskReminderCandidate struct {
	TaskID   string       `json:"task_id"`
	Title    string       `json:"title,omitempty"`
	Priority TaskPriority `json:"priority"`
	DueAt    *time.Time   `json:"due_at,omitempty"`
}

// ChannelKind distinguishes synchronous transports from those driven
// through the orchestrator's async bridge worker.
type ChannelKind string

const (
	// ChannelKindSync channels execute sends inline on the calling goroutine.
	ChannelKindSync ChannelKind = "sync"
	// ChannelKindAsync channels are marshalled onto the bridge worker.
	ChannelKindAsync ChannelKind = "async"
)

// ChannelStatus is the lifecycle state of a channel.
type ChannelStatus string

const (
	ChannelStatusUninitialized ChannelStatus = "uninitialized"
	ChannelStatusInitializing  ChannelStatus = "initializing"
	ChannelStatusReady         ChannelStatus = "ready"
	ChannelStatusError         ChannelStatus = "error"
)

// ChannelConfig holds per-channel retry and rate tuning. Immutable after
// channel construction.
type ChannelConfig struct {
	Name              string        `json:"name"`
	Kind              ChannelKind   `json:"kind"`
	MaxRetries        int           `json:"max_retries"`
	RetryDelay        time.Duration `json:"retry_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	RatePerSecond     float64       `json:"rate_per_second,omitempty"` // 0 means unlimited
}

// DefaultChannelConfig returns the retry tuning applied when the operator
// provides none: 5 retries starting at 1s with exponential doubling.
func DefaultChannelConfig(name string, kind ChannelKind) ChannelConfig {
	return ChannelConfig{
		Name:              name,
		Kind:              kind,
		MaxRetries:        5,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryEntry is a queued, previously failed message awaiting a retry
// attempt with backoff. Owned exclusively by the delivery orchestrator.
type RetryEntry struct {
	ID            string    `json:"id"`
	ChannelName   string    `json:"channel_name"`
	UserID        string    `json:"user_id"`
	Recipient     string    `json:"recipient"`
	Payload       string    `json:"payload"`
	Kind          JobKind   `json:"kind"`
	AttemptCount  int       `json:"attempt_count"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// SendOutcome classifies the result of an attempted delivery.
type SendOutcome string

const (
	// SendDelivered means the channel confirmed the send.
	SendDelivered SendOutcome = "delivered"
	// SendQueued means the message was handed to the retry dispatcher.
	SendQueued SendOutcome = "queued"
	// SendSkipped means the send was intentionally not performed
	// (e.g. a check-in prompt while a conversation is already active).
	SendSkipped SendOutcome = "skipped"
)

// SendResult reports what happened to an outbound message.
type SendResult struct {
	Outcome SendOutcome `json:"outcome"`
	RetryID string      `json:"retry_id,omitempty"` // set when Outcome == SendQueued
}

// AnswerKind is the expected answer type of a check-in question.
type AnswerKind string

const (
	// AnswerKindText accepts any non-empty free text.
	AnswerKindText AnswerKind = "text"
	// AnswerKindScale accepts an integer within [ScaleMin, ScaleMax].
	AnswerKindScale AnswerKind = "scale"
	// AnswerKindYesNo accepts yes/no style answers.
	AnswerKindYesNo AnswerKind = "yesno"
)

// QuestionSpec is one step of a user's check-in question sequence.
type QuestionSpec struct {
	Key      string     `json:"key"`
	Prompt   string     `json:"prompt"`
	Kind     AnswerKind `json:"kind"`
	ScaleMin int        `json:"scale_min,omitempty"`
	ScaleMax int        `json:"scale_max,omitempty"`
}

// Answer is one collected check-in answer, kept in question order.
type Answer struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ConversationState tracks one user's in-progress check-in. One active
// state per user; owned exclusively by the check-in engine.
type ConversationState struct {
	UserID         string    `json:"user_id"`
	StepIndex      int       `json:"step_index"`
	Answers        []Answer  `json:"answers"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// CheckInSession is the finalized result of a completed check-in,
// persisted exactly once via the user-data store.
type CheckInSession struct {
	UserID      string    `json:"user_id"`
	Answers     []Answer  `json:"answers"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// InboundMessage is an incoming message from a user on some channel.
type InboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// ChannelHealth is a read-only snapshot of one channel's health tracking,
// exposed through the admin API.
type ChannelHealth struct {
	Name            string        `json:"name"`
	Kind            ChannelKind   `json:"kind"`
	Status          ChannelStatus `json:"status"`
	StatusSince     time.Time     `json:"status_since"`
	RestartFailures int           `json:"restart_failures"`
	Disabled        bool          `json:"disabled"`
}

// APIResponse is the standard JSON envelope for admin API responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
