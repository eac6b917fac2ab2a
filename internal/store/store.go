// Package store provides user-data storage backends for CarePing.
//
// The Store interface is what the scheduler, delivery orchestrator, and
// check-in engine consume: per-user periods, task candidates, check-in
// questions, completed sessions, and channel preferences. In-memory,
// SQLite, and PostgreSQL implementations are provided.
package store

import (
	"strings"

	"github.com/karunahq/CarePing/internal/models"
)

// Store is the user-data contract consumed by the scheduling and delivery
// core.
type Store interface {
	// GetActivePeriods returns the user's active periods for a category.
	GetActivePeriods(userID string, category models.Category) ([]models.Period, error)

	// GetTaskCandidates returns the user's open tasks eligible for reminders.
	GetTaskCandidates(userID string) ([]models.TaskReminderCandidate, error)

	// GetCheckInQuestions returns the user's enabled check-in questions in order.
	GetCheckInQuestions(userID string) ([]models.QuestionSpec, error)

	// SaveCheckInSession persists a completed check-in session.
	SaveCheckInSession(userID string, session models.CheckInSession) error

	// GetUserChannelPreference returns the user's configured channel name
	// and recipient address on that channel.
	GetUserChannelPreference(userID string) (channelName, recipient string, err error)

	// FindUserByRecipient resolves an inbound sender address on a channel
	// back to a user ID. Returns models.ErrUnknownUser when no user matches.
	FindUserByRecipient(channelName, recipient string) (string, error)

	// ListUserIDs returns all known user IDs.
	ListUserIDs() ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds store configuration options.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use a postgres:// URL or key=value connection strings; everything else is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
