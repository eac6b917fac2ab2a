// Package store provides storage backends for CarePing.
//
// This file implements the PostgreSQL-backed user-data store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/karunahq/CarePing/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// UpsertUser registers a user with their channel preference.
func (s *PostgresStore) UpsertUser(userID, channelName, recipient string) error {
	_, err := s.db.Exec(`INSERT INTO users (id, channel_name, recipient) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET channel_name = EXCLUDED.channel_name, recipient = EXCLUDED.recipient`,
		userID, channelName, recipient)
	if err != nil {
		slog.Error("PostgresStore UpsertUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to upsert user %s: %w", userID, err)
	}
	return nil
}

// UpsertPeriod stores or replaces one period for a user and category.
func (s *PostgresStore) UpsertPeriod(userID string, category models.Category, p models.Period) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("period %q invalid: %w", p.Name, err)
	}
	daysJSON, err := encodeDays(p.ActiveDays)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO periods (user_id, category, name, start_time, end_time, active_days, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, category, name) DO UPDATE SET
			start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			active_days = EXCLUDED.active_days, active = EXCLUDED.active`,
		userID, category, p.Name, p.StartTime, p.EndTime, daysJSON, p.Active)
	if err != nil {
		slog.Error("PostgresStore UpsertPeriod failed", "error", err, "userID", userID, "period", p.Name)
		return fmt.Errorf("failed to upsert period %s: %w", p.Name, err)
	}
	return nil
}

// UpsertTask stores or replaces one open task for a user.
func (s *PostgresStore) UpsertTask(userID string, t models.TaskReminderCandidate) error {
	_, err := s.db.Exec(`INSERT INTO tasks (user_id, task_id, title, priority, due_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, task_id) DO UPDATE SET
			title = EXCLUDED.title, priority = EXCLUDED.priority, due_at = EXCLUDED.due_at`,
		userID, t.TaskID, t.Title, t.Priority, nilIfZeroTime(t.DueAt))
	if err != nil {
		slog.Error("PostgresStore UpsertTask failed", "error", err, "userID", userID, "taskID", t.TaskID)
		return fmt.Errorf("failed to upsert task %s: %w", t.TaskID, err)
	}
	return nil
}

// SetQuestions replaces the user's check-in question sequence.
func (s *PostgresStore) SetQuestions(userID string, questions []models.QuestionSpec) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM checkin_questions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear questions: %w", err)
	}
	for i, q := range questions {
		_, err := tx.Exec(`INSERT INTO checkin_questions (user_id, position, key, prompt, kind, scale_min, scale_max)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			userID, i, q.Key, q.Prompt, q.Kind, q.ScaleMin, q.ScaleMax)
		if err != nil {
			return fmt.Errorf("failed to insert question %s: %w", q.Key, err)
		}
	}
	return tx.Commit()
}

// GetActivePeriods returns the user's active periods for a category.
func (s *PostgresStore) GetActivePeriods(userID string, category models.Category) ([]models.Period, error) {
	rows, err := s.db.Query(`SELECT name, start_time, end_time, active_days, active
		FROM periods WHERE user_id = $1 AND category = $2 AND active`, userID, category)
	if err != nil {
		slog.Error("PostgresStore GetActivePeriods query failed", "error", err, "userID", userID, "category", category)
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []models.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// GetTaskCandidates returns the user's open tasks.
func (s *PostgresStore) GetTaskCandidates(userID string) ([]models.TaskReminderCandidate, error) {
	rows, err := s.db.Query(`SELECT task_id, title, priority, due_at FROM tasks WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore GetTaskCandidates query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.TaskReminderCandidate
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetCheckInQuestions returns the user's question sequence in order.
func (s *PostgresStore) GetCheckInQuestions(userID string) ([]models.QuestionSpec, error) {
	rows, err := s.db.Query(`SELECT key, prompt, kind, scale_min, scale_max
		FROM checkin_questions WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		slog.Error("PostgresStore GetCheckInQuestions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []models.QuestionSpec
	for rows.Next() {
		var q models.QuestionSpec
		if err := rows.Scan(&q.Key, &q.Prompt, &q.Kind, &q.ScaleMin, &q.ScaleMax); err != nil {
			return nil, fmt.Errorf("scan question failed: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// SaveCheckInSession persists a completed check-in session.
func (s *PostgresStore) SaveCheckInSession(userID string, session models.CheckInSession) error {
	answersJSON, err := encodeAnswers(session.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO checkin_sessions (user_id, answers, started_at, completed_at) VALUES ($1, $2, $3, $4)`,
		userID, answersJSON, session.StartedAt, session.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore SaveCheckInSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert check-in session for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore SaveCheckInSession succeeded", "userID", userID, "answers", len(session.Answers))
	return nil
}

// GetUserChannelPreference returns the user's channel name and recipient address.
func (s *PostgresStore) GetUserChannelPreference(userID string) (string, string, error) {
	var channelName, recipient string
	err := s.db.QueryRow(`SELECT channel_name, recipient FROM users WHERE id = $1`, userID).
		Scan(&channelName, &recipient)
	if err == sql.ErrNoRows {
		return "", "", models.ErrUnknownUser
	}
	if err != nil {
		slog.Error("PostgresStore GetUserChannelPreference failed", "error", err, "userID", userID)
		return "", "", err
	}
	if channelName == "" || recipient == "" {
		return "", "", models.ErrNoChannelPreference
	}
	return channelName, recipient, nil
}

// FindUserByRecipient resolves a sender address on a channel to a user ID.
func (s *PostgresStore) FindUserByRecipient(channelName, recipient string) (string, error) {
	var userID string
	err := s.db.QueryRow(`SELECT id FROM users WHERE channel_name = $1 AND recipient = $2`,
		channelName, recipient).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", models.ErrUnknownUser
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ListUserIDs returns all known user IDs.
func (s *PostgresStore) ListUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
