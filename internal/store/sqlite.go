// Package store provides storage backends for CarePing.
//
// This file implements the SQLite-backed user-data store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/karunahq/CarePing/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// UpsertUser registers a user with their channel preference.
func (s *SQLiteStore) UpsertUser(userID, channelName, recipient string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO users (id, channel_name, recipient) VALUES (?, ?, ?)`,
		userID, channelName, recipient)
	if err != nil {
		slog.Error("SQLiteStore UpsertUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to upsert user %s: %w", userID, err)
	}
	return nil
}

// UpsertPeriod stores or replaces one period for a user and category.
func (s *SQLiteStore) UpsertPeriod(userID string, category models.Category, p models.Period) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("period %q invalid: %w", p.Name, err)
	}
	daysJSON, err := encodeDays(p.ActiveDays)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO periods (user_id, category, name, start_time, end_time, active_days, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, category, p.Name, p.StartTime, p.EndTime, daysJSON, p.Active)
	if err != nil {
		slog.Error("SQLiteStore UpsertPeriod failed", "error", err, "userID", userID, "period", p.Name)
		return fmt.Errorf("failed to upsert period %s: %w", p.Name, err)
	}
	return nil
}

// UpsertTask stores or replaces one open task for a user.
func (s *SQLiteStore) UpsertTask(userID string, t models.TaskReminderCandidate) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO tasks (user_id, task_id, title, priority, due_at) VALUES (?, ?, ?, ?, ?)`,
		userID, t.TaskID, t.Title, t.Priority, nilIfZeroTime(t.DueAt))
	if err != nil {
		slog.Error("SQLiteStore UpsertTask failed", "error", err, "userID", userID, "taskID", t.TaskID)
		return fmt.Errorf("failed to upsert task %s: %w", t.TaskID, err)
	}
	return nil
}

// SetQuestions replaces the user's check-in question sequence.
func (s *SQLiteStore) SetQuestions(userID string, questions []models.QuestionSpec) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM checkin_questions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear questions: %w", err)
	}
	for i, q := range questions {
		_, err := tx.Exec(`INSERT INTO checkin_questions (user_id, position, key, prompt, kind, scale_min, scale_max)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, i, q.Key, q.Prompt, q.Kind, q.ScaleMin, q.ScaleMax)
		if err != nil {
			return fmt.Errorf("failed to insert question %s: %w", q.Key, err)
		}
	}
	return tx.Commit()
}

// GetActivePeriods returns the user's active periods for a category.
func (s *SQLiteStore) GetActivePeriods(userID string, category models.Category) ([]models.Period, error) {
	rows, err := s.db.Query(`SELECT name, start_time, end_time, active_days, active
		FROM periods WHERE user_id = ? AND category = ? AND active = 1`, userID, category)
	if err != nil {
		slog.Error("SQLiteStore GetActivePeriods query failed", "error", err, "userID", userID, "category", category)
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
func (s *SQLiteStore) GetTaskCandidates(userID string) ([]models.TaskReminderCandidate, error) {
	rows, err := s.db.Query(`SELECT task_id, title, priority, due_at FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetTaskCandidates query failed", "error", err, "userID", userID)
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
func (s *SQLiteStore) GetCheckInQuestions(userID string) ([]models.QuestionSpec, error) {
	rows, err := s.db.Query(`SELECT key, prompt, kind, scale_min, scale_max
		FROM checkin_questions WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetCheckInQuestions query failed", "error", err, "userID", userID)
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
func (s *SQLiteStore) SaveCheckInSession(userID string, session models.CheckInSession) error {
	answersJSON, err := encodeAnswers(session.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO checkin_sessions (user_id, answers, started_at, completed_at) VALUES (?, ?, ?, ?)`,
		userID, answersJSON, session.StartedAt, session.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveCheckInSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert check-in session for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore SaveCheckInSession succeeded", "userID", userID, "answers", len(session.Answers))
	return nil
}

// GetUserChannelPreference returns the user's channel name and recipient address.
func (s *SQLiteStore) GetUserChannelPreference(userID string) (string, string, error) {
	var channelName, recipient string
	err := s.db.QueryRow(`SELECT channel_name, recipient FROM users WHERE id = ?`, userID).
		Scan(&channelName, &recipient)
	if err == sql.ErrNoRows {
		return "", "", models.ErrUnknownUser
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserChannelPreference failed", "error", err, "userID", userID)
		return "", "", err
	}
	if channelName == "" || recipient == "" {
		return "", "", models.ErrNoChannelPreference
	}
	return channelName, recipient, nil
}

// FindUserByRecipient resolves a sender address on a channel to a user ID.
func (s *SQLiteStore) FindUserByRecipient(channelName, recipient string) (string, error) {
	var userID string
	err := s.db.QueryRow(`SELECT id FROM users WHERE channel_name = ? AND recipient = ?`,
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
func (s *SQLiteStore) ListUserIDs() ([]string, error) {
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

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
