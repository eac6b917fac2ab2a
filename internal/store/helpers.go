package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// encodeDays serializes a weekday set as a JSON array of weekday numbers.
func encodeDays(days []models.Weekday) (string, error) {
	nums := make([]int, len(days))
	for i, d := range days {
		nums[i] = int(d)
	}
	b, err := json.Marshal(nums)
	if err != nil {
		return "", fmt.Errorf("failed to marshal active days: %w", err)
	}
	return string(b), nil
}

// decodeDays deserializes a weekday set from its JSON form.
func decodeDays(s string) ([]models.Weekday, error) {
	var nums []int
	if err := json.Unmarshal([]byte(s), &nums); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active days: %w", err)
	}
	days := make([]models.Weekday, len(nums))
	for i, n := range nums {
		days[i] = models.Weekday(n)
	}
	return days, nil
}

// encodeAnswers serializes collected answers preserving question order.
func encodeAnswers(answers []models.Answer) (string, error) {
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to marshal answers: %w", err)
	}
	return string(b), nil
}

// scanPeriod scans a Period from period table rows.
func scanPeriod(rows *sql.Rows) (models.Period, error) {
	var p models.Period
	var daysJSON string
	if err := rows.Scan(&p.Name, &p.StartTime, &p.EndTime, &daysJSON, &p.Active); err != nil {
		return p, fmt.Errorf("scan period failed: %w", err)
	}
	days, err := decodeDays(daysJSON)
	if err != nil {
		return p, err
	}
	p.ActiveDays = days
	return p, nil
}

// scanTask scans a TaskReminderCandidate from task table rows.
func scanTask(rows *sql.Rows) (models.TaskReminderCandidate, error) {
	var t models.TaskReminderCandidate
	var due sql.NullTime
	if err := rows.Scan(&t.TaskID, &t.Title, &t.Priority, &due); err != nil {
		return t, fmt.Errorf("scan task failed: %w", err)
	}
	if due.Valid {
		dueAt := due.Time
		t.DueAt = &dueAt
	}
	return t, nil
}

// nilIfZeroTime returns nil for a zero time so nullable columns stay NULL.
func nilIfZeroTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}
