package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// Weighting constants for task reminder selection
const (
	// noDueDateWeight is the fixed urgency weight for tasks without a due date.
	noDueDateWeight = 0.5
	// overdueWeightCap bounds how much urgency an overdue task can accumulate.
	overdueWeightCap = 4.0
	// urgencyHorizon is how far out a due date starts contributing urgency.
	urgencyHorizon = 7 * 24 * time.Hour
)

// PriorityWeight maps a task priority to its selection weight. Unknown
// priorities weigh the same as low.
func PriorityWeight(p models.TaskPriority) float64 {
	switch p {
	case models.PriorityCritical:
		return 8
	case models.PriorityHigh:
		return 4
	case models.PriorityMedium:
		return 2
	default:
		return 1
	}
}

// UrgencyWeight maps a task's due date to a weight that grows monotonically
// as the due date approaches and keeps growing past it, capped so a single
// long-overdue task cannot drown out everything else. Tasks with no due
// date get a fixed baseline below any task due within the horizon.
func UrgencyWeight(now time.Time, dueAt *time.Time) float64 {
	if dueAt == nil {
		return noDueDateWeight
	}
	until := dueAt.Sub(now)
	if until >= urgencyHorizon {
		return noDueDateWeight
	}
	if until <= 0 {
		// Overdue: grow linearly with days overdue, capped.
		overdueDays := float64(-until) / float64(24*time.Hour)
		w := 2.0 + overdueDays*0.5
		if w > overdueWeightCap {
			return overdueWeightCap
		}
		return w
	}
	// Due within the horizon: scale from just above baseline up to 2.0 at
	// the due instant.
	frac := 1 - float64(until)/float64(urgencyHorizon)
	return noDueDateWeight + frac*(2.0-noDueDateWeight)
}

// taskWeight combines priority and urgency for one candidate.
func taskWeight(now time.Time, t models.TaskReminderCandidate) float64 {
	return PriorityWeight(t.Priority) * UrgencyWeight(now, t.DueAt)
}

// pickWeighted selects one candidate with probability proportional to its
// combined weight. It returns false for an empty candidate set.
func pickWeighted(now time.Time, candidates []models.TaskReminderCandidate) (models.TaskReminderCandidate, bool) {
	if len(candidates) == 0 {
		return models.TaskReminderCandidate{}, false
	}

	total := 0.0
	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		w := taskWeight(now, c)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return candidates[rand.IntN(len(candidates))], true
	}

	target := rand.Float64() * total
	for i, w := range weights {
		target -= w
		if target < 0 {
			return candidates[i], true
		}
	}
	return candidates[len(candidates)-1], true
}
