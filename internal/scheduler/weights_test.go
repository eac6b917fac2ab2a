package scheduler

import (
	"testing"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

func TestPriorityWeightOrdering(t *testing.T) {
	order := []models.TaskPriority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical}
	for i := 1; i < len(order); i++ {
		if PriorityWeight(order[i]) <= PriorityWeight(order[i-1]) {
			t.Errorf("PriorityWeight(%s) = %v not greater than PriorityWeight(%s) = %v",
				order[i], PriorityWeight(order[i]), order[i-1], PriorityWeight(order[i-1]))
		}
	}
	if PriorityWeight("mystery") != PriorityWeight(models.PriorityLow) {
		t.Error("unknown priority should weigh the same as low")
	}
}

func TestUrgencyWeightMonotonic(t *testing.T) {
	now := time.Now()
	at := func(d time.Duration) *time.Time {
		tm := now.Add(d)
		return &tm
	}

	// Weight must not decrease as the due date approaches and passes.
	offsets := []time.Duration{
		10 * 24 * time.Hour,
		6 * 24 * time.Hour,
		2 * 24 * time.Hour,
		12 * time.Hour,
		0,
		-24 * time.Hour,
		-10 * 24 * time.Hour,
	}
	prev := -1.0
	for _, off := range offsets {
		w := UrgencyWeight(now, at(off))
		if w < prev {
			t.Errorf("UrgencyWeight at %v = %v, less than previous %v", off, w, prev)
		}
		prev = w
	}

	if w := UrgencyWeight(now, at(-365*24*time.Hour)); w > overdueWeightCap {
		t.Errorf("overdue weight = %v, want capped at %v", w, overdueWeightCap)
	}

	noDue := UrgencyWeight(now, nil)
	dueSoon := UrgencyWeight(now, at(time.Hour))
	if noDue >= dueSoon {
		t.Errorf("no-due weight %v should be below due-soon weight %v", noDue, dueSoon)
	}
}

func TestPickWeightedEmpty(t *testing.T) {
	if _, ok := pickWeighted(time.Now(), nil); ok {
		t.Error("pickWeighted(nil) returned ok")
	}
}

func TestPickWeightedFavorsHeavierTasks(t *testing.T) {
	now := time.Now()
	candidates := []models.TaskReminderCandidate{
		{TaskID: "critical", Priority: models.PriorityCritical},
		{TaskID: "low", Priority: models.PriorityLow},
	}

	const draws = 2000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		task, ok := pickWeighted(now, candidates)
		if !ok {
			t.Fatal("pickWeighted returned !ok for non-empty candidates")
		}
		counts[task.TaskID]++
	}

	// Critical carries 8x the priority weight of low; expect it to win the
	// large majority of draws. The bound is loose to avoid flakiness.
	if frac := float64(counts["critical"]) / draws; frac < 0.75 {
		t.Errorf("critical selected %.2f of draws, want > 0.75 (counts: %v)", frac, counts)
	}
	if counts["low"] == 0 {
		t.Error("low-priority task never selected; weighting must not starve candidates")
	}
}
