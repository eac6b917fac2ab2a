package content

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

func TestBuildCategoryMessage(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	body, err := p.BuildCategoryMessage(ctx, "u1", models.CategoryMotivational)
	if err != nil {
		t.Fatalf("BuildCategoryMessage failed: %v", err)
	}
	if body == "" {
		t.Error("BuildCategoryMessage returned empty body")
	}

	if _, err := p.BuildCategoryMessage(ctx, "u1", models.Category("unknown")); err == nil {
		t.Error("BuildCategoryMessage for unconfigured category expected error")
	}
}

func TestSetPool(t *testing.T) {
	p := NewStaticProvider()
	p.SetPool(models.CategoryMotivational, []string{"only this"})

	for i := 0; i < 10; i++ {
		body, err := p.BuildCategoryMessage(context.Background(), "u1", models.CategoryMotivational)
		if err != nil {
			t.Fatalf("BuildCategoryMessage failed: %v", err)
		}
		if body != "only this" {
			t.Fatalf("BuildCategoryMessage = %q, want the replaced pool entry", body)
		}
	}
}

func TestBuildTaskReminder(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	noDue := models.TaskReminderCandidate{TaskID: "t1", Title: "Water the plants"}
	body, err := p.BuildTaskReminder(ctx, "u1", noDue)
	if err != nil || !strings.Contains(body, "Water the plants") {
		t.Errorf("no-due reminder = %q, %v", body, err)
	}

	past := time.Now().Add(-48 * time.Hour)
	overdue := models.TaskReminderCandidate{TaskID: "t2", Title: "File taxes", DueAt: &past}
	body, err = p.BuildTaskReminder(ctx, "u1", overdue)
	if err != nil || !strings.Contains(body, "File taxes") || !strings.Contains(body, "still open") {
		t.Errorf("overdue reminder = %q, %v", body, err)
	}

	future := time.Now().Add(48 * time.Hour)
	upcoming := models.TaskReminderCandidate{TaskID: "t3", Title: "Book dentist", DueAt: &future}
	body, err = p.BuildTaskReminder(ctx, "u1", upcoming)
	if err != nil || !strings.Contains(body, "Book dentist") || !strings.Contains(body, "due") {
		t.Errorf("upcoming reminder = %q, %v", body, err)
	}

	untitled := models.TaskReminderCandidate{TaskID: "t4"}
	body, err = p.BuildTaskReminder(ctx, "u1", untitled)
	if err != nil || !strings.Contains(body, "t4") {
		t.Errorf("untitled reminder = %q, %v; want task ID fallback", body, err)
	}
}
