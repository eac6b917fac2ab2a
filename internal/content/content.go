// Package content defines the message content provider boundary.
//
// Message generation (including any AI-backed generation) is an external
// collaborator; the scheduling core only consumes this interface. A static
// provider is included so the service works standalone.
package content

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// Provider builds outbound message bodies.
type Provider interface {
	// BuildCategoryMessage returns the body for a category message.
	BuildCategoryMessage(ctx context.Context, userID string, category models.Category) (string, error)

	// BuildTaskReminder returns the body for a reminder about one task.
	BuildTaskReminder(ctx context.Context, userID string, task models.TaskReminderCandidate) (string, error)
}

// StaticProvider serves messages from fixed per-category pools, picking one
// at random per send.
type StaticProvider struct {
	pools map[models.Category][]string
}

// NewStaticProvider creates a provider with the default message pools.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		pools: map[models.Category][]string{
			models.CategoryMotivational: {
				"Take a slow breath. You're doing better than you think.",
				"Small steps count. What's one tiny thing you can do right now?",
				"A short walk or a glass of water can reset your whole afternoon.",
				"Progress, not perfection. Keep going.",
			},
			models.CategoryCheckIn: {
				"Hi! Got a minute for a quick check-in?",
			},
		},
	}
}

// SetPool replaces the message pool for a category.
func (p *StaticProvider) SetPool(category models.Category, messages []string) {
	p.pools[category] = append([]string(nil), messages...)
}

// BuildCategoryMessage returns a random message from the category's pool.
func (p *StaticProvider) BuildCategoryMessage(ctx context.Context, userID string, category models.Category) (string, error) {
	pool := p.pools[category]
	if len(pool) == 0 {
		return "", fmt.Errorf("no messages configured for category %q", category)
	}
	return pool[rand.IntN(len(pool))], nil
}

// BuildTaskReminder formats a reminder naming the task and its due date.
func (p *StaticProvider) BuildTaskReminder(ctx context.Context, userID string, task models.TaskReminderCandidate) (string, error) {
	title := task.Title
	if title == "" {
		title = task.TaskID
	}
	if task.DueAt == nil {
		return fmt.Sprintf("Friendly nudge: %q is still on your list.", title), nil
	}
	now := time.Now()
	if task.DueAt.Before(now) {
		return fmt.Sprintf("Heads up: %q was due %s and is still open.", title, task.DueAt.Format("Jan 2")), nil
	}
	return fmt.Sprintf("Reminder: %q is due %s.", title, task.DueAt.Format("Jan 2 at 3:04 PM")), nil
}
