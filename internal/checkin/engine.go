// Package checkin implements the stateful check-in conversation engine.
//
// The engine walks a user through their ordered question sequence,
// validates each answer, and commits the completed session to the user-data
// store exactly once. One conversation may be active per user; different
// users' conversations proceed fully in parallel.
package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/store"
)

// cancel commands a user may send at any step to abandon the conversation
// without persisting a partial session.
var cancelCommands = map[string]bool{
	"cancel": true,
	"stop":   true,
	"quit":   true,
}

// completionMessage is sent when the final answer is accepted.
const completionMessage = "That's everything — thanks for checking in! Talk to you next time."

// cancelMessage is sent when the user abandons a conversation.
const cancelMessage = "No problem, check-in cancelled. Catch you later!"

// Engine drives per-user check-in conversations.
type Engine struct {
	store store.Store

	mu        sync.Mutex
	states    map[string]*models.ConversationState
	userLocks map[string]*sync.Mutex
}

// NewEngine creates a check-in engine backed by the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store:     st,
		states:    make(map[string]*models.ConversationState),
		userLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-user mutex, creating it on first use. Per-user
// locking lets different users' check-ins proceed in parallel while
// serializing replies from one user.
func (e *Engine) lockFor(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, exists := e.userLocks[userID]
	if !exists {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	return l
}

// Active reports whether a conversation is in progress for the user.
func (e *Engine) Active(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, exists := e.states[userID]
	return exists
}

// FirstPrompt returns the first question's prompt without creating any
// state. The delivery orchestrator sends this and calls Begin only after
// the send is confirmed, so a failed send never leaves a half-started
// conversation.
func (e *Engine) FirstPrompt(ctx context.Context, userID string) (string, error) {
	questions, err := e.store.GetCheckInQuestions(userID)
	if err != nil {
		return "", fmt.Errorf("failed to load check-in questions: %w", err)
	}
	if len(questions) == 0 {
		return "", models.ErrNoQuestions
	}
	return formatQuestion(questions[0]), nil
}

// Begin creates a conversation at step 0 for the user. It is the
// "check-in started" marker and runs at most once per session: a second
// call while a conversation is active returns ErrConversationActive.
func (e *Engine) Begin(ctx context.Context, userID string) error {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	_, exists := e.states[userID]
	e.mu.Unlock()
	if exists {
		return models.ErrConversationActive
	}

	questions, err := e.store.GetCheckInQuestions(userID)
	if err != nil {
		return fmt.Errorf("failed to load check-in questions: %w", err)
	}
	if len(questions) == 0 {
		return models.ErrNoQuestions
	}

	now := time.Now()
	e.mu.Lock()
	e.states[userID] = &models.ConversationState{
		UserID:         userID,
		StepIndex:      0,
		StartedAt:      now,
		LastActivityAt: now,
	}
	e.mu.Unlock()

	slog.Info("Check-in conversation started", "userID", userID, "questions", len(questions))
	return nil
}

// HandleReply processes one inbound answer. Invalid input re-prompts with
// guidance and does not advance the step. Accepting the final answer
// persists the session, clears the state, and returns completed=true.
func (e *Engine) HandleReply(ctx context.Context, userID, text string) (reply string, completed bool, err error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	state, exists := e.states[userID]
	e.mu.Unlock()
	if !exists {
		return "", false, models.ErrNoConversation
	}

	trimmed := strings.TrimSpace(text)
	if cancelCommands[strings.ToLower(trimmed)] {
		e.clearState(userID)
		slog.Info("Check-in conversation cancelled by user", "userID", userID, "step", state.StepIndex)
		return cancelMessage, true, nil
	}

	questions, err := e.store.GetCheckInQuestions(userID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load check-in questions: %w", err)
	}
	if state.StepIndex >= len(questions) {
		// Question set shrank underneath an active conversation; treat the
		// collected answers as complete.
		return e.complete(userID, state)
	}

	question := questions[state.StepIndex]
	value, validationErr := validateAnswer(question, trimmed)
	if validationErr != "" {
		slog.Debug("Check-in answer failed validation", "userID", userID, "step", state.StepIndex, "key", question.Key)
		return validationErr, false, nil
	}

	// The conversation may have been expired by an unrelated outbound send
	// while the answer was being validated; state fields are only mutated
	// under e.mu and only while the state is still the active one.
	e.mu.Lock()
	if cur, active := e.states[userID]; !active || cur != state {
		e.mu.Unlock()
		slog.Debug("Conversation expired while handling reply", "userID", userID)
		return "", false, models.ErrNoConversation
	}
	state.Answers = append(state.Answers, models.Answer{Key: question.Key, Value: value})
	state.StepIndex++
	state.LastActivityAt = time.Now()
	step := state.StepIndex
	e.mu.Unlock()

	if step >= len(questions) {
		return e.complete(userID, state)
	}

	slog.Debug("Check-in advanced", "userID", userID, "step", step)
	return formatQuestion(questions[step]), false, nil
}

// complete atomically retires the state and persists the finished session
// once. A conversation superseded in the meantime is not persisted.
func (e *Engine) complete(userID string, state *models.ConversationState) (string, bool, error) {
	e.mu.Lock()
	cur, active := e.states[userID]
	if !active || cur != state {
		e.mu.Unlock()
		return "", false, models.ErrNoConversation
	}
	delete(e.states, userID)
	e.mu.Unlock()

	session := models.CheckInSession{
		UserID:      userID,
		Answers:     state.Answers,
		StartedAt:   state.StartedAt,
		CompletedAt: time.Now(),
	}
	if err := e.store.SaveCheckInSession(userID, session); err != nil {
		slog.Error("Failed to persist check-in session", "error", err, "userID", userID, "answers", len(session.Answers))
		return "", true, fmt.Errorf("failed to save check-in session: %w", err)
	}

	slog.Info("Check-in conversation completed", "userID", userID, "answers", len(session.Answers))
	return completionMessage, true, nil
}

// Cancel clears the user's conversation without persisting anything.
func (e *Engine) Cancel(userID string) {
	e.clearState(userID)
}

// ExpireIfStale clears the user's conversation state. The delivery
// orchestrator calls this before any unrelated outbound message so a later
// unrelated reply is not misinterpreted as a check-in answer.
func (e *Engine) ExpireIfStale(userID string) {
	e.mu.Lock()
	state, exists := e.states[userID]
	if exists {
		delete(e.states, userID)
	}
	e.mu.Unlock()
	if exists {
		slog.Info("Check-in conversation superseded by unrelated outbound message",
			"userID", userID, "step", state.StepIndex)
	}
}

// ExpireInactive clears conversations idle longer than maxIdle and returns
// how many were cleared.
func (e *Engine) ExpireInactive(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	e.mu.Lock()
	defer e.mu.Unlock()

	expired := 0
	for userID, state := range e.states {
		if state.LastActivityAt.Before(cutoff) {
			delete(e.states, userID)
			expired++
			slog.Info("Check-in conversation expired for inactivity", "userID", userID, "step", state.StepIndex)
		}
	}
	return expired
}

// StepIndex returns the user's current step, or -1 when no conversation is
// active. Exposed for tests and the admin API.
func (e *Engine) StepIndex(userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, exists := e.states[userID]
	if !exists {
		return -1
	}
	return state.StepIndex
}

func (e *Engine) clearState(userID string) {
	e.mu.Lock()
	delete(e.states, userID)
	e.mu.Unlock()
}

// formatQuestion renders a question prompt, appending answer guidance for
// constrained answer kinds.
func formatQuestion(q models.QuestionSpec) string {
	switch q.Kind {
	case models.AnswerKindScale:
		return fmt.Sprintf("%s (reply with a number from %d to %d)", q.Prompt, q.ScaleMin, q.ScaleMax)
	case models.AnswerKindYesNo:
		return fmt.Sprintf("%s (yes/no)", q.Prompt)
	default:
		return q.Prompt
	}
}

// validateAnswer checks text against the question's expected answer kind.
// It returns the canonical value on success, or a non-empty re-prompt with
// guidance on failure. Unknown input never errors the conversation.
func validateAnswer(q models.QuestionSpec, text string) (value string, reprompt string) {
	switch q.Kind {
	case models.AnswerKindScale:
		n, err := strconv.Atoi(text)
		if err != nil || n < q.ScaleMin || n > q.ScaleMax {
			return "", fmt.Sprintf("Sorry, I need a number from %d to %d. %s", q.ScaleMin, q.ScaleMax, formatQuestion(q))
		}
		return strconv.Itoa(n), ""
	case models.AnswerKindYesNo:
		switch strings.ToLower(text) {
		case "yes", "y", "yeah", "yep":
			return "yes", ""
		case "no", "n", "nope":
			return "no", ""
		default:
			return "", fmt.Sprintf("Sorry, I didn't catch that — a simple yes or no works. %s", formatQuestion(q))
		}
	default: // free text
		if text == "" {
			return "", fmt.Sprintf("I didn't get anything there. %s", formatQuestion(q))
		}
		return text, ""
	}
}
