package store

import (
	"fmt"
	"sync"

	"github.com/karunahq/CarePing/internal/models"
)

// userRecord is the in-memory shape of one user's configuration.
type userRecord struct {
	channelName string
	recipient   string
	periods     map[models.Category][]models.Period
	tasks       []models.TaskReminderCandidate
	questions   []models.QuestionSpec
}

// InMemoryStore is a map-backed Store used as the default backend and in
// tests. All methods are safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*userRecord
	sessions map[string][]models.CheckInSession
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]*userRecord),
		sessions: make(map[string][]models.CheckInSession),
	}
}

// UpsertUser registers a user with their channel preference.
func (s *InMemoryStore) UpsertUser(userID, channelName, recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.users[userID]
	if rec == nil {
		rec = &userRecord{periods: make(map[models.Category][]models.Period)}
		s.users[userID] = rec
	}
	rec.channelName = channelName
	rec.recipient = recipient
}

// SetPeriods replaces the user's periods for a category.
func (s *InMemoryStore) SetPeriods(userID string, category models.Category, periods []models.Period) error {
	for i := range periods {
		if err := periods[i].Validate(); err != nil {
			return fmt.Errorf("period %q invalid: %w", periods[i].Name, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.users[userID]
	if rec == nil {
		return models.ErrUnknownUser
	}
	rec.periods[category] = append([]models.Period(nil), periods...)
	return nil
}

// SetTasks replaces the user's open task list.
func (s *InMemoryStore) SetTasks(userID string, tasks []models.TaskReminderCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.users[userID]
	if rec == nil {
		return models.ErrUnknownUser
	}
	rec.tasks = append([]models.TaskReminderCandidate(nil), tasks...)
	return nil
}

// SetQuestions replaces the user's check-in question sequence.
func (s *InMemoryStore) SetQuestions(userID string, questions []models.QuestionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.users[userID]
	if rec == nil {
		return models.ErrUnknownUser
	}
	rec.questions = append([]models.QuestionSpec(nil), questions...)
	return nil
}

// GetActivePeriods returns the user's active periods for a category.
func (s *InMemoryStore) GetActivePeriods(userID string, category models.Category) ([]models.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.users[userID]
	if rec == nil {
		return nil, models.ErrUnknownUser
	}
	var active []models.Period
	for _, p := range rec.periods[category] {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

// GetTaskCandidates returns the user's open tasks.
func (s *InMemoryStore) GetTaskCandidates(userID string) ([]models.TaskReminderCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.users[userID]
	if rec == nil {
		return nil, models.ErrUnknownUser
	}
	return append([]models.TaskReminderCandidate(nil), rec.tasks...), nil
}

// GetCheckInQuestions returns the user's question sequence in order.
func (s *InMemoryStore) GetCheckInQuestions(userID string) ([]models.QuestionSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.users[userID]
	if rec == nil {
		return nil, models.ErrUnknownUser
	}
	return append([]models.QuestionSpec(nil), rec.questions...), nil
}

// SaveCheckInSession appends a completed session to the user's history.
func (s *InMemoryStore) SaveCheckInSession(userID string, session models.CheckInSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[userID]; !exists {
		return models.ErrUnknownUser
	}
	s.sessions[userID] = append(s.sessions[userID], session)
	return nil
}

// GetCheckInSessions returns the user's saved sessions (for tests and the
// admin API).
func (s *InMemoryStore) GetCheckInSessions(userID string) []models.CheckInSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CheckInSession(nil), s.sessions[userID]...)
}

// GetUserChannelPreference returns the user's channel name and recipient address.
func (s *InMemoryStore) GetUserChannelPreference(userID string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.users[userID]
	if rec == nil {
		return "", "", models.ErrUnknownUser
	}
	if rec.channelName == "" || rec.recipient == "" {
		return "", "", models.ErrNoChannelPreference
	}
	return rec.channelName, rec.recipient, nil
}

// FindUserByRecipient resolves a sender address on a channel to a user ID.
func (s *InMemoryStore) FindUserByRecipient(channelName, recipient string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for userID, rec := range s.users {
		if rec.channelName == channelName && rec.recipient == recipient {
			return userID, nil
		}
	}
	return "", models.ErrUnknownUser
}

// ListUserIDs returns all known user IDs.
func (s *InMemoryStore) ListUserIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
