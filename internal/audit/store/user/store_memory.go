package user

import (
	"context"
	"sync"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is a read-mostly directory of internal accounts, seeded at startup
// or by tests. The account system itself lives outside this service.
type InMemory struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

// NewInMemory returns an empty in-memory user directory.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[id.UserID]*models.User)}
}

// Seed registers a user record, overwriting any previous entry.
func (s *InMemory) Seed(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *user
	s.users[user.ID] = &clone
}

func (s *InMemory) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *user
	return &clone, nil
}
