package auditor

import (
	"context"
	"sync"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded auditor store used by unit tests and local runs.
// CreateIfUserAvailable enforces the one-auditor-per-internal-user invariant
// the same way the postgres store's partial unique index does.
type InMemory struct {
	mu       sync.RWMutex
	auditors map[id.AuditorID]*models.Auditor
	byUser   map[id.UserID]id.AuditorID
}

// NewInMemory returns an empty in-memory auditor store.
func NewInMemory() *InMemory {
	return &InMemory{
		auditors: make(map[id.AuditorID]*models.Auditor),
		byUser:   make(map[id.UserID]id.AuditorID),
	}
}

func (s *InMemory) Create(ctx context.Context, auditor *models.Auditor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(auditor)
}

// CreateIfUserAvailable creates an internal auditor unless one already exists
// for the same user, in which case it returns sentinel.ErrConflict.
func (s *InMemory) CreateIfUserAvailable(ctx context.Context, auditor *models.Auditor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if auditor.UserID != nil {
		if _, taken := s.byUser[*auditor.UserID]; taken {
			return sentinel.ErrConflict
		}
	}
	return s.createLocked(auditor)
}

func (s *InMemory) createLocked(auditor *models.Auditor) error {
	if _, exists := s.auditors[auditor.ID]; exists {
		return sentinel.ErrConflict
	}
	s.auditors[auditor.ID] = cloneAuditor(auditor)
	if auditor.UserID != nil {
		s.byUser[*auditor.UserID] = auditor.ID
	}
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, auditorID id.AuditorID) (*models.Auditor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	auditor, ok := s.auditors[auditorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAuditor(auditor), nil
}

// FindByUserID resolves the auditor record backed by an internal user account.
func (s *InMemory) FindByUserID(ctx context.Context, userID id.UserID) (*models.Auditor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	auditorID, ok := s.byUser[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAuditor(s.auditors[auditorID]), nil
}

func cloneAuditor(a *models.Auditor) *models.Auditor {
	clone := *a
	if a.UserID != nil {
		userID := *a.UserID
		clone.UserID = &userID
	}
	return &clone
}
