package action

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded corrective-action store used by unit tests and
// local runs.
type InMemory struct {
	mu      sync.RWMutex
	actions map[id.ActionID]*models.CorrectiveAction
}

// NewInMemory returns an empty in-memory corrective-action store.
func NewInMemory() *InMemory {
	return &InMemory{actions: make(map[id.ActionID]*models.CorrectiveAction)}
}

func (s *InMemory) Create(ctx context.Context, action *models.CorrectiveAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actions[action.ID]; exists {
		return sentinel.ErrConflict
	}
	s.actions[action.ID] = cloneAction(action)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, actionID id.ActionID) (*models.CorrectiveAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	action, ok := s.actions[actionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAction(action), nil
}

func (s *InMemory) ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.CorrectiveAction, error) {
	return s.listWhere(func(a *models.CorrectiveAction) bool { return a.AuditID == auditID })
}

func (s *InMemory) ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.CorrectiveAction, error) {
	return s.listWhere(func(a *models.CorrectiveAction) bool {
		return a.FindingID != nil && *a.FindingID == findingID
	})
}

// CountUnverifiedByFinding counts sibling actions still short of VERIFIED.
// Zero means the finding's remediation is fully verified.
func (s *InMemory) CountUnverifiedByFinding(ctx context.Context, findingID id.FindingID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, action := range s.actions {
		if action.FindingID != nil && *action.FindingID == findingID && action.Status != models.ActionStatusVerified {
			count++
		}
	}
	return count, nil
}

// CountByStatus aggregates the audit's actions grouped by status.
func (s *InMemory) CountByStatus(ctx context.Context, auditID id.AuditID) (map[models.ActionStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.ActionStatus]int)
	for _, action := range s.actions {
		if action.AuditID == auditID {
			counts[action.Status]++
		}
	}
	return counts, nil
}

// Execute runs validate and mutate against the stored action under the write lock.
func (s *InMemory) Execute(ctx context.Context, actionID id.ActionID, validate func(*models.CorrectiveAction) error, mutate func(*models.CorrectiveAction)) (*models.CorrectiveAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[actionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneAction(action)
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	mutate(working)
	s.actions[actionID] = cloneAction(working)
	return working, nil
}

func (s *InMemory) listWhere(keep func(*models.CorrectiveAction) bool) ([]*models.CorrectiveAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.CorrectiveAction, 0)
	for _, action := range s.actions {
		if keep(action) {
			matched = append(matched, cloneAction(action))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func cloneAction(a *models.CorrectiveAction) *models.CorrectiveAction {
	clone := *a
	if a.FindingID != nil {
		findingID := *a.FindingID
		clone.FindingID = &findingID
	}
	if a.CompletedAt != nil {
		completedAt := *a.CompletedAt
		clone.CompletedAt = &completedAt
	}
	if a.VerifiedAt != nil {
		verifiedAt := *a.VerifiedAt
		clone.VerifiedAt = &verifiedAt
	}
	if a.VerifiedByID != nil {
		verifiedBy := *a.VerifiedByID
		clone.VerifiedByID = &verifiedBy
	}
	return &clone
}
