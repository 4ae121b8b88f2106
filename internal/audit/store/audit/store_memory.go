package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded audit store used by unit tests and local runs.
// It mirrors the postgres store's semantics, including Execute's atomic
// validate-then-mutate under the lock.
type InMemory struct {
	mu     sync.RWMutex
	audits map[id.AuditID]*models.Audit
}

// NewInMemory returns an empty in-memory audit store.
func NewInMemory() *InMemory {
	return &InMemory{audits: make(map[id.AuditID]*models.Audit)}
}

func (s *InMemory) Create(ctx context.Context, audit *models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.audits[audit.ID]; exists {
		return sentinel.ErrConflict
	}
	s.audits[audit.ID] = cloneAudit(audit)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, auditID id.AuditID) (*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audit, ok := s.audits[auditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAudit(audit), nil
}

// List returns audits, optionally filtered by status, ordered by start date.
func (s *InMemory) List(ctx context.Context, status models.AuditStatus) ([]*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audits := make([]*models.Audit, 0, len(s.audits))
	for _, audit := range s.audits {
		if status != "" && audit.Status != status {
			continue
		}
		audits = append(audits, cloneAudit(audit))
	}
	sort.Slice(audits, func(i, j int) bool {
		return audits[i].StartDate.Before(audits[j].StartDate)
	})
	return audits, nil
}

// Execute runs validate and mutate against the stored audit while holding the
// write lock, so no concurrent update can interleave between them.
func (s *InMemory) Execute(ctx context.Context, auditID id.AuditID, validate func(*models.Audit) error, mutate func(*models.Audit)) (*models.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audit, ok := s.audits[auditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneAudit(audit)
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	mutate(working)
	s.audits[auditID] = cloneAudit(working)
	return working, nil
}

// ListDueToStart returns up to limit PLANNED audits whose start date has passed.
func (s *InMemory) ListDueToStart(ctx context.Context, now time.Time, limit int) ([]*models.Audit, error) {
	return s.listWhere(limit, func(a *models.Audit) bool {
		return a.Status == models.AuditStatusPlanned && !a.StartDate.After(now)
	})
}

// ListOverdue returns up to limit IN_PROGRESS audits whose end date has passed.
func (s *InMemory) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Audit, error) {
	return s.listWhere(limit, func(a *models.Audit) bool {
		return a.Status == models.AuditStatusInProgress && a.EndDate != nil && a.EndDate.Before(now)
	})
}

func (s *InMemory) listWhere(limit int, keep func(*models.Audit) bool) ([]*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.Audit, 0)
	for _, audit := range s.audits {
		if keep(audit) {
			matched = append(matched, cloneAudit(audit))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartDate.Before(matched[j].StartDate)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func cloneAudit(a *models.Audit) *models.Audit {
	clone := *a
	if a.EndDate != nil {
		endDate := *a.EndDate
		clone.EndDate = &endDate
	}
	if a.AuditeeID != nil {
		auditee := *a.AuditeeID
		clone.AuditeeID = &auditee
	}
	if a.DepartmentID != nil {
		department := *a.DepartmentID
		clone.DepartmentID = &department
	}
	return &clone
}
