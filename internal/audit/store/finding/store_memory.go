package finding

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded finding store used by unit tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	findings map[id.FindingID]*models.Finding
}

// NewInMemory returns an empty in-memory finding store.
func NewInMemory() *InMemory {
	return &InMemory{findings: make(map[id.FindingID]*models.Finding)}
}

func (s *InMemory) Create(ctx context.Context, finding *models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.findings[finding.ID]; exists {
		return sentinel.ErrConflict
	}
	s.findings[finding.ID] = cloneFinding(finding)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, findingID id.FindingID) (*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	finding, ok := s.findings[findingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneFinding(finding), nil
}

func (s *InMemory) ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error) {
	return s.listWhere(func(f *models.Finding) bool { return f.AuditID == auditID })
}

// ListOpenMajor returns the findings that currently block the audit's closure.
func (s *InMemory) ListOpenMajor(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error) {
	return s.listWhere(func(f *models.Finding) bool {
		return f.AuditID == auditID && f.BlocksClosure()
	})
}

// CountByType aggregates the audit's findings grouped by type.
func (s *InMemory) CountByType(ctx context.Context, auditID id.AuditID) (map[models.FindingType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.FindingType]int)
	for _, finding := range s.findings {
		if finding.AuditID == auditID {
			counts[finding.Type]++
		}
	}
	return counts, nil
}

// Execute runs validate and mutate against the stored finding under the write lock.
func (s *InMemory) Execute(ctx context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	finding, ok := s.findings[findingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneFinding(finding)
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	mutate(working)
	s.findings[findingID] = cloneFinding(working)
	return working, nil
}

func (s *InMemory) listWhere(keep func(*models.Finding) bool) ([]*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.Finding, 0)
	for _, finding := range s.findings {
		if keep(finding) {
			matched = append(matched, cloneFinding(finding))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func cloneFinding(f *models.Finding) *models.Finding {
	clone := *f
	if f.DueDate != nil {
		dueDate := *f.DueDate
		clone.DueDate = &dueDate
	}
	if f.AssignedToID != nil {
		assignee := *f.AssignedToID
		clone.AssignedToID = &assignee
	}
	if f.ClosedAt != nil {
		closedAt := *f.ClosedAt
		clone.ClosedAt = &closedAt
	}
	return &clone
}
