package inspection

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded inspection-item store used by unit tests and
// local runs.
type InMemory struct {
	mu    sync.RWMutex
	items map[id.InspectionItemID]*models.InspectionItem
}

// NewInMemory returns an empty in-memory inspection-item store.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[id.InspectionItemID]*models.InspectionItem)}
}

// CreateBatch inserts a whole checklist in one call; all or nothing.
func (s *InMemory) CreateBatch(ctx context.Context, items []*models.InspectionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, exists := s.items[item.ID]; exists {
			return sentinel.ErrConflict
		}
	}
	for _, item := range items {
		s.items[item.ID] = cloneItem(item)
	}
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, itemID id.InspectionItemID) (*models.InspectionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *InMemory) ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.InspectionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.InspectionItem, 0)
	for _, item := range s.items {
		if item.AuditID == auditID {
			matched = append(matched, cloneItem(item))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].AreaName != matched[j].AreaName {
			return matched[i].AreaName < matched[j].AreaName
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// Execute runs validate and mutate against the stored item under the write lock.
func (s *InMemory) Execute(ctx context.Context, itemID id.InspectionItemID, validate func(*models.InspectionItem) error, mutate func(*models.InspectionItem)) (*models.InspectionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneItem(item)
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	mutate(working)
	s.items[itemID] = cloneItem(working)
	return working, nil
}

func cloneItem(i *models.InspectionItem) *models.InspectionItem {
	clone := *i
	if i.InspectedByID != nil {
		inspector := *i.InspectedByID
		clone.InspectedByID = &inspector
	}
	return &clone
}
