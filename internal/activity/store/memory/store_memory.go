package memory

import (
	"context"
	"sync"

	"conforma/internal/activity"
	id "conforma/pkg/domain"
)

// Store is the in-memory activity sink for tests and local runs.
type Store struct {
	mu      sync.Mutex
	entries []activity.Entry
}

// New returns an empty in-memory activity store.
func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, entry activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) ListByAudit(ctx context.Context, auditID id.AuditID) ([]activity.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]activity.Entry, 0)
	for _, entry := range s.entries {
		if entry.AuditID == auditID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// All returns a snapshot of every recorded entry, append order preserved.
func (s *Store) All() []activity.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]activity.Entry, len(s.entries))
	copy(snapshot, s.entries)
	return snapshot
}
