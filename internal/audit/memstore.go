package audit

import (
	"context"
	"sync"
)

// MemStore is an in-memory [Store] for development and tests. Records are
// kept in append order; nothing is ever evicted.
type MemStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

// Append implements [Store.Append].
func (s *MemStore) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, *rec)
	return nil
}

// Recent implements [Store.Recent].
func (s *MemStore) Recent(ctx context.Context, companyID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].CompanyID == companyID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// Len returns the total number of archived records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
