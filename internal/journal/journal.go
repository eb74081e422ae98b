// ==============================================================================
// TRANSACTION JOURNAL - internal/journal/journal.go
// ==============================================================================
package journal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cfdclient/internal/domain"
)

// Store archives terminal transaction records for local history.
type Store interface {
	Append(ctx context.Context, record domain.PendingTransaction) error
	List(ctx context.Context, address string, limit int) ([]domain.PendingTransaction, error)
}

// MemoryStore keeps the journal in process memory. It is the default when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.PendingTransaction
	order   []uuid.UUID
}

// NewMemoryStore builds an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]domain.PendingTransaction),
	}
}

// Append stores a record, replacing any previous entry with the same id.
func (s *MemoryStore) Append(ctx context.Context, record domain.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.LocalID]; !exists {
		s.order = append(s.order, record.LocalID)
	}
	s.records[record.LocalID] = record
	return nil
}

// List returns the address's records, newest first.
func (s *MemoryStore) List(ctx context.Context, address string, limit int) ([]domain.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.PendingTransaction
	for _, id := range s.order {
		record := s.records[id]
		if address == "" || strings.EqualFold(record.WalletAddress, address) {
			matched = append(matched, record)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AttemptedAt.After(matched[j].AttemptedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

var _ Store = (*MemoryStore)(nil)
