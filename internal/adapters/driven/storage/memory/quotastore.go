package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// Ensure QuotaStore implements the interface.
var _ driven.QuotaStore = (*QuotaStore)(nil)

// QuotaStore is an in-memory implementation of driven.QuotaStore for testing.
type QuotaStore struct {
	mu      sync.RWMutex
	state   *driven.QuotaState
	history map[string]int64

	// FailSaves makes SaveQuota return an error, for exercising the
	// governor's degraded in-memory mode.
	FailSaves bool
}

// NewQuotaStore creates a new in-memory quota store.
func NewQuotaStore() *QuotaStore {
	return &QuotaStore{
		history: make(map[string]int64),
	}
}

// LoadQuota returns the persisted state.
func (s *QuotaStore) LoadQuota(_ context.Context) (*driven.QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, domain.ErrNotFound
	}
	state := *s.state
	return &state, nil
}

// SaveQuota stores the current state.
func (s *QuotaStore) SaveQuota(_ context.Context, state *driven.QuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves {
		return domain.ErrInvalidInput
	}
	copied := *state
	s.state = &copied
	return nil
}

// RecordHistory appends a finished day's total.
func (s *QuotaStore) RecordHistory(_ context.Context, day string, usage int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[day] = usage
	return nil
}

// UsageHistory returns per-day totals keyed by date.
func (s *QuotaStore) UsageHistory(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.history))
	for day, usage := range s.history {
		out[day] = usage
	}
	return out, nil
}
