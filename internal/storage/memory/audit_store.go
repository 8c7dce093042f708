package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/storage"
)

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	byRound map[string]*domain.SelectionAudit // keyed by round_id
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{
		byRound: make(map[string]*domain.SelectionAudit),
	}
}

// Insert adds a new audit. Returns ErrDuplicateKey if round_id already exists.
func (s *AuditStore) Insert(_ context.Context, a *domain.SelectionAudit) error {
	if a == nil || a.RoundID == "" || a.ChosenMint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRound[a.RoundID]; exists {
		return storage.ErrDuplicateKey
	}

	s.byRound[a.RoundID] = cloneAudit(a)
	return nil
}

// GetByRoundID retrieves the audit of a round. Returns ErrNotFound if not exists.
func (s *AuditStore) GetByRoundID(_ context.Context, roundID string) (*domain.SelectionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.byRound[roundID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneAudit(a), nil
}

// GetByTimeRange retrieves audits with snapshot time within [start, end], ordered by snapshot time ASC.
func (s *AuditStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.SelectionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SelectionAudit
	for _, a := range s.byRound {
		if a.SnapshotTime.Before(start) || a.SnapshotTime.After(end) {
			continue
		}
		result = append(result, cloneAudit(a))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SnapshotTime.Equal(result[j].SnapshotTime) {
			return result[i].RoundID < result[j].RoundID
		}
		return result[i].SnapshotTime.Before(result[j].SnapshotTime)
	})
	return result, nil
}

// cloneAudit copies the audit including its slices and maps so callers cannot mutate stored state.
func cloneAudit(a *domain.SelectionAudit) *domain.SelectionAudit {
	c := *a
	c.RawCandidates = slices.Clone(a.RawCandidates)
	c.Eligible = slices.Clone(a.Eligible)
	c.Relaxations = slices.Clone(a.Relaxations)
	c.Scores = maps.Clone(a.Scores)
	c.Weights = maps.Clone(a.Weights)
	return &c
}

var _ storage.AuditStore = (*AuditStore)(nil)
