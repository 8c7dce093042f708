package memory

import (
	"context"
	"sort"
	"sync"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu      sync.RWMutex
	byRound map[string]map[string]*domain.CandidateSnapshot // round_id -> mint -> row
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byRound: make(map[string]map[string]*domain.CandidateSnapshot),
	}
}

// InsertBulk adds rows atomically. Fails the entire batch on duplicate (round_id, mint).
func (s *SnapshotStore) InsertBulk(_ context.Context, rows []*domain.CandidateSnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before writing anything.
	batch := make(map[string]map[string]struct{})
	for _, r := range rows {
		if r == nil || r.RoundID == "" || r.Mint == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.byRound[r.RoundID][r.Mint]; exists {
			return storage.ErrDuplicateKey
		}
		if batch[r.RoundID] == nil {
			batch[r.RoundID] = make(map[string]struct{})
		}
		if _, exists := batch[r.RoundID][r.Mint]; exists {
			return storage.ErrDuplicateKey
		}
		batch[r.RoundID][r.Mint] = struct{}{}
	}

	for _, r := range rows {
		if s.byRound[r.RoundID] == nil {
			s.byRound[r.RoundID] = make(map[string]*domain.CandidateSnapshot)
		}
		rowCopy := *r
		s.byRound[r.RoundID][r.Mint] = &rowCopy
	}
	return nil
}

// GetByRoundID retrieves all rows of a round, ordered by mint ASC.
func (s *SnapshotStore) GetByRoundID(_ context.Context, roundID string) ([]*domain.CandidateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CandidateSnapshot
	for _, r := range s.byRound[roundID] {
		rowCopy := *r
		result = append(result, &rowCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})
	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
