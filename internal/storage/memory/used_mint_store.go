package memory

import (
	"context"
	"sync"

	"solana-round-selector/internal/storage"
)

// UsedMintStore is an in-memory implementation of storage.UsedMintStore.
// History is kept in recording order.
type UsedMintStore struct {
	mu      sync.RWMutex
	history []string
}

// NewUsedMintStore creates a new in-memory used mint store.
func NewUsedMintStore() *UsedMintStore {
	return &UsedMintStore{}
}

// Excluded returns every recorded mint when window <= 0, otherwise the mints of the last window recordings.
func (s *UsedMintStore) Excluded(_ context.Context, window int) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tail := s.history
	if window > 0 && len(tail) > window {
		tail = tail[len(tail)-window:]
	}

	out := make(map[string]struct{}, len(tail))
	for _, m := range tail {
		out[m] = struct{}{}
	}
	return out, nil
}

// Record appends a chosen mint to the history.
func (s *UsedMintStore) Record(_ context.Context, mint string) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, mint)
	return nil
}

// Len returns the number of recordings.
func (s *UsedMintStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

var _ storage.UsedMintStore = (*UsedMintStore)(nil)
