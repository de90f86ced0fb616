package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/stategraph/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Checkpoint
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Checkpoint),
	}
}

// Save persists the checkpoint in memory.
func (s *Store) Save(ctx context.Context, runID string, cp *domain.Checkpoint) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := clone(cp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = copied
	return nil
}

// Load retrieves the checkpoint from memory.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}

	// Copy on read so the caller can't mutate the stored checkpoint by pointer
	return clone(cp), nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns stored run IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}

func clone(cp *domain.Checkpoint) *domain.Checkpoint {
	out := *cp
	out.Visits = make(map[string]int, len(cp.Visits))
	for k, v := range cp.Visits {
		out.Visits[k] = v
	}
	out.Values = make(map[string]any, len(cp.Values))
	for k, v := range cp.Values {
		if l, ok := v.([]any); ok {
			v = append([]any(nil), l...)
		}
		out.Values[k] = v
	}
	out.History = append([]string(nil), cp.History...)
	return &out
}
