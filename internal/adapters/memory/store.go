// Package memory provides an in-memory RunStore, used by the CLI and tests.
package memory

import (
	"context"
	"sync"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// Store implements ports.RunStore with a mutex-guarded map.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*domain.RunResult
	ids  []string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*domain.RunResult)}
}

// Save persists a copy of the result so later caller mutations cannot leak
// into the store.
func (s *Store) Save(ctx context.Context, result *domain.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *result
	copied.Jobs = make([]domain.JobResult, len(result.Jobs))
	copy(copied.Jobs, result.Jobs)

	if _, exists := s.runs[result.ID]; !exists {
		s.ids = append(s.ids, result.ID)
	}
	s.runs[result.ID] = &copied
	return nil
}

// Load retrieves a stored result by run ID. The returned value is a copy;
// mutating it never reaches the stored record.
func (s *Store) Load(ctx context.Context, runID string) (*domain.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	copied := *result
	copied.Jobs = make([]domain.JobResult, len(result.Jobs))
	copy(copied.Jobs, result.Jobs)
	return &copied, nil
}

// List returns run IDs in insertion order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.ids))
	copy(ids, s.ids)
	return ids, nil
}

// Delete removes a stored run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil
	}
	delete(s.runs, runID)
	for i, id := range s.ids {
		if id == runID {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return nil
}
