package rules

import (
	"fmt"
	"sort"
	"sync"
)

// PoolStore holds the candidates a selector chooses from.
type PoolStore interface {
	Add(c Candidate) error
	Get(id int64) (Candidate, error)
	// List returns all candidates ordered by ID
	List() ([]Candidate, error)
	Delete(id int64) error
}

// InMemoryPoolStore implements PoolStore with a map guarded by an RWMutex.
type InMemoryPoolStore struct {
	candidates map[int64]Candidate
	mu         sync.RWMutex
}

// NewInMemoryPoolStore creates an empty pool, optionally seeded.
func NewInMemoryPoolStore(seed ...Candidate) *InMemoryPoolStore {
	s := &InMemoryPoolStore{candidates: make(map[int64]Candidate, len(seed))}
	for _, c := range seed {
		s.candidates[c.ID] = c
	}
	return s
}

func (s *InMemoryPoolStore) Add(c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidates[c.ID]; exists {
		return fmt.Errorf("%w: %d", ErrCandidateExists, c.ID)
	}
	s.candidates[c.ID] = c
	return nil
}

func (s *InMemoryPoolStore) Get(id int64) (Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.candidates[id]
	if !exists {
		return Candidate{}, fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}
	return c, nil
}

func (s *InMemoryPoolStore) List() ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryPoolStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidates[id]; !exists {
		return fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}
	delete(s.candidates, id)
	return nil
}
