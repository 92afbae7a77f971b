package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule definition persistence and retrieval.
type RuleStore interface {
	// Add a new definition
	Add(def *Definition) error

	// Get a definition by ID
	Get(id string) (*Definition, error)

	// List all definitions, active or not, in evaluation order
	List() ([]*Definition, error)

	// List active definitions in evaluation order
	ListActive() ([]*Definition, error)

	// Update an existing definition
	Update(def *Definition) error

	// Delete a definition
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Definitions with equal priority keep their insertion order.
type InMemoryRuleStore struct {
	defs  map[string]*Definition
	seq   map[string]int
	next  int
	clock func() time.Time
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		defs:  make(map[string]*Definition),
		seq:   make(map[string]int),
		clock: time.Now,
	}
}

// Add stores a copy of def, setting CreatedAt and UpdatedAt.
func (s *InMemoryRuleStore) Add(def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, def.ID)
	}

	now := s.clock()
	def.CreatedAt = now
	def.UpdatedAt = now
	s.defs[def.ID] = def.Clone()
	s.seq[def.ID] = s.next
	s.next++
	return nil
}

// Get retrieves a copy of the definition with the given ID
func (s *InMemoryRuleStore) Get(id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.defs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return def.Clone(), nil
}

// List returns every definition in evaluation order
func (s *InMemoryRuleStore) List() ([]*Definition, error) {
	return s.list(false), nil
}

// ListActive returns the active definitions in evaluation order
func (s *InMemoryRuleStore) ListActive() ([]*Definition, error) {
	return s.list(true), nil
}

func (s *InMemoryRuleStore) list(activeOnly bool) []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		if activeOnly && !def.Active {
			continue
		}
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

// Update replaces an existing definition, preserving CreatedAt
func (s *InMemoryRuleStore) Update(def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.defs[def.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, def.ID)
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = s.clock()
	s.defs[def.ID] = def.Clone()
	return nil
}

// Delete removes a definition from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	delete(s.defs, id)
	delete(s.seq, id)
	return nil
}
