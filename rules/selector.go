package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Selector ties a rule catalogue and a candidate pool to a SelectionEngine.
// It validates and builds definitions before they reach the store, and
// keeps the built engine cached until the rules or the pool change.
type Selector struct {
	env       *CELEnv
	rules     RuleStore
	pool      PoolStore
	cache     EngineCache
	validator func(*Definition) error
	buildMu   sync.Mutex
	writeMu   *sync.Mutex
	gen       atomic.Uint64 // bumped on every mutation
	next      atomic.Pointer[Selector]
}

// SelectorOpt configures a Selector.
type SelectorOpt func(*Selector)

// WithEngineCache replaces the default in-memory cache.
func WithEngineCache(c EngineCache) SelectorOpt {
	return func(s *Selector) {
		s.cache = c
	}
}

// WithValidator adds a check run against every definition before it is
// stored, and against the active rules when the selector is created.
func WithValidator(v func(*Definition) error) SelectorOpt {
	return func(s *Selector) {
		s.validator = v
	}
}

// WithWriteLock serializes writes with every other holder of mu. Selectors
// that replace one another must share it.
func WithWriteLock(mu *sync.Mutex) SelectorOpt {
	return func(s *Selector) {
		s.writeMu = mu
	}
}

// NewSelector creates a selector and builds the engine for the rules
// currently active in the store, failing if any of them is invalid.
func NewSelector(env *CELEnv, rules RuleStore, pool PoolStore, opts ...SelectorOpt) (*Selector, error) {
	s := &Selector{
		env:   env,
		rules: rules,
		pool:  pool,
		cache: NewInMemoryEngineCache(DefaultCacheConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writeMu == nil {
		s.writeMu = &sync.Mutex{}
	}

	if _, err := s.rebuild(); err != nil {
		return nil, fmt.Errorf("failed to build rules: %w", err)
	}
	return s, nil
}

// Snapshot returns the engine for the current rules and pool.
func (s *Selector) Snapshot() (*SelectionEngine, error) {
	if e := s.cache.Get(); e != nil {
		return e, nil
	}
	return s.rebuild()
}

func (s *Selector) rebuild() (*SelectionEngine, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	// Another caller may have rebuilt while we waited.
	if e := s.cache.Get(); e != nil {
		return e, nil
	}

	gen := s.gen.Load()
	defs, err := s.rules.ListActive()
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if err := s.validate(d); err != nil {
			return nil, err
		}
	}
	built, err := BuildAll(s.env, defs)
	if err != nil {
		return nil, err
	}

	pool, err := s.pool.List()
	if err != nil {
		return nil, err
	}

	e := NewSelectionEngine(built, pool)
	// A mutation that landed mid-build makes e stale; serve it once but do
	// not cache it. invalidate bumps gen before clearing the cache, so a
	// mutation racing with Set is either seen by the second check or clears
	// the cache after it.
	if s.gen.Load() == gen {
		s.cache.Set(e)
		if s.gen.Load() != gen {
			s.cache.Invalidate()
		}
	}
	return e, nil
}

func (s *Selector) invalidate() {
	s.gen.Add(1)
	s.cache.Invalidate()
}

// ReplaceWith routes every later write on s to next, so writers still
// holding s land in the catalogue next serves. The caller holds the shared
// write lock.
func (s *Selector) ReplaceWith(next *Selector) {
	s.next.Store(next)
}

// write runs fn under the write lock against the newest replacement of s.
func (s *Selector) write(fn func(*Selector) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	target := s
	for n := target.next.Load(); n != nil; n = target.next.Load() {
		target = n
	}
	return fn(target)
}

func (s *Selector) validate(def *Definition) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator(def); err != nil {
		return fmt.Errorf("%w: rule %q: %w", ErrInvalidDefinition, def.Name, err)
	}
	return nil
}

// AddRule validates and builds def, then stores it.
func (s *Selector) AddRule(def *Definition) error {
	return s.write(func(cur *Selector) error { return cur.addRule(def) })
}

func (s *Selector) addRule(def *Definition) error {
	if _, err := s.rules.Get(def.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrRuleExists, def.ID)
	} else if !errors.Is(err, ErrRuleNotFound) {
		return err
	}

	if err := s.validate(def); err != nil {
		return err
	}
	if _, err := def.Build(s.env); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := s.rules.Add(def); err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// UpdateRule validates and builds the new definition before replacing the
// stored one.
func (s *Selector) UpdateRule(def *Definition) error {
	return s.write(func(cur *Selector) error { return cur.updateRule(def) })
}

func (s *Selector) updateRule(def *Definition) error {
	if err := s.validate(def); err != nil {
		return err
	}
	if _, err := def.Build(s.env); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := s.rules.Update(def); err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// DeleteRule removes a rule from the catalogue.
func (s *Selector) DeleteRule(id string) error {
	return s.write(func(cur *Selector) error {
		if err := cur.rules.Delete(id); err != nil {
			return err
		}

		cur.invalidate()
		return nil
	})
}

// GetRule returns the stored definition.
func (s *Selector) GetRule(id string) (*Definition, error) {
	return s.rules.Get(id)
}

// ListRules returns every definition, active or not.
func (s *Selector) ListRules() ([]*Definition, error) {
	return s.rules.List()
}

// AddCandidate adds c to the pool.
func (s *Selector) AddCandidate(c Candidate) error {
	return s.write(func(cur *Selector) error {
		if err := cur.pool.Add(c); err != nil {
			return err
		}

		cur.invalidate()
		return nil
	})
}

// DeleteCandidate removes a candidate from the pool.
func (s *Selector) DeleteCandidate(id int64) error {
	return s.write(func(cur *Selector) error {
		if err := cur.pool.Delete(id); err != nil {
			return err
		}

		cur.invalidate()
		return nil
	})
}

// ListCandidates returns the pool ordered by ID.
func (s *Selector) ListCandidates() ([]Candidate, error) {
	return s.pool.List()
}

// Selection is the answer to one Select call.
type Selection struct {
	Mode       Mode                `json:"mode"`
	Candidates []Candidate         `json:"candidates"`
	Results    []*EvaluationResult `json:"results"`
}

// Matched reports whether any rule applied to the state.
func (s *Selection) Matched() bool {
	for _, r := range s.Results {
		if r.Matched {
			return true
		}
	}
	return false
}

// Select runs the current engine in mode against state, along with the
// per-rule trace.
func (s *Selector) Select(ctx context.Context, mode Mode, state State) (*Selection, error) {
	e, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	candidates, err := e.Run(ctx, mode, state)
	if err != nil {
		return nil, err
	}
	results, err := e.Evaluate(ctx, state)
	if err != nil {
		return nil, err
	}

	return &Selection{
		Mode:       mode,
		Candidates: candidates,
		Results:    results,
	}, nil
}
