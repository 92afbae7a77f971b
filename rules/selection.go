package rules

import (
	"context"
	"fmt"

	"github.com/liamcoop/selection/engine"
)

// Mode selects how a SelectionEngine combines matching rules.
type Mode string

const (
	// ModeAll narrows the pool by every matching rule in turn.
	ModeAll Mode = "all"
	// ModeAny unions the grants of every matching rule.
	ModeAny Mode = "any"
	// ModeFirst uses only the first matching rule.
	ModeFirst Mode = "first"
)

// ParseMode validates the textual form. The empty string is ModeAny.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAny, nil
	case ModeAll, ModeAny, ModeFirst:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q (use all, any or first)", ErrUnknownMode, s)
}

// SelectionEngine applies a rule list to a fixed candidate pool.
// Neither the rules nor the pool change after construction, so one engine
// serves any number of concurrent callers.
type SelectionEngine struct {
	rules []Rule
	pool  []Candidate
	first *engine.Engine[State, []Candidate]
}

// NewSelectionEngine copies rules and pool into a new engine.
func NewSelectionEngine(rules []Rule, pool []Candidate) *SelectionEngine {
	rs := make([]Rule, len(rules))
	copy(rs, rules)
	p := make([]Candidate, len(pool))
	copy(p, pool)

	bound := make([]engine.Rule[State, []Candidate], len(rs))
	for i, r := range rs {
		bound[i] = poolRule{rule: r, pool: p}
	}

	return &SelectionEngine{
		rules: rs,
		pool:  p,
		first: engine.New(bound...),
	}
}

// Pool returns a copy of the candidate pool.
func (s *SelectionEngine) Pool() []Candidate {
	out := make([]Candidate, len(s.pool))
	copy(out, s.pool)
	return out
}

// Rules returns a copy of the rule list.
func (s *SelectionEngine) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// RunIfAll starts from the whole pool and lets every matching rule, in
// order, filter the current result. Non-matching rules leave it unchanged,
// so with no match the full pool is returned.
func (s *SelectionEngine) RunIfAll(ctx context.Context, state State) ([]Candidate, error) {
	result := s.Pool()
	for _, rule := range s.rules {
		ok, err := rule.Condition(ctx, state)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		result, err = rule.Action(ctx, result)
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = []Candidate{}
	}
	return result, nil
}

// RunIfAny filters the full pool with every matching rule and returns the
// union, deduplicated by candidate ID in first-occurrence order.
func (s *SelectionEngine) RunIfAny(ctx context.Context, state State) ([]Candidate, error) {
	result := []Candidate{}
	seen := make(map[int64]struct{})
	for _, rule := range s.rules {
		ok, err := rule.Condition(ctx, state)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		granted, err := rule.Action(ctx, s.pool)
		if err != nil {
			return nil, err
		}
		for _, c := range granted {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			result = append(result, c)
		}
	}
	return result, nil
}

// RunFirst returns the grant of the first matching rule over the full pool.
// The boolean is false when no rule matched.
func (s *SelectionEngine) RunFirst(ctx context.Context, state State) ([]Candidate, bool, error) {
	out, matched, err := s.first.Execute(ctx, state)
	if err != nil {
		return nil, matched, err
	}
	if out == nil {
		out = []Candidate{}
	}
	return out, matched, nil
}

// Run dispatches on mode.
func (s *SelectionEngine) Run(ctx context.Context, mode Mode, state State) ([]Candidate, error) {
	switch mode {
	case ModeAll:
		return s.RunIfAll(ctx, state)
	case ModeAny:
		return s.RunIfAny(ctx, state)
	case ModeFirst:
		out, _, err := s.RunFirst(ctx, state)
		return out, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Evaluate reports, for every rule, whether it matched and what it would
// grant from the full pool.
func (s *SelectionEngine) Evaluate(ctx context.Context, state State) ([]*EvaluationResult, error) {
	results := make([]*EvaluationResult, 0, len(s.rules))
	for _, rule := range s.rules {
		res := &EvaluationResult{
			RuleID:   ruleID(rule),
			RuleName: RuleName(rule),
		}

		ok, err := rule.Condition(ctx, state)
		if err != nil {
			return nil, err
		}
		if ok {
			granted, err := rule.Action(ctx, s.pool)
			if err != nil {
				return nil, err
			}
			res.Matched = true
			res.Granted = make([]int64, 0, len(granted))
			for _, c := range granted {
				res.Granted = append(res.Granted, c.ID)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// poolRule adapts a Rule to the generic engine by pointing its action at a
// fixed pool.
type poolRule struct {
	rule Rule
	pool []Candidate
}

func (p poolRule) Condition(ctx context.Context, state State) (bool, error) {
	return p.rule.Condition(ctx, state)
}

func (p poolRule) Action(ctx context.Context, _ State) ([]Candidate, error) {
	return p.rule.Action(ctx, p.pool)
}
