package rules

import (
	"context"
	"fmt"
	"strconv"
)

// Rule decides whether it applies to a state and, when it does, which
// candidates it grants eligibility to.
//
// Implementations must be immutable: Condition is a pure function of the
// state and Action filters its input without modifying it.
type Rule interface {
	Condition(ctx context.Context, state State) (bool, error)
	Action(ctx context.Context, candidates []Candidate) ([]Candidate, error)
}

// Eligibility is the ordered set of candidate IDs a rule grants.
type Eligibility struct {
	ids []int64
	set map[int64]struct{}
}

// NewEligibility builds the set, dropping duplicate IDs after their first
// occurrence.
func NewEligibility(ids ...int64) Eligibility {
	e := Eligibility{
		ids: make([]int64, 0, len(ids)),
		set: make(map[int64]struct{}, len(ids)),
	}
	for _, id := range ids {
		if _, dup := e.set[id]; dup {
			continue
		}
		e.set[id] = struct{}{}
		e.ids = append(e.ids, id)
	}
	return e
}

// IDs returns a copy of the granted IDs in insertion order.
func (e Eligibility) IDs() []int64 {
	out := make([]int64, len(e.ids))
	copy(out, e.ids)
	return out
}

// Contains reports whether id is granted.
func (e Eligibility) Contains(id int64) bool {
	_, ok := e.set[id]
	return ok
}

// Filter returns the candidates whose ID is granted, in input order.
// A nil input yields nil.
func (e Eligibility) Filter(candidates []Candidate) []Candidate {
	if candidates == nil {
		return nil
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if e.Contains(c.ID) {
			out = append(out, c)
		}
	}
	return out
}

// StringRule matches when a state field strictly equals a string value.
type StringRule struct {
	property string
	value    string
	eligible Eligibility
}

// NewStringRule creates a rule granting eligible when state[property] == value.
func NewStringRule(property, value string, eligible ...int64) *StringRule {
	return &StringRule{
		property: property,
		value:    value,
		eligible: NewEligibility(eligible...),
	}
}

// Condition is true only for a string field equal to the configured value;
// a missing or non-string field never matches.
func (r *StringRule) Condition(_ context.Context, state State) (bool, error) {
	got, ok := state.String(r.property)
	return ok && got == r.value, nil
}

func (r *StringRule) Action(_ context.Context, candidates []Candidate) ([]Candidate, error) {
	return r.eligible.Filter(candidates), nil
}

func (r *StringRule) Property() string         { return r.property }
func (r *StringRule) Eligibility() Eligibility { return r.eligible }

func (r *StringRule) String() string {
	return fmt.Sprintf("%s == %q", r.property, r.value)
}

// NumberRule compares a numeric state field against a target value.
type NumberRule struct {
	property   string
	value      float64
	comparator Comparator
	eligible   Eligibility
}

// NewNumberRule creates a rule granting eligible when state[property]
// relates to value per cmp.
func NewNumberRule(property string, value float64, cmp Comparator, eligible ...int64) *NumberRule {
	return &NumberRule{
		property:   property,
		value:      value,
		comparator: cmp,
		eligible:   NewEligibility(eligible...),
	}
}

// Condition is false for a missing or non-numeric field whatever the
// comparator, Equal included.
func (r *NumberRule) Condition(_ context.Context, state State) (bool, error) {
	got, ok := state.Number(r.property)
	if !ok {
		return false, nil
	}
	return r.comparator.Compare(got, r.value), nil
}

func (r *NumberRule) Action(_ context.Context, candidates []Candidate) ([]Candidate, error) {
	return r.eligible.Filter(candidates), nil
}

func (r *NumberRule) Property() string         { return r.property }
func (r *NumberRule) Comparator() Comparator   { return r.comparator }
func (r *NumberRule) Eligibility() Eligibility { return r.eligible }

func (r *NumberRule) String() string {
	return fmt.Sprintf("%s %s %s", r.property, r.comparator.symbol(), strconv.FormatFloat(r.value, 'f', -1, 64))
}

// Named attaches catalogue identity to a rule for reporting.
type Named struct {
	Rule
	ID   string
	Name string
}

// WithName wraps rule with an ID and a display name.
func WithName(rule Rule, id, name string) *Named {
	return &Named{Rule: rule, ID: id, Name: name}
}

// RuleName returns the display name of a rule: the Named name when present,
// otherwise its String form.
func RuleName(rule Rule) string {
	if n, ok := rule.(*Named); ok && n.Name != "" {
		return n.Name
	}
	if inner, ok := rule.(*Named); ok {
		rule = inner.Rule
	}
	if s, ok := rule.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", rule)
}

func ruleID(rule Rule) string {
	if n, ok := rule.(*Named); ok {
		return n.ID
	}
	return ""
}
