package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Validate checks that d carries the fields its kind needs.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	switch d.Kind {
	case KindString:
		if d.Property == "" {
			return fmt.Errorf("%w: string rule %q needs a property", ErrInvalidDefinition, d.Name)
		}
	case KindNumber:
		if d.Property == "" {
			return fmt.Errorf("%w: number rule %q needs a property", ErrInvalidDefinition, d.Name)
		}
		if _, err := ParseComparator(d.Comparator); err != nil {
			return fmt.Errorf("%w: rule %q: %w", ErrInvalidDefinition, d.Name, err)
		}
	case KindExpression:
		if strings.TrimSpace(d.Expression) == "" {
			return fmt.Errorf("%w: expression rule %q needs an expression", ErrInvalidDefinition, d.Name)
		}
	default:
		return fmt.Errorf("%w: rule %q has unknown kind %q", ErrInvalidDefinition, d.Name, d.Kind)
	}

	return nil
}

// Build validates d and constructs the rule it describes.
func (d *Definition) Build(env *CELEnv) (Rule, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var rule Rule
	switch d.Kind {
	case KindString:
		rule = NewStringRule(d.Property, d.StringValue, d.EligibleIDs...)
	case KindNumber:
		cmp, _ := ParseComparator(d.Comparator)
		rule = NewNumberRule(d.Property, d.NumberValue, cmp, d.EligibleIDs...)
	case KindExpression:
		r, err := NewExpressionRule(env, d.Expression, d.EligibleIDs...)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", d.Name, err)
		}
		rule = r
	}

	return WithName(rule, d.ID, d.Name), nil
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	c := *d
	c.EligibleIDs = append([]int64(nil), d.EligibleIDs...)
	return &c
}

// BuildAll builds defs in order.
func BuildAll(env *CELEnv, defs []*Definition) ([]Rule, error) {
	out := make([]Rule, 0, len(defs))
	for _, d := range defs {
		r, err := d.Build(env)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SortDefinitions orders defs by Priority, then creation time, then ID.
func SortDefinitions(defs []*Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority < defs[j].Priority
		}
		if !defs[i].CreatedAt.Equal(defs[j].CreatedAt) {
			return defs[i].CreatedAt.Before(defs[j].CreatedAt)
		}
		return defs[i].ID < defs[j].ID
	})
}
