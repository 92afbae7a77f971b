package rules

import (
	"context"
	"errors"
	"testing"
)

func newTestEnv(t *testing.T) *CELEnv {
	t.Helper()

	env, err := NewCELEnv(0)
	if err != nil {
		t.Fatalf("NewCELEnv() failed: %v", err)
	}
	return env
}

// TestExpressionRuleCompile verifies that valid expressions compile and invalid ones are rejected
func TestExpressionRuleCompile(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"String comparison", `state.pointOfInterest == "Office Furniture"`, false},
		{"Numeric comparison", `state.budget > 10000`, false},
		{"Boolean logic", `state.budget > 10000 && state.pointOfInterest.startsWith("Office")`, false},
		{"Presence test", `has(state.budget)`, false},
		{"Membership", `state.pointOfInterest in ["Home Furniture", "Office Furniture"]`, false},
		{"Syntax error", `state.budget >`, true},
		{"Undefined variable", `client.budget > 0`, true},
		{"Non-boolean result", `1 + 1`, true},
		{"String result", `"office"`, true},
		{"Empty expression", ``, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExpressionRule(env, tc.expression, 1)
			if tc.wantErr {
				if err == nil {
					t.Errorf("NewExpressionRule(%q) should return error", tc.expression)
				} else if !errors.Is(err, ErrInvalidExpression) {
					t.Errorf("NewExpressionRule(%q) error = %v, want ErrInvalidExpression", tc.expression, err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewExpressionRule(%q) failed: %v", tc.expression, err)
			}
		})
	}
}

// TestExpressionRuleNilEnv verifies that a rule cannot be built without an environment
func TestExpressionRuleNilEnv(t *testing.T) {
	if _, err := NewExpressionRule(nil, `true`); !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("NewExpressionRule(nil) error = %v, want ErrInvalidExpression", err)
	}
}

// TestExpressionRuleCondition verifies evaluation, including lookup misses
func TestExpressionRuleCondition(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		expression string
		state      State
		want       bool
	}{
		{"match", `state.budget > 10000`, State{"budget": 20000}, true},
		{"no match", `state.budget > 10000`, State{"budget": 2000}, false},
		{"missing key", `state.budget > 10000`, State{"pointOfInterest": "Office"}, false},
		{"nil state", `state.budget > 10000`, nil, false},
		{"guarded missing key", `!has(state.budget) || state.budget < 10`, State{}, true},
		{"string equality", `state.pointOfInterest == "Office"`, State{"pointOfInterest": "Office"}, true},
		{"type mismatch", `state.pointOfInterest == "Office"`, State{"pointOfInterest": 3}, false},
		{"combined", `state.pointOfInterest == "Office" && state.budget < 5000`, State{"pointOfInterest": "Office", "budget": 2000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewExpressionRule(env, tt.expression, 4)
			if err != nil {
				t.Fatalf("NewExpressionRule() failed: %v", err)
			}

			got, err := rule.Condition(context.Background(), tt.state)
			if err != nil {
				t.Fatalf("Condition() returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Condition(%v) = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

// TestExpressionRuleAction verifies that expression rules share the eligibility filter
func TestExpressionRuleAction(t *testing.T) {
	rule, err := NewExpressionRule(newTestEnv(t), `true`, 3, 1)
	if err != nil {
		t.Fatalf("NewExpressionRule() failed: %v", err)
	}

	got, err := rule.Action(context.Background(), testPool())
	if err != nil {
		t.Fatalf("Action() returned error: %v", err)
	}
	if !equalIDs(ids(got), []int64{1, 3}) {
		t.Errorf("Action() = %v, want [1 3]", ids(got))
	}
	if RuleName(rule) != "true" {
		t.Errorf("RuleName() = %q, want the expression", RuleName(rule))
	}
}

// TestExpressionRuleStateFields verifies that a schema-bound environment rejects
// undeclared fields and literals of the wrong type
func TestExpressionRuleStateFields(t *testing.T) {
	env := newTestEnv(t).WithStateFields(map[string]string{
		"pointOfInterest": "string",
		"budget":          "number",
		"vip":             "bool",
	})

	testCases := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"declared fields", `state.pointOfInterest == "Office" && state.budget > 10000`, false},
		{"bool field", `state.vip == true`, false},
		{"index syntax", `state["budget"] < 500.0`, false},
		{"field on the right", `10000 < state.budget`, false},
		{"presence test", `has(state.vip)`, false},
		{"method call", `state.pointOfInterest.startsWith("Office")`, false},
		{"undeclared field", `state.color == "red"`, true},
		{"undeclared index", `state["color"] == "red"`, true},
		{"undeclared presence test", `has(state.color)`, true},
		{"number field compared with string", `state.budget == "high"`, true},
		{"string field compared with number", `"Office" != state.pointOfInterest && state.pointOfInterest > 3`, true},
		{"bool field compared with string", `state.vip == "yes"`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExpressionRule(env, tc.expression, 1)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidExpression) {
					t.Errorf("NewExpressionRule(%q) error = %v, want ErrInvalidExpression", tc.expression, err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewExpressionRule(%q) failed: %v", tc.expression, err)
			}
		})
	}

	if _, err := NewExpressionRule(newTestEnv(t), `state.color == "red"`, 1); err != nil {
		t.Errorf("unbound environment should accept any field: %v", err)
	}
}

// TestExpressionRuleCancelledContext verifies that cancellation is reported
// rather than read as a non-match
func TestExpressionRuleCancelledContext(t *testing.T) {
	rule, err := NewExpressionRule(newTestEnv(t), `state.budget > 10000`, 4)
	if err != nil {
		t.Fatalf("NewExpressionRule() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rule.Condition(ctx, State{"budget": 20000}); !errors.Is(err, context.Canceled) {
		t.Errorf("Condition() error = %v, want context.Canceled", err)
	}

	se := NewSelectionEngine([]Rule{rule}, testPool())
	if _, err := se.RunIfAny(ctx, State{"budget": 20000}); !errors.Is(err, context.Canceled) {
		t.Errorf("RunIfAny() error = %v, want context.Canceled", err)
	}
}
