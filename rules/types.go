package rules

import (
	"encoding/json"
	"time"
)

// State is the request record a rule's condition is evaluated against.
// Rules read fields by name; no schema is enforced here.
type State map[string]any

// Lookup returns the raw value stored under name.
func (s State) Lookup(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s[name]
	return v, ok
}

// String returns the field as a string. ok is false when the field is
// missing or holds another type.
func (s State) String(name string) (string, bool) {
	v, ok := s.Lookup(name)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Number returns the field as a float64. Any Go integer or float kind and
// json.Number are accepted; everything else reports ok == false.
func (s State) Number(name string) (float64, bool) {
	v, ok := s.Lookup(name)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Candidate is a selectable entity. ID is its identity for membership tests
// and deduplication.
type Candidate struct {
	ID         int64          `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// EvaluationResult reports how a single rule fared against a state.
type EvaluationResult struct {
	RuleID   string  `json:"ruleId,omitempty"`
	RuleName string  `json:"ruleName"`
	Matched  bool    `json:"matched"`
	Granted  []int64 `json:"granted,omitempty"`
}

// Kind names the rule variants a Definition can describe.
type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindExpression Kind = "expression"
)

// Definition is the stored form of a rule.
type Definition struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	Property    string    `json:"property,omitempty" yaml:"property,omitempty"`
	StringValue string    `json:"stringValue,omitempty" yaml:"stringValue,omitempty"`
	NumberValue float64   `json:"numberValue,omitempty" yaml:"numberValue,omitempty"`
	Comparator  string    `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Expression  string    `json:"expression,omitempty" yaml:"expression,omitempty"`
	EligibleIDs []int64   `json:"eligibleIds" yaml:"eligibleIds"`
	Priority    int       `json:"priority" yaml:"priority"`
	Active      bool      `json:"active" yaml:"-"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"-"`
}
