package rules

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// RuleSet is a self-contained rule list and pool, as read from a file.
//
//	rules:
//	  - name: office
//	    kind: string
//	    property: pointOfInterest
//	    stringValue: Office Furniture
//	    eligibleIds: [1, 4]
//	pool:
//	  - {id: 1, name: Joe Miller}
type RuleSet struct {
	Rules []*Definition `yaml:"rules"`
	Pool  []Candidate   `yaml:"pool"`
}

// LoadRuleSet decodes a YAML rule set. Rules without an explicit active flag
// are active; rules without an ID are numbered by position.
func LoadRuleSet(r io.Reader) (*RuleSet, error) {
	var raw struct {
		Rules []struct {
			Definition `yaml:",inline"`
			Active     *bool `yaml:"active"`
		} `yaml:"rules"`
		Pool []Candidate `yaml:"pool"`
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode rule set: %w", err)
	}

	rs := &RuleSet{Pool: raw.Pool}
	for i, item := range raw.Rules {
		def := item.Definition
		def.Active = item.Active == nil || *item.Active
		if def.ID == "" {
			def.ID = fmt.Sprintf("rule-%d", i+1)
		}
		rs.Rules = append(rs.Rules, &def)
	}
	return rs, nil
}

// LoadRuleSetFile reads a rule set from path.
func LoadRuleSetFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule set: %w", err)
	}
	defer f.Close()

	return LoadRuleSet(f)
}

// Engine builds the active rules into a SelectionEngine, ordered by
// priority and then by position in the file.
func (rs *RuleSet) Engine(env *CELEnv) (*SelectionEngine, error) {
	active := make([]*Definition, 0, len(rs.Rules))
	for _, d := range rs.Rules {
		if d.Active {
			active = append(active, d)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	built, err := BuildAll(env, active)
	if err != nil {
		return nil, err
	}
	return NewSelectionEngine(built, rs.Pool), nil
}
