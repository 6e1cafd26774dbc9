package model

import (
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Operator identifies the predicate type of a selection rule.
type Operator string

const (
	// OpIn matches rows whose column value equals one of the declared values.
	OpIn Operator = "in"
	// OpGTE matches rows whose column value is >= a scalar threshold.
	OpGTE Operator = ">="
	// OpComplex is a pattern matcher (prefix wildcards plus exact matches
	// minus an exclusion list), used for credit-rating style columns.
	OpComplex Operator = "complex"
)

// Rule is one named selection predicate over a feed column.
type Rule struct {
	Name     string   `yaml:"-" json:"name"`
	Column   string   `yaml:"column" json:"column"`
	Operator Operator `yaml:"operator" json:"operator"`

	// OpIn parameters.
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`

	// OpGTE parameter. Kept as a string so currency/percent formatting
	// ("$12", "4.0%") survives the YAML round trip.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// OpComplex parameters. A pattern ending in '*' matches any value with
	// that prefix; anything else is an exact match.
	AllowedPatterns []string `yaml:"allowed_patterns,omitempty" json:"allowed_patterns,omitempty"`
	ExcludedValues  []string `yaml:"excluded_values,omitempty" json:"excluded_values,omitempty"`
}

// RuleSet is an ordered list of selection rules. Order matters only for the
// short-circuit diagnostic when a rule eliminates every row; the surviving
// set is the same under any order.
type RuleSet struct {
	Rules []Rule `json:"rules"`
}

// UnmarshalYAML decodes the `selection_rules` mapping preserving declaration
// order, which a plain map would lose.
func (rs *RuleSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return eris.New("rules: selection_rules must be a mapping")
	}
	for i := 0; i < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		var r Rule
		if err := valNode.Decode(&r); err != nil {
			return eris.Wrapf(err, "rules: decode rule %q", keyNode.Value)
		}
		r.Name = keyNode.Value
		rs.Rules = append(rs.Rules, r)
	}
	return nil
}

// ruleFile mirrors the on-disk selection_rules.yaml layout.
type ruleFile struct {
	SelectionRules RuleSet `yaml:"selection_rules"`
}

// ParseRuleSet decodes a selection_rules.yaml document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rules: parse yaml")
	}
	return &f.SelectionRules, nil
}

// ColumnSet maps output keys to feed column headers: one map for the columns
// the rules select on, one for informational columns carried alongside, plus
// the name of the ticker column.
type ColumnSet struct {
	TickerColumn         string            `yaml:"ticker_column" json:"ticker_column"`
	SelectionColumns     map[string]string `yaml:"selection_columns" json:"selection_columns"`
	InformationalColumns map[string]string `yaml:"informational_columns" json:"informational_columns"`
}

// ParseColumnSet decodes a data_columns.yaml document.
func ParseColumnSet(data []byte) (*ColumnSet, error) {
	var cs ColumnSet
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, eris.Wrap(err, "columns: parse yaml")
	}
	if cs.TickerColumn == "" {
		cs.TickerColumn = "Ticker"
	}
	return &cs, nil
}
