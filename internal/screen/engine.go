// Package screen implements the rule-based selection engine: an ordered set
// of typed predicates filtered over the candidate row-set by sequential AND.
package screen

import (
	"strings"

	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/model"
)

// Engine evaluates a RuleSet against candidate rows.
type Engine struct {
	rules *model.RuleSet
}

// New creates an Engine for the given rule set.
func New(rules *model.RuleSet) *Engine {
	return &Engine{rules: rules}
}

// Select applies every rule in declaration order, intersecting the surviving
// row-set after each one. A rule whose target column is absent from the data
// passes all rows (documented escape hatch). If any rule eliminates every
// remaining row the engine stops early and returns the empty set, so an
// operator sees which rule was overly strict instead of a silent zero-result
// analysis.
func (e *Engine) Select(rows []model.Row) []model.Row {
	log := zap.L()
	survivors := rows

	for _, rule := range e.rules.Rules {
		before := len(survivors)
		survivors = applyRule(survivors, rule)
		log.Debug("screen: rule applied",
			zap.String("rule", rule.Name),
			zap.String("column", rule.Column),
			zap.Int("before", before),
			zap.Int("after", len(survivors)),
		)

		if len(survivors) == 0 {
			log.Warn("screen: rule eliminated all remaining rows",
				zap.String("rule", rule.Name),
				zap.String("column", rule.Column),
			)
			return nil
		}
	}
	return survivors
}

// Summary describes one selection pass.
type Summary struct {
	OriginalCount int     `json:"original_count"`
	FilteredCount int     `json:"filtered_count"`
	RemovedCount  int     `json:"removed_count"`
	SelectionRate float64 `json:"selection_rate"`
}

// Summarize computes selection statistics for a pass.
func Summarize(original, filtered []model.Row) Summary {
	s := Summary{
		OriginalCount: len(original),
		FilteredCount: len(filtered),
		RemovedCount:  len(original) - len(filtered),
	}
	if len(original) > 0 {
		s.SelectionRate = float64(len(filtered)) / float64(len(original)) * 100
	}
	return s
}

func applyRule(rows []model.Row, rule model.Rule) []model.Row {
	if !columnPresent(rows, rule.Column) {
		zap.L().Warn("screen: rule column absent, passing all rows",
			zap.String("rule", rule.Name),
			zap.String("column", rule.Column),
		)
		return rows
	}

	switch rule.Operator {
	case model.OpIn:
		return filterIn(rows, rule)
	case model.OpGTE:
		return filterGTE(rows, rule)
	case model.OpComplex:
		return filterComplex(rows, rule)
	default:
		zap.L().Warn("screen: unknown operator, passing all rows",
			zap.String("rule", rule.Name),
			zap.String("operator", string(rule.Operator)),
		)
		return rows
	}
}

// columnPresent reports whether any row carries the column. An entirely
// absent column makes the rule a no-op rather than a hard failure.
func columnPresent(rows []model.Row, column string) bool {
	for _, r := range rows {
		if r.Has(column) {
			return true
		}
	}
	return false
}

// filterIn keeps rows whose column value equals one of the declared values.
// When the column is uniformly numeric the declared values are coerced to
// numbers first, so "5" in the config still matches 5 in the feed.
func filterIn(rows []model.Row, rule model.Rule) []model.Row {
	numericColumn := columnUniformlyNumeric(rows, rule.Column)

	var allowedNums []float64
	if numericColumn {
		for _, v := range rule.Values {
			if f, ok := model.StringValue(v).Float(); ok {
				allowedNums = append(allowedNums, f)
			} else {
				// One unparseable value falls the whole rule back to
				// string comparison, mirroring a mixed-type column.
				numericColumn = false
				break
			}
		}
	}

	var out []model.Row
	for _, r := range rows {
		v := r.Get(rule.Column)
		if v.IsMissing() {
			continue
		}
		if numericColumn {
			f, ok := v.Float()
			if !ok {
				continue
			}
			for _, a := range allowedNums {
				if f == a {
					out = append(out, r)
					break
				}
			}
			continue
		}
		s := v.String()
		for _, a := range rule.Values {
			if s == a {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// filterGTE keeps rows whose column value, parsed as a number with currency
// and percent formatting stripped, is >= the rule threshold. Rows that do
// not parse are excluded. An unparseable threshold excludes every row and
// trips the short-circuit diagnostic.
func filterGTE(rows []model.Row, rule model.Rule) []model.Row {
	threshold, ok := model.StringValue(rule.Value).Float()
	if !ok {
		zap.L().Warn("screen: >= threshold does not parse as a number",
			zap.String("rule", rule.Name),
			zap.String("value", rule.Value),
		)
		return nil
	}

	var out []model.Row
	for _, r := range rows {
		f, ok := r.Get(rule.Column).Float()
		if ok && f >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// filterComplex keeps rows whose column value matches an allowed pattern
// (trailing-'*' prefix match or exact match) and is not in the exclusion
// list. Missing and blank values are rejected.
func filterComplex(rows []model.Row, rule model.Rule) []model.Row {
	excluded := make(map[string]bool, len(rule.ExcludedValues))
	for _, v := range rule.ExcludedValues {
		excluded[v] = true
	}

	var out []model.Row
	for _, r := range rows {
		v := r.Get(rule.Column)
		if v.IsMissing() {
			continue
		}
		s := v.String()
		if excluded[s] {
			continue
		}
		if matchesAny(s, rule.AllowedPatterns) {
			out = append(out, r)
		}
	}
	return out
}

func matchesAny(value string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(value, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if value == p {
			return true
		}
	}
	return false
}

// columnUniformlyNumeric reports whether every non-missing cell in the
// column parses as a number.
func columnUniformlyNumeric(rows []model.Row, column string) bool {
	seen := false
	for _, r := range rows {
		v := r.Get(column)
		if v.IsMissing() {
			continue
		}
		if _, ok := v.Float(); !ok {
			return false
		}
		seen = true
	}
	return seen
}
