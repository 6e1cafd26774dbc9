package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividendlab/screener-cli/internal/model"
)

func row(kv map[string]string) model.Row {
	r := model.Row{}
	for k, v := range kv {
		r[k] = model.StringValue(v)
	}
	return r
}

func tickers(rows []model.Row) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Ticker("Ticker"))
	}
	return out
}

func TestSelect_GTEPercentString(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "Yield": "5.2%"}),
		row(map[string]string{"Ticker": "B", "Yield": "3.1%"}),
		row(map[string]string{"Ticker": "C", "Yield": "7.0%"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "yield", Column: "Yield", Operator: model.OpGTE, Value: "4.0%"},
	}}

	got := New(rs).Select(rows)
	assert.Equal(t, []string{"A", "C"}, tickers(got))
}

func TestSelect_GTEUnparseableRowValueExcluded(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "Yield": "5.2%"}),
		row(map[string]string{"Ticker": "B", "Yield": "n/a yield"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "yield", Column: "Yield", Operator: model.OpGTE, Value: "1.0"},
	}}

	got := New(rs).Select(rows)
	assert.Equal(t, []string{"A"}, tickers(got))
}

func TestSelect_GTECurrencyString(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "Price": "$1,250.00"}),
		row(map[string]string{"Ticker": "B", "Price": "$900.50"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "price", Column: "Price", Operator: model.OpGTE, Value: "$1000"},
	}}

	got := New(rs).Select(rows)
	assert.Equal(t, []string{"A"}, tickers(got))
}

func TestSelect_InStringColumn(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "Country": "USA"}),
		row(map[string]string{"Ticker": "B", "Country": "Germany"}),
		row(map[string]string{"Ticker": "C", "Country": "Canada"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "country", Column: "Country", Operator: model.OpIn, Values: []string{"USA", "Canada"}},
	}}

	got := New(rs).Select(rows)
	assert.Equal(t, []string{"A", "C"}, tickers(got))
}

// Declared values given as strings must match a numeric column the same way
// already-numeric values would.
func TestSelect_InNumericCoercionTransparency(t *testing.T) {
	rows := []model.Row{
		{"Ticker": model.StringValue("A"), "Rating": model.NumberValue(5)},
		{"Ticker": model.StringValue("B"), "Rating": model.NumberValue(4)},
		{"Ticker": model.StringValue("C"), "Rating": model.StringValue("5")},
	}
	stringRule := &model.RuleSet{Rules: []model.Rule{
		{Name: "rating", Column: "Rating", Operator: model.OpIn, Values: []string{"5"}},
	}}
	numericEquivalent := &model.RuleSet{Rules: []model.Rule{
		{Name: "rating", Column: "Rating", Operator: model.OpIn, Values: []string{"5.0"}},
	}}

	got1 := New(stringRule).Select(rows)
	got2 := New(numericEquivalent).Select(rows)
	assert.Equal(t, []string{"A", "C"}, tickers(got1))
	assert.Equal(t, tickers(got1), tickers(got2))
}

func TestSelect_MissingColumnIsNoOp(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A"}),
		row(map[string]string{"Ticker": "B"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "ghost", Column: "No Such Column", Operator: model.OpGTE, Value: "10"},
	}}

	got := New(rs).Select(rows)
	assert.Len(t, got, 2)
}

func TestSelect_UnknownOperatorPermissive(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "X": "1"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "weird", Column: "X", Operator: "between"},
	}}

	got := New(rs).Select(rows)
	assert.Len(t, got, 1)
}

func TestSelect_ComplexPrefixAndExact(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "S&P Credit Rating": "AA-"}),
		row(map[string]string{"Ticker": "B", "S&P Credit Rating": "BBB+"}),
		row(map[string]string{"Ticker": "C", "S&P Credit Rating": "BB"}),
		row(map[string]string{"Ticker": "D", "S&P Credit Rating": ""}),
		row(map[string]string{"Ticker": "E", "S&P Credit Rating": "A"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{
			Name:            "credit",
			Column:          "S&P Credit Rating",
			Operator:        model.OpComplex,
			AllowedPatterns: []string{"A*", "BBB+", "BBB"},
		},
	}}

	got := New(rs).Select(rows)
	assert.Equal(t, []string{"A", "B", "E"}, tickers(got))
}

func TestSelect_ComplexExclusionWins(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "S&P Credit Rating": "A+"}),
		row(map[string]string{"Ticker": "B", "S&P Credit Rating": "A-"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{
			Name:            "credit",
			Column:          "S&P Credit Rating",
			Operator:        model.OpComplex,
			AllowedPatterns: []string{"A*"},
			ExcludedValues:  []string{"A-"},
		},
	}}

	got := New(rs).Select(rows)
	assert.Equal(t, []string{"A"}, tickers(got))
}

func TestSelect_ShortCircuitOnEmpty(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "Yield": "1.0%", "Country": "USA"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "yield", Column: "Yield", Operator: model.OpGTE, Value: "50"},
		// Would pass, but the engine must stop before reaching it.
		{Name: "country", Column: "Country", Operator: model.OpIn, Values: []string{"USA"}},
	}}

	got := New(rs).Select(rows)
	assert.Empty(t, got)
}

func TestSelect_Idempotent(t *testing.T) {
	rows := []model.Row{
		row(map[string]string{"Ticker": "A", "Yield": "5.2%", "Country": "USA"}),
		row(map[string]string{"Ticker": "B", "Yield": "3.1%", "Country": "USA"}),
		row(map[string]string{"Ticker": "C", "Yield": "7.0%", "Country": "Japan"}),
	}
	rs := &model.RuleSet{Rules: []model.Rule{
		{Name: "yield", Column: "Yield", Operator: model.OpGTE, Value: "4.0%"},
		{Name: "country", Column: "Country", Operator: model.OpIn, Values: []string{"USA", "Japan"}},
	}}

	eng := New(rs)
	once := eng.Select(rows)
	twice := eng.Select(once)
	assert.Equal(t, tickers(once), tickers(twice))
}

func TestSummarize(t *testing.T) {
	original := []model.Row{
		row(map[string]string{"Ticker": "A"}),
		row(map[string]string{"Ticker": "B"}),
		row(map[string]string{"Ticker": "C"}),
		row(map[string]string{"Ticker": "D"}),
	}
	s := Summarize(original, original[:1])
	require.Equal(t, 4, s.OriginalCount)
	assert.Equal(t, 1, s.FilteredCount)
	assert.Equal(t, 3, s.RemovedCount)
	assert.InDelta(t, 25.0, s.SelectionRate, 0.001)
}

func TestSummarize_EmptyOriginal(t *testing.T) {
	s := Summarize(nil, nil)
	assert.Zero(t, s.SelectionRate)
}
