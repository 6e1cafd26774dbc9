package model

import (
	"strconv"
	"strings"
)

// ValueKind discriminates the tagged Value type.
type ValueKind int

const (
	// ValueMissing marks a cell that was absent or blank in the feed.
	ValueMissing ValueKind = iota
	// ValueString is a raw string cell.
	ValueString
	// ValueNumber is a numeric cell.
	ValueNumber
)

// Value is a tagged feed cell: string, number, or missing. All rule
// evaluation goes through this type so string/numeric coercion happens in
// one place instead of per call site.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// StringValue builds a Value from a raw feed cell. Blank and N/A cells
// become missing.
func StringValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "N/A" || trimmed == "NA" {
		return Value{Kind: ValueMissing}
	}
	return Value{Kind: ValueString, Str: trimmed}
}

// NumberValue builds a numeric Value.
func NumberValue(f float64) Value {
	return Value{Kind: ValueNumber, Num: f}
}

// IsMissing reports whether the cell was absent or blank.
func (v Value) IsMissing() bool {
	return v.Kind == ValueMissing
}

// String returns the cell as a string. Numbers are formatted with minimal
// digits; missing cells return "".
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns the cell as a float64, stripping currency and percent
// formatting from string cells ("$1,234.50", "4.2%"). The second return is
// false when the cell is missing or does not parse as a number.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Num, true
	case ValueString:
		s := strings.TrimSpace(v.Str)
		s = strings.ReplaceAll(s, "$", "")
		s = strings.ReplaceAll(s, "%", "")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Row is one candidate security from the feed, keyed by spreadsheet column
// header. Rows are transient: they live for a single run and only the
// configured column subsets are ever persisted.
type Row map[string]Value

// Get returns the value for a column. Absent columns read as missing.
func (r Row) Get(column string) Value {
	v, ok := r[column]
	if !ok {
		return Value{Kind: ValueMissing}
	}
	return v
}

// Has reports whether the row carries the column at all (even if blank).
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Ticker returns the row's ticker symbol under the given column name, or ""
// when absent.
func (r Row) Ticker(tickerColumn string) string {
	return r.Get(tickerColumn).String()
}
