/*
filter.go - Column predicates for Fetch, Update and Delete

PURPOSE:
  Filters are the row-level predicates every store understands. SQL stores
  translate them to WHERE clauses (store/sqlstore), the memory store evaluates
  them with Match. Both follow SQL NULL semantics: a comparison against NULL is
  false, only IsNull/NotNull look at NULL directly.

OPERATORS:
  eq, neq, in, gte, lte  Comparison (numeric when the stored value is numeric)
  ilike, not_ilike       Case-insensitive pattern, % and _ wildcards
  is_null, not_null      NULL tests
  or                     Any of the nested filters

COMMON FILTERS:
  Active(col): "col IS NULL OR col <> 'X'", the canceled-row exclusion
  Blank(col):  "col IS NULL OR col = ''"
  Present(col): "col IS NOT NULL AND col <> ''"
*/
package store

import (
	"regexp"
	"strings"
)

// Op is a filter operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpIn       Op = "in"
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpILike    Op = "ilike"
	OpNotILike Op = "not_ilike"
	OpIsNull   Op = "is_null"
	OpNotNull  Op = "not_null"
	OpOr       Op = "or"
)

// CanceledSentinel marks a voided dispatch row.
const CanceledSentinel = "X"

// Filter is a single predicate. Or-groups carry their members in Any.
type Filter struct {
	Column string
	Op     Op
	Value  any
	Values []any
	Any    []Filter
}

func Eq(column string, v any) Filter { return Filter{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Filter { return Filter{Column: column, Op: OpNeq, Value: v} }
func Gte(column string, v any) Filter { return Filter{Column: column, Op: OpGte, Value: v} }
func Lte(column string, v any) Filter { return Filter{Column: column, Op: OpLte, Value: v} }
func ILike(column, pattern string) Filter { return Filter{Column: column, Op: OpILike, Value: pattern} }
func NotILike(column, pattern string) Filter {
	return Filter{Column: column, Op: OpNotILike, Value: pattern}
}
func IsNull(column string) Filter { return Filter{Column: column, Op: OpIsNull} }
func NotNull(column string) Filter { return Filter{Column: column, Op: OpNotNull} }

// In matches any of values.
func In(column string, values ...any) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

// InStrings is In for a string slice.
func InStrings(column string, values []string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return In(column, vs...)
}

// Or matches when any member matches.
func Or(filters ...Filter) Filter {
	return Filter{Op: OpOr, Any: filters}
}

// Active excludes canceled rows.
func Active(column string) Filter {
	return Or(IsNull(column), Neq(column, CanceledSentinel))
}

// Blank matches NULL or empty values.
func Blank(column string) Filter {
	return Or(IsNull(column), Eq(column, ""))
}

// Present matches non-NULL, non-empty values.
func Present(column string) []Filter {
	return []Filter{NotNull(column), Neq(column, "")}
}

// Columns returns every column the filter references.
func (f Filter) Columns() []string {
	if f.Op == OpOr {
		var cols []string
		for _, sub := range f.Any {
			cols = append(cols, sub.Columns()...)
		}
		return cols
	}
	return []string{f.Column}
}

// =============================================================================
// IN-MEMORY EVALUATION
// =============================================================================

// Match reports whether row satisfies f.
func (f Filter) Match(row Row) bool {
	if f.Op == OpOr {
		for _, sub := range f.Any {
			if sub.Match(row) {
				return true
			}
		}
		return false
	}

	v, ok := row[f.Column]
	isNull := !ok || v == nil

	switch f.Op {
	case OpIsNull:
		return isNull
	case OpNotNull:
		return !isNull
	}
	if isNull {
		return false
	}

	switch f.Op {
	case OpEq:
		return f.Value != nil && Equal(v, f.Value)
	case OpNeq:
		return f.Value != nil && !Equal(v, f.Value)
	case OpIn:
		for _, candidate := range f.Values {
			if Equal(v, candidate) {
				return true
			}
		}
		return false
	case OpGte:
		return Compare(v, f.Value) >= 0
	case OpLte:
		return Compare(v, f.Value) <= 0
	case OpILike:
		return likePattern(Text(f.Value)).MatchString(Text(v))
	case OpNotILike:
		return !likePattern(Text(f.Value)).MatchString(Text(v))
	}
	return false
}

// MatchAll reports whether row satisfies every filter.
func MatchAll(row Row, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(row) {
			return false
		}
	}
	return true
}

func likePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
