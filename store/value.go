package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// VALUE COERCION
// =============================================================================
//
// Column values arrive as whatever the source produced: float64 from JSON
// bodies, int64/float64/string from SQLite, []byte and time.Time from Postgres.
// These helpers give every caller the same view of them.

// dateLayouts are tried in order by Time.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"01/02/2006",
}

// Text returns the display string of v. NULL becomes "".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case time.Time:
		if isMidnight(t) {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Number returns v as a float64. Strings are trimmed and parsed; NULL, empty
// and non-numeric values report false.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string, []byte:
		s := strings.TrimSpace(Text(t))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// Time parses v as a calendar date or timestamp.
func Time(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string, []byte:
		s := strings.TrimSpace(Text(t))
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Equal compares two values the way a SQL comparison against a typed column
// would: numerically when either side is a number, as text otherwise.
func Equal(a, b any) bool {
	if isNumeric(a) || isNumeric(b) {
		fa, okA := Number(a)
		fb, okB := Number(b)
		if okA && okB {
			return fa == fb
		}
	}
	return Text(a) == Text(b)
}

// Compare orders two values, numerically when either side is a number.
func Compare(a, b any) int {
	if isNumeric(a) || isNumeric(b) {
		fa, okA := Number(a)
		fb, okB := Number(b)
		if okA && okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(Text(a), Text(b))
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32, json.Number:
		return true
	}
	return false
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// Distinct returns the non-empty values of column across rows, as text,
// de-duplicated and sorted.
func Distinct(rows []Row, column string) []string {
	seen := make(map[string]bool, len(rows))
	out := []string{}
	for _, r := range rows {
		s := Text(r[column])
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ID reads a surrogate key. Fractional, negative and non-numeric values
// report false.
func ID(v any) (int64, bool) {
	f, ok := Number(v)
	if !ok || f < 1 || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
