package dispatch

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/millops/store"
)

var (
	kilogramsPerTonne = decimal.NewFromInt(1000)

	// leadingNumber matches the numeric prefix of a quantity token, so
	// "8870KG" still yields 8870.
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseTonnes converts a billed quantity such as "8,870 KG" to tonnes.
// Thousands separators are dropped, the token before the first space is read
// as kilograms, and anything missing or unparseable counts as zero.
func ParseTonnes(v any) decimal.Decimal {
	s := strings.ReplaceAll(store.Text(v), ",", "")
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}

	m := leadingNumber.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	kg, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return kg.Div(kilogramsPerTonne)
}
