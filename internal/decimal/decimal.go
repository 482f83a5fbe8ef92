// =============================================================================
// CFDI Transform - Decimal Accumulator
// =============================================================================
//
// Monetary amounts in CFDI documents are written as decimal text with an
// explicit number of fractional digits ("1900460.234906"). Totals are built
// by adding those texts together with shopspring/decimal, so the arithmetic
// never goes through float64, and the result keeps the wider operand scale.
//
// ABSENT VALUES:
//   The empty string is the "absent" marker. It behaves as Zero ("0.00") in
//   a sum, and the result of a sum is always a concrete decimal text.
//
// =============================================================================

package decimal

import (
	"regexp"
	"strings"

	shopspring "github.com/shopspring/decimal"
)

// Zero is the canonical zero text used for absent operands and for
// zero-filled numeric fields.
const Zero = "0.00"

// decimalRegex matches the decimal texts accepted by Sum. Exponent forms
// such as "1e5" are rejected even though the parser would take them.
var decimalRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Valid reports whether s is a decimal text Sum can add exactly.
// The empty marker is not valid.
func Valid(s string) bool {
	return decimalRegex.MatchString(s)
}

// Scale returns the number of fractional digits in s.
func Scale(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// Sum adds two decimal texts exactly.
//
// The result has max(Scale(a), Scale(b)) fractional digits. Empty operands
// count as Zero, so Sum("", "") is "0.00" and Sum("", "5.00") is "5.00".
// Malformed operands are treated as Zero; callers validate with Valid first.
func Sum(a, b string) string {
	x, xs := parse(a)
	y, ys := parse(b)

	return x.Add(y).StringFixed(int32(max(xs, ys)))
}

// SumAll folds Sum over values, starting from Zero.
func SumAll(values ...string) string {
	total := Zero
	for _, v := range values {
		total = Sum(total, v)
	}
	return total
}

// parse returns s as a decimal and its scale.
func parse(s string) (shopspring.Decimal, int) {
	if !Valid(s) {
		s = Zero
	}
	d, err := shopspring.NewFromString(s)
	if err != nil {
		return shopspring.Zero, Scale(Zero)
	}
	return d, Scale(s)
}
