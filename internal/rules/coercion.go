// internal/rules/coercion.go
package rules

import (
	"errors"
	"strconv"
	"strings"

	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Numeric coercion for ordering operators.
 *
 * Only <, >, <= and >= coerce. Equality compares kinds exactly, so the same
 * record can satisfy "Price < 3" with Price="2" yet fail "Price = 2".
 *
 *   - Number: passes through
 *   - String: trimmed, then parsed as a decimal floating-point literal;
 *     hex literals are rejected and overflow yields +/-Inf
 *   - Bool, Null, Array, Object: not numeric (strict, no true -> 1)
 */

// AsNumber interprets v as a real number for ordering comparisons.
// The second result is false when v is not numeric.
func AsNumber(v types.Value) (float64, bool) {
	switch v.Kind() {
	case types.KindNumber:
		n, _ := v.AsNumber()
		return n, true
	case types.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if isHexLiteral(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// isHexLiteral reports whether s, after an optional sign, starts with 0x.
func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
