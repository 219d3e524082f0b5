// internal/rules/operators.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Six operators, switch-dispatched:
 *   - =, !=: exact kind+value equality (types.Value.Equal)
 *   - <, >, <=, >=: numeric ordering after AsNumber on both sides
 *
 * Unknown operators compare false rather than panicking; admission
 * (ValidateRule) is where invalid operators are rejected.
 */

// Compare applies op to the resolved value and the condition literal.
func Compare(op types.Operator, value, literal types.Value) bool {
	if op.IsOrdering() {
		return compareOrdered(op, value, literal)
	}
	switch op {
	case types.OpEq:
		return value.Equal(literal)
	case types.OpNeq:
		return !value.Equal(literal)
	default:
		return false
	}
}

// compareOrdered coerces both operands and applies the ordering operator.
// Either side failing coercion makes the comparison false.
func compareOrdered(op types.Operator, value, literal types.Value) bool {
	l, ok := AsNumber(value)
	if !ok {
		return false
	}
	r, ok := AsNumber(literal)
	if !ok {
		return false
	}
	switch op {
	case types.OpLt:
		return l < r
	case types.OpGt:
		return l > r
	case types.OpLte:
		return l <= r
	case types.OpGte:
		return l >= r
	default:
		return false
	}
}

// ParseOperator maps operator text to types.Operator.
// Surrounding whitespace is ignored.
func ParseOperator(s string) (types.Operator, error) {
	op := types.Operator(strings.TrimSpace(s))
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidOperator, s)
	}
	return op, nil
}
