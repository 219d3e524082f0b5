// internal/rules/validate.go
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Rule admission checks.
 *
 * Evaluation is total over any input, so nothing here is required for
 * correctness of Matches/Apply. These checks run when a rule is created or
 * updated so authoring mistakes surface as 400s instead of rules that
 * silently never match.
 *
 * Checks:
 *   1. Non-blank name and label, label within MaxLabelLength
 *   2. At least one and at most MaxConditionsPerRule conditions
 *   3. Operator in the supported set
 *   4. Key path well formed and at most MaxPathDepth segments deep
 *   5. Literal storable as JSON (no overflowing numbers)
 *
 * Every returned error wraps types.ErrInvalidRule plus the specific
 * sentinel where one exists, so callers can match either.
 */

// ValidateRule reports the first admission problem with rule, or nil.
func ValidateRule(rule types.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name is required", types.ErrInvalidRule)
	}
	label := strings.TrimSpace(rule.Label)
	if label == "" {
		return fmt.Errorf("%w: label is required", types.ErrInvalidRule)
	}
	if len(label) > types.MaxLabelLength {
		return fmt.Errorf("%w: label exceeds %d characters", types.ErrInvalidRule, types.MaxLabelLength)
	}

	if len(rule.Conditions) == 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidRule, types.ErrEmptyConditions)
	}
	if len(rule.Conditions) > types.MaxConditionsPerRule {
		return fmt.Errorf("%w: %w (%d > %d)", types.ErrInvalidRule, types.ErrTooManyConditions,
			len(rule.Conditions), types.MaxConditionsPerRule)
	}

	for i, cond := range rule.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("%w: conditions[%d]: %w", types.ErrInvalidRule, i, err)
		}
	}

	return nil
}

// validateCondition checks operator and key path of a single condition.
func validateCondition(cond types.Condition) error {
	if !cond.Operator.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidOperator, cond.Operator)
	}

	depth, err := PathDepth(cond.KeyPath)
	if err != nil {
		return fmt.Errorf("key_path %q: %w", cond.KeyPath, err)
	}
	if depth == 0 {
		return fmt.Errorf("key_path is required")
	}
	if depth > types.MaxPathDepth {
		return fmt.Errorf("%w: %d segments", types.ErrPathTooDeep, depth)
	}
	if _, err := json.Marshal(cond.Value); err != nil {
		return fmt.Errorf("value: %w", err)
	}

	return nil
}
