// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Rule evaluation with DNF semantics (OR of AND groups).
 *
 * Evaluation flow:
 *   1. Empty condition list: never matches
 *   2. Partition conditions by GroupID, first-seen group order
 *   3. Per group: AND of conditions, stop at first false
 *   4. Across groups: stop at first fully satisfied group
 *   5. Per condition: resolve path -> Missing is false -> Compare
 *
 * Group order only affects how soon evaluation stops, never the outcome.
 */

// EvaluateCondition reports whether cond holds for record.
// A key path that does not resolve makes the condition false for every
// operator, including !=.
func EvaluateCondition(record types.Value, cond types.Condition) bool {
	resolved := Resolve(record, cond.KeyPath)
	if !resolved.Found {
		return false
	}
	return Compare(cond.Operator, resolved.Value, cond.Value)
}

// Matches reports whether at least one condition group of rule is entirely
// satisfied by record.
func Matches(record types.Value, rule types.Rule) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	for _, group := range groupConditions(rule.Conditions) {
		if evaluateGroup(record, group) {
			return true
		}
	}
	return false
}

// evaluateGroup is the AND of a group's conditions.
func evaluateGroup(record types.Value, group []types.Condition) bool {
	for _, cond := range group {
		if !EvaluateCondition(record, cond) {
			return false
		}
	}
	return true
}

// groupConditions partitions conditions by GroupID, preserving the order in
// which groups are first seen and the order of conditions inside each group.
func groupConditions(conds []types.Condition) [][]types.Condition {
	index := make(map[int]int, 4)
	groups := make([][]types.Condition, 0, 4)
	for _, c := range conds {
		i, ok := index[c.GroupID]
		if !ok {
			i = len(groups)
			index[c.GroupID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}
