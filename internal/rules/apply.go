// internal/rules/apply.go
package rules

import (
	"sort"

	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Rule set application.
 *
 *   1. Evaluate every rule, collecting one Match per matching rule
 *   2. Stable sort by ascending priority
 *   3. Labels: first-seen order, duplicates dropped
 *
 * SingleBest narrows a result to the minimum (priority, rule id) match.
 */

// Apply evaluates every rule against record and aggregates the matches.
//
// Rules are expected in ascending priority order (the store returns them
// that way); the stable sort below keeps that order for equal priorities and
// only reorders input that was not already sorted. Labels are de-duplicated
// in first-seen order, RuleIDs are not.
func Apply(record types.Value, rules []types.Rule) types.MatchResult {
	matches := make([]types.Match, 0, len(rules))
	for _, r := range rules {
		if Matches(record, r) {
			matches = append(matches, types.Match{
				Priority: r.Priority,
				Label:    r.Label,
				RuleID:   r.ID,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority < matches[j].Priority
	})

	return buildResult(matches)
}

// SingleBest collapses result to the one match with the numerically smallest
// priority, ties broken by rule id order. An empty result is returned as is.
func SingleBest(result types.MatchResult) types.MatchResult {
	if len(result.Matches) == 0 {
		return result
	}

	best := result.Matches[0]
	for _, m := range result.Matches[1:] {
		if m.Priority < best.Priority || (m.Priority == best.Priority && m.RuleID < best.RuleID) {
			best = m
		}
	}

	return buildResult([]types.Match{best})
}

func buildResult(matches []types.Match) types.MatchResult {
	result := types.MatchResult{
		Labels:  make([]string, 0, len(matches)),
		RuleIDs: make([]types.RuleID, 0, len(matches)),
		Matches: matches,
	}

	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, dup := seen[m.Label]; !dup {
			seen[m.Label] = struct{}{}
			result.Labels = append(result.Labels, m.Label)
		}
		result.RuleIDs = append(result.RuleIDs, m.RuleID)
	}

	return result
}
