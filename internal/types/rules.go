// internal/types/rules.go
package types

import "time"

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, Condition, Operator, PathSegment and MatchResult used by
 * internal/rules for evaluation and by internal/core for storage and
 * transport. Wire formats (JSON bodies, SQL rows, protobuf Structs) are
 * converted to these types at the boundary.
 *
 * Key types:
 *   - Rule: labelled, prioritised set of conditions in DNF
 *   - Condition: single comparison; GroupID selects its AND group
 *   - PathSegment: one component of a compiled key path
 *   - MatchResult: labels and rule ids produced for one record
 *
 * Dependencies: standard library only
 */

// Operator is the comparison applied by a condition.
type Operator string

const (
	OpEq  Operator = "="
	OpNeq Operator = "!="
	OpLt  Operator = "<"
	OpGt  Operator = ">"
	OpLte Operator = "<="
	OpGte Operator = ">="
)

// Operators lists every operator the engine recognises.
var Operators = []Operator{OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte}

// Valid reports whether op is one of the recognised operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte:
		return true
	default:
		return false
	}
}

// IsOrdering reports whether op compares numerically.
func (op Operator) IsOrdering() bool {
	switch op {
	case OpLt, OpGt, OpLte, OpGte:
		return true
	default:
		return false
	}
}

// DefaultGroupID is assigned to conditions that do not name a group.
const DefaultGroupID = 1

// DefaultPriority is assigned to rules that do not set one.
const DefaultPriority = 100

// PathSegment represents one component of a key path.
// A bracketed segment such as items[0] compiles to a Key segment followed by
// an Index segment.
type PathSegment struct {
	Key     string // object key (unused when IsIndex)
	Index   int    // array index (valid only when IsIndex)
	IsIndex bool   // disambiguates Index=0 from unset
}

// Condition is a single (operator, key path, literal) predicate.
// Conditions sharing GroupID are AND'ed; distinct groups are OR'ed.
type Condition struct {
	GroupID  int
	Operator Operator
	KeyPath  string
	Value    Value
}

// Rule is a labelled set of conditions owned by a user.
// Lower Priority values take precedence.
type Rule struct {
	ID         RuleID
	UserID     UserID
	Name       string
	Label      string
	Priority   int
	Active     bool
	CreatedAt  time.Time
	Conditions []Condition
}

// Match records one rule that matched a record.
type Match struct {
	Priority int
	Label    string
	RuleID   RuleID
}

// MatchResult is the outcome of applying a rule set to one record.
// Labels are de-duplicated in first-seen order; RuleIDs keep one entry per
// matching rule. Both follow ascending priority.
type MatchResult struct {
	Labels  []string
	RuleIDs []RuleID
	Matches []Match
}

// Empty reports whether no rule matched.
func (r MatchResult) Empty() bool {
	return len(r.RuleIDs) == 0
}
