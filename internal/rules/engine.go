// internal/rules/engine.go
package rules

import "github.com/solatis/labelkeeper/internal/types"

/*
 * Engine bundles classification and key discovery behind one value that
 * the service layer holds. Rules are passed per call, so there is no
 * compiled or cached state to invalidate.
 */

// Engine is the injectable entry point used by the service layer.
// Holds no state; safe for concurrent use from any number of requests.
type Engine struct{}

// NewEngine creates a new rules engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Classify applies rules (ascending priority) to record. With single set the
// result is reduced to the best match.
func (e *Engine) Classify(record types.Value, rules []types.Rule, single bool) types.MatchResult {
	result := Apply(record, rules)
	if single {
		return SingleBest(result)
	}
	return result
}

// Keys lists the addressable key paths of sample as a sorted set.
func (e *Engine) Keys(sample types.Value) []string {
	return DiscoverKeys(sample)
}
