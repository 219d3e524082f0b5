// Package types provides domain models shared across LabelKeeper components.
//
// Zero-dependency design: value.go, rules.go and errors.go use only the
// standard library so the rule engine can be embedded without pulling in the
// storage or transport stack. ID utilities in ids.go import uuid but are
// isolated for selective inclusion.
//
// Wire formats stay at the edges: JSON payloads are decoded into Value by the
// HTTP/gRPC layers and by the store, never by internal/rules.
package types

import "encoding/json"

// RuleID represents a UUIDv7 rule identifier.
// String ordering of UUIDv7 follows creation time, which gives rules a
// natural order for deterministic tie-breaking.
type RuleID string

// PayloadID represents a UUIDv7 identifier of a processed payload.
type PayloadID string

// UserID identifies the owner of rules and payloads.
// Supplied by the caller (X-User-Id header or x-user-id gRPC metadata).
type UserID string

// Payload represents an inbound JSON record exactly as received.
// Kept as raw bytes for storage; evaluation works on the decoded Value.
type Payload json.RawMessage

// MarshalJSON implements json.Marshaler.
// Delegates to json.RawMessage to preserve original payload bytes unchanged.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.RawMessage(p).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	return (*json.RawMessage)(p).UnmarshalJSON(data)
}

// Resource limits enforced when rules are admitted and payloads accepted.
const (
	// MaxPayloadSize limits an inbound record to keep decoding bounded.
	MaxPayloadSize = 1024 * 1024

	// MaxPathDepth limits the number of segments in a condition key path.
	MaxPathDepth = 16

	// MaxConditionsPerRule bounds per-rule evaluation cost.
	MaxConditionsPerRule = 64

	// MaxUserIDLength matches the users.user_id column width.
	MaxUserIDLength = 64

	// MaxLabelLength matches the rules.label column width.
	MaxLabelLength = 128

	// DiscoverySampleSize is how many array elements key discovery visits.
	DiscoverySampleSize = 3
)
