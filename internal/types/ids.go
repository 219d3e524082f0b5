package types

import "github.com/google/uuid"

// NewPayloadID generates a UUIDv7 payload identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewPayloadID() PayloadID {
	return PayloadID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs so path parameters never reach the database raw.
func ParseRuleID(s string) (RuleID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RuleID(u.String()), nil
}
