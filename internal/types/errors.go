package types

import "errors"

// Sentinel errors for LabelKeeper operations.
// The rule engine itself never returns errors; these are raised by rule
// admission, storage and the transport layers.
var (
	// ErrPayloadTooLarge indicates the record exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrPayloadNotObject indicates a record or sample is not a JSON object.
	ErrPayloadNotObject = errors.New("payload must be a JSON object")

	// ErrInvalidRule indicates a rule failed admission checks.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrEmptyConditions indicates a rule has no conditions.
	ErrEmptyConditions = errors.New("rule has no conditions")

	// ErrInvalidOperator indicates an operator outside the supported set.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrPathTooDeep indicates a key path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("key path exceeds maximum depth")

	// ErrTooManyConditions indicates a rule exceeds MaxConditionsPerRule.
	ErrTooManyConditions = errors.New("rule has too many conditions")

	// ErrRuleNotFound indicates no rule with the given id exists for the user.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidUserID indicates a malformed caller identity.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidTimeRange indicates an unparseable statistics time bound.
	ErrInvalidTimeRange = errors.New("invalid time range")
)
