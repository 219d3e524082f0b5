package types

import "time"

// StatsFilter narrows a statistics query. Zero From/To leave that side of
// the received_at range open; an empty Label keeps every label.
type StatsFilter struct {
	UserID UserID
	Label  string
	From   time.Time
	To     time.Time
}

// LabelCount is one row of a statistics breakdown.
// Percentage is relative to the total payload count of the filtered range.
type LabelCount struct {
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Statistics summarizes a user's processed payloads.
// ByLabel is sorted by label.
type Statistics struct {
	TotalPayloads int64        `json:"total_payloads"`
	ByLabel       []LabelCount `json:"by_label"`
}

// ProcessedPayload is a classified record ready for persistence.
type ProcessedPayload struct {
	ID         PayloadID
	UserID     UserID
	Body       Payload
	ReceivedAt time.Time
	Matches    []Match
}

// TimestampLayout is the fixed-width UTC layout used for stored timestamps.
// Lexical order of formatted values equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout after converting to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
