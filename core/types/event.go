package types

// Event is the canonical record emitted when a job, milestone or dispute
// changes state. Attributes carry string-encoded payload fields: addresses are
// hex, amounts are decimal.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
