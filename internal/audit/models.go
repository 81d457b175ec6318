package audit

import "time"

// Action enumerates auditable engine events.
type Action string

const (
	ActionChallengeIssued   Action = "challenge.issued"
	ActionChallengeRejected Action = "challenge.rejected"
	ActionStampIssued       Action = "stamp.issued"
	ActionStampRefused      Action = "stamp.refused"
)

// Event is one audit record. Address is the claimed wallet address; no other
// subject PII is recorded, the nullifier is the only linkage value.
type Event struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Address   string    `json:"address"`
	Provider  string    `json:"provider,omitempty"`
	IssuerDID string    `json:"issuer_did,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
