package model

import "time"

// Escalation is a persisted record of a conversation handed to a human,
// mirroring the handover sent to the CRM so audits do not depend on the
// vendor retaining history.
type Escalation struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Reason         string    `json:"reason"`
	Priority       string    `json:"priority"`
	Severity       string    `json:"severity"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
