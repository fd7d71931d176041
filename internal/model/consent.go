package model

import "time"

// Consent records whether a contact agreed to receive proactive
// messages. Absence of a record means consent was never asked.
type Consent struct {
	ContactID string    `json:"contact_id"`
	Granted   bool      `json:"granted"`
	UpdatedAt time.Time `json:"updated_at"`
}
