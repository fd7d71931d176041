// Package model defines the shared domain types for the assistant:
// messages, escalations, normalization runs, and consent records.
package model

import "time"

// Direction indicates which way a message travelled.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Kind is the payload type of a WhatsApp message.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Message is one logged conversation message. Outbound messages record
// the guardrail severity observed before sending; audio messages record
// which transcription provider produced the text and whether the
// fallback provider was used.
type Message struct {
	ID                 string    `json:"id"`
	ConversationID     string    `json:"conversation_id"`
	ContactID          string    `json:"contact_id"`
	Direction          Direction `json:"direction"`
	Kind               Kind      `json:"kind"`
	Body               string    `json:"body"`
	TranscriptProvider string    `json:"transcript_provider,omitempty"`
	UsedFallback       bool      `json:"used_fallback,omitempty"`
	Severity           string    `json:"severity,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
