// Package store persists the conversation audit trail: message log,
// escalations, normalization run bookkeeping, and consent records.
package store

import (
	"context"

	"github.com/clinica-duran/eva/internal/model"
)

// MessageFilter specifies criteria for listing logged messages.
type MessageFilter struct {
	Direction      model.Direction `json:"direction,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Limit          int             `json:"limit,omitempty"`
	Offset         int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the assistant. All writes
// are best-effort from the caller's perspective: a store error must never
// prevent a computed reply from being sent.
type Store interface {
	// Messages
	SaveMessage(ctx context.Context, msg model.Message) error
	ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error)

	// Escalations
	SaveEscalation(ctx context.Context, esc model.Escalation) error
	ListEscalations(ctx context.Context, limit int) ([]model.Escalation, error)

	// Normalization runs
	CreateNormalizationRun(ctx context.Context) (*model.NormalizationRun, error)
	FinishNormalizationRun(ctx context.Context, runID string, status model.RunStatus, stats model.NormalizationStats) error

	// Consent
	SetConsent(ctx context.Context, contactID string, granted bool) error
	GetConsent(ctx context.Context, contactID string) (*model.Consent, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
