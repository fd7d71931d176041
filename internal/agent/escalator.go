package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/guardrails"
	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/internal/store"
	"github.com/clinica-duran/eva/pkg/bird"
)

// CRMEscalator routes handovers to the Bird CRM and mirrors each one into
// the local escalation log. The CRM call is authoritative; the local write
// is best-effort.
type CRMEscalator struct {
	crm   bird.Client
	store store.Store
}

// NewCRMEscalator builds the production guardrails.Escalator.
func NewCRMEscalator(crm bird.Client, st store.Store) *CRMEscalator {
	return &CRMEscalator{crm: crm, store: st}
}

func (e *CRMEscalator) Escalate(ctx context.Context, h guardrails.Handover) error {
	err := e.crm.Handover(ctx, bird.HandoverRequest{
		ConversationID: h.ConversationID,
		Reason:         string(h.Reason),
		Priority:       string(h.Priority),
		Notes:          h.Notes,
	})

	if e.store != nil {
		severity := guardrails.SeverityHigh
		if h.Priority == guardrails.PriorityUrgent {
			severity = guardrails.SeverityCritical
		}
		if saveErr := e.store.SaveEscalation(ctx, model.Escalation{
			ConversationID: h.ConversationID,
			Reason:         string(h.Reason),
			Priority:       string(h.Priority),
			Severity:       severity.String(),
			Notes:          h.Notes,
		}); saveErr != nil {
			zap.L().Warn("agent: escalation log write failed",
				zap.String("conversation_id", h.ConversationID),
				zap.Error(saveErr),
			)
		}
	}

	return err
}
