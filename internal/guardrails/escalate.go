package guardrails

import (
	"context"

	"go.uber.org/zap"
)

// Priority is the urgency attached to a human handover.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityMedium Priority = "medium"
)

// Handover describes the escalation action for a conversation.
type Handover struct {
	ConversationID string
	Reason         Category
	Priority       Priority
	Notes          string
}

// Escalator marks a conversation as requiring a human. Implemented by the
// Bird CRM client; injected so the scan stays pure.
type Escalator interface {
	Escalate(ctx context.Context, h Handover) error
}

// escalationTable maps severity to the handover action. Only critical and
// high severities escalate; medium substitutes the reply without waking a
// human.
var escalationTable = map[Severity]struct {
	reason   Category
	priority Priority
}{
	SeverityCritical: {CategoryMedicalAdvice, PriorityUrgent},
	SeverityHigh:     {CategoryPricingCommitment, PriorityMedium},
}

// Enforce applies a verdict: it returns the reply to actually send (the
// original when safe, the fixed safe fallback otherwise) and fires the
// handover side effect for critical and high severities. Escalation
// failures are logged and reported but never block the substituted reply.
func Enforce(ctx context.Context, esc Escalator, conversationID, reply string, v Verdict) (string, bool, error) {
	if v.Safe {
		return reply, false, nil
	}

	zap.L().Warn("guardrails: violation detected",
		zap.String("conversation_id", conversationID),
		zap.String("severity", v.Severity.String()),
		zap.Int("violations", len(v.Violations)),
	)

	safe := SafeFallback(v.Severity)

	action, ok := escalationTable[v.Severity]
	if !ok {
		return safe, false, nil
	}

	reason := action.reason
	// Report the category that actually matched when it differs from the
	// table default (an unsafe-reassurance hit is still a medical reason).
	if v.Severity == SeverityCritical && !v.Has(CategoryMedicalAdvice) {
		reason = CategoryUnsafeReassurance
	}

	err := esc.Escalate(ctx, Handover{
		ConversationID: conversationID,
		Reason:         reason,
		Priority:       action.priority,
		Notes:          "automatic guardrail escalation",
	})
	if err != nil {
		zap.L().Error("guardrails: escalation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return safe, false, err
	}
	return safe, true, nil
}
