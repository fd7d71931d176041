package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/guardrails"
	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/internal/store"
)

var (
	auditConversation string
	auditLimit        int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan sent replies for guardrail violations",
	Long:  "Re-runs the safety scan over outbound messages already delivered, for compliance review. Violations found here mean a phrase slipped past the live scan and the rule tables need updating.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if cfg.Guardrails.RulesPath != "" {
			rules, err := guardrails.LoadRules(cfg.Guardrails.RulesPath)
			if err != nil {
				return err
			}
			guardrails.ApplyRules(rules)
		}

		msgs, err := st.ListMessages(ctx, store.MessageFilter{
			Direction:      model.DirectionOutbound,
			ConversationID: auditConversation,
			Limit:          auditLimit,
		})
		if err != nil {
			return err
		}

		bodies := make([]string, len(msgs))
		for i, m := range msgs {
			bodies[i] = m.Body
		}

		result := guardrails.Audit(bodies)
		for _, f := range result.Flagged {
			m := msgs[f.Index]
			zap.L().Warn("audit: unsafe reply found",
				zap.String("message_id", m.ID),
				zap.String("conversation_id", m.ConversationID),
				zap.String("severity", f.Verdict.Severity.String()),
				zap.Int("violations", len(f.Verdict.Violations)),
			)
		}

		fmt.Printf("scanned %d outbound messages: %d violations (%d critical)\n",
			result.TotalMessages, result.ViolationCount, result.CriticalViolations)
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditConversation, "conversation", "", "restrict the scan to one conversation")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 1000, "maximum messages to scan")
	rootCmd.AddCommand(auditCmd)
}
