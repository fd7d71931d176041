package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/internal/store"
	"github.com/clinica-duran/eva/pkg/bird"
)

var (
	backfillContact  string
	backfillMessages int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Import a contact's CRM conversation history into the local store",
	Long:  "Pulls a conversation's message history from the CRM and loads it locally so audits and transcript provenance cover messages sent before this service existed. Run once per conversation: re-importing duplicates IDs and fails the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		crm := bird.NewClient(cfg.Bird.AccessKey, cfg.Bird.WorkspaceID,
			bird.WithBaseURL(cfg.Bird.BaseURL))

		history, err := crm.ListConversationMessages(ctx, backfillContact, backfillMessages)
		if err != nil {
			return err
		}

		msgs := make([]model.Message, 0, len(history))
		for _, h := range history {
			direction := model.DirectionInbound
			if h.Direction == "outbound" {
				direction = model.DirectionOutbound
			}
			msgs = append(msgs, model.Message{
				ID:             h.ID,
				ConversationID: backfillContact,
				ContactID:      backfillContact,
				Direction:      direction,
				Kind:           model.KindText,
				Body:           h.Text,
				CreatedAt:      h.CreatedAt,
			})
		}

		// Postgres takes the COPY fast path; sqlite inserts row by row.
		if ps, ok := st.(*store.PostgresStore); ok {
			n, err := ps.BulkInsertMessages(ctx, msgs)
			if err != nil {
				return err
			}
			zap.L().Info("backfill complete",
				zap.String("conversation_id", backfillContact),
				zap.Int64("imported", n),
			)
			return nil
		}

		for _, m := range msgs {
			if err := st.SaveMessage(ctx, m); err != nil {
				return err
			}
		}
		zap.L().Info("backfill complete",
			zap.String("conversation_id", backfillContact),
			zap.Int("imported", len(msgs)),
		)
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillContact, "conversation", "", "conversation to import (required)")
	backfillCmd.Flags().IntVar(&backfillMessages, "limit", 500, "maximum messages to import")
	_ = backfillCmd.MarkFlagRequired("conversation")
	rootCmd.AddCommand(backfillCmd)
}
