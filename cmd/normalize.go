package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Run a batch contact name normalization pass",
	Long:  "Walks CRM contacts whose stored names are missing or junk, extracts real names from their conversation history, and applies or flags them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.newNormalizer().Run(cmd.Context())
		if err != nil {
			return err
		}

		zap.L().Info("normalization batch done",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("processed", run.Stats.Processed),
			zap.Int("applied", run.Stats.Applied),
			zap.Int("review", run.Stats.Review),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
