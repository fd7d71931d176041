package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "eva",
	Short: "WhatsApp assistant for the Durán dental clinic",
	Long:  "Answers patient messages over WhatsApp under a strict reply deadline: transcribes voice notes, drafts replies via Claude, enforces safety guardrails, and normalizes CRM contact names.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
