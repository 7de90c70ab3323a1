package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intelpipe",
	Short: "Threat intelligence extraction and correlation pipeline",
	Long:  "Ingests threat reports, deduplicates them, extracts indicators and techniques, resolves threat actor aliases, and correlates documents through shared indicators.",
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
