package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrichWatch bool

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the actor profile enrichment cycle",
	Long:  "Resolves pending actor mentions, re-aggregates profiles, and optionally runs the model alias lookup. With --watch, repeats on the configured interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if enrichWatch {
			return env.Enricher.Watch(ctx)
		}

		ran, err := env.Enricher.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !ran {
			zap.L().Warn("enrichment already running, skipped")
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichWatch, "watch", false, "run continuously on the configured interval")
	rootCmd.AddCommand(enrichCmd)
}
