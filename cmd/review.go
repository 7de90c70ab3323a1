package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reviewFalsePositive bool

var reviewCmd = &cobra.Command{
	Use:   "review <indicator-id>",
	Short: "Mark an indicator reviewed, optionally as a false positive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		id := args[0]
		if reviewFalsePositive {
			if err := env.Pipeline.MarkFalsePositive(ctx, id); err != nil {
				return err
			}
			zap.L().Info("indicator flagged as false positive", zap.String("indicator_id", id))
			return nil
		}

		if err := env.Pipeline.MarkReviewed(ctx, id); err != nil {
			return err
		}
		zap.L().Info("indicator marked reviewed", zap.String("indicator_id", id))
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewFalsePositive, "false-positive", false, "flag the indicator as a false positive")
	rootCmd.AddCommand(reviewCmd)
}
