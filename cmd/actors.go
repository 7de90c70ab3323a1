package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resolveLimit int

var actorsCmd = &cobra.Command{
	Use:   "actors",
	Short: "Threat actor registry operations",
}

var actorsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve pending actor mentions into profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Registry.Resolve(ctx, resolveLimit)
		if err != nil {
			return err
		}
		zap.L().Info("mentions resolved", zap.Int("count", n))
		return nil
	},
}

var actorsShowCmd = &cobra.Command{
	Use:   "show <profile-id-or-name>",
	Short: "Show a threat actor profile by id, canonical name, or alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		profile, err := env.Registry.Profile(ctx, args[0])
		if err != nil {
			return err
		}

		return printJSON(profile)
	},
}

var actorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threat actor profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		profiles, err := env.Store.ListProfiles(ctx)
		if err != nil {
			return err
		}

		// Merged profiles are redirects, not actors.
		live := profiles[:0]
		for _, p := range profiles {
			if p.MergedInto == "" {
				live = append(live, p)
			}
		}

		return printJSON(live)
	},
}

func init() {
	actorsResolveCmd.Flags().IntVar(&resolveLimit, "limit", 500, "max mentions to resolve")
	actorsCmd.AddCommand(actorsResolveCmd)
	actorsCmd.AddCommand(actorsShowCmd)
	actorsCmd.AddCommand(actorsListCmd)
	rootCmd.AddCommand(actorsCmd)
}
