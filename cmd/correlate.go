package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	correlateFrom string
	correlateTo   string
)

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Report indicator sharing and document clusters for a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		to := time.Now().UTC()
		from := to.Add(-30 * 24 * time.Hour)
		if correlateFrom != "" {
			from, err = time.Parse(time.RFC3339, correlateFrom)
			if err != nil {
				return eris.Wrap(err, "parse --from")
			}
		}
		if correlateTo != "" {
			to, err = time.Parse(time.RFC3339, correlateTo)
			if err != nil {
				return eris.Wrap(err, "parse --to")
			}
		}

		report, err := env.Correlate.Report(ctx, from, to)
		if err != nil {
			return err
		}

		return printJSON(report)
	},
}

func init() {
	correlateCmd.Flags().StringVar(&correlateFrom, "from", "", "window start (RFC 3339, default 30 days ago)")
	correlateCmd.Flags().StringVar(&correlateTo, "to", "", "window end (RFC 3339, default now)")
	rootCmd.AddCommand(correlateCmd)
}
