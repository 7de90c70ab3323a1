package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestline-sec/intelpipe/internal/model"
)

var auditLimit int

var intelCmd = &cobra.Command{
	Use:   "intel <document-id>",
	Short: "Show the intelligence extracted from a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		intel, err := env.Pipeline.GetIntelligence(ctx, args[0])
		if err != nil {
			return err
		}

		return printJSON(intel)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [document-id]",
	Short: "Show the audit trail of rejections and degradations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		docID := ""
		if len(args) == 1 {
			docID = args[0]
		}

		events, err := env.Store.ListAuditEvents(ctx, docID, auditLimit)
		if err != nil {
			return err
		}
		if events == nil {
			events = []model.AuditEvent{}
		}

		return printJSON(events)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "max events to return")
	rootCmd.AddCommand(intelCmd)
	rootCmd.AddCommand(auditCmd)
}
