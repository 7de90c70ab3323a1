package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/pipeline"
)

var (
	ingestTitle     string
	ingestURL       string
	ingestFile      string
	ingestPublished string
	ingestUseModel  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a single document through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		content, err := readContent(ingestFile)
		if err != nil {
			return err
		}

		in := pipeline.IngestInput{
			Title:     ingestTitle,
			Content:   content,
			SourceURL: ingestURL,
			UseModel:  ingestUseModel,
		}
		if ingestPublished != "" {
			ts, err := time.Parse(time.RFC3339, ingestPublished)
			if err != nil {
				return eris.Wrap(err, "parse --published")
			}
			in.PublishedAt = ts
		}

		res, err := env.Pipeline.IngestDocument(ctx, in)
		if err != nil {
			return err
		}

		if res.Duplicate {
			zap.L().Info("document is a duplicate",
				zap.String("document_id", res.Document.ID),
				zap.String("canonical_id", res.CanonicalID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// readContent reads document content from a file, or stdin when path is "-"
// or empty.
func readContent(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "read content file")
	}
	return string(data), nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "source URL")
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "content file (default stdin)")
	ingestCmd.Flags().StringVar(&ingestPublished, "published", "", "published timestamp (RFC 3339)")
	ingestCmd.Flags().BoolVar(&ingestUseModel, "model", false, "run the model-assisted extraction pass")
	_ = ingestCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(ingestCmd)
}
