package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crestline-sec/intelpipe/internal/pipeline"
)

var (
	batchFile        string
	batchConcurrency int
	batchUseModel    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest a JSONL file of documents concurrently",
	Long:  "Each line is a JSON object with title, content, source_url, and optional published_at. Documents are processed concurrently; a failed document is logged and skipped, never aborting the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(batchFile)
		if err != nil {
			return eris.Wrap(err, "open batch file")
		}
		defer f.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentDocs
		}
		if concurrency <= 0 {
			concurrency = 8
		}

		var processed, duplicates, failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			n := lineNo

			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				var in pipeline.IngestInput
				if err := json.Unmarshal(line, &in); err != nil {
					zap.L().Warn("batch: bad line", zap.Int("line", n), zap.Error(err))
					failed.Add(1)
					return nil
				}
				if batchUseModel {
					in.UseModel = true
				}

				res, err := env.Pipeline.IngestDocument(gctx, in)
				if err != nil {
					if gctx.Err() != nil {
						return err
					}
					zap.L().Warn("batch: document failed", zap.Int("line", n), zap.Error(err))
					failed.Add(1)
					return nil
				}
				if res.Duplicate {
					duplicates.Add(1)
				} else {
					processed.Add(1)
				}
				return nil
			})
		}
		if err := scanner.Err(); err != nil {
			_ = g.Wait()
			return eris.Wrap(err, "read batch file")
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch canceled")
		}

		fmt.Printf("processed=%d duplicates=%d failed=%d\n",
			processed.Load(), duplicates.Load(), failed.Load())
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSONL input file")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent documents (default from config)")
	batchCmd.Flags().BoolVar(&batchUseModel, "model", false, "run the model-assisted extraction pass on every document")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
