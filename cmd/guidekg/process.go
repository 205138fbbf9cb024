package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
	"github.com/mohammad-safakhou/guidekg/internal/guideline"
	srv "github.com/mohammad-safakhou/guidekg/internal/server"
)

func processCMD() *cobra.Command {
	var cfgPath string
	var dirMode bool

	var process = &cobra.Command{
		Use:   "process [path]",
		Short: "Extract a knowledge graph from guideline documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			logger := log.New(os.Stderr, "[GUIDEKG] ", log.LstdFlags)

			orch, _, tele, err := srv.BuildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer tele.Shutdown()

			var docs []core.Document
			if dirMode {
				docs, err = guideline.LoadDir(args[0])
			} else {
				var doc core.Document
				doc, err = guideline.Load(args[0])
				docs = []core.Document{doc}
			}
			if err != nil {
				return err
			}

			var failed int
			for _, doc := range docs {
				result, err := orch.ProcessDocument(ctx, doc)
				if err != nil {
					var sinkErr *core.SinkError
					if errors.As(err, &sinkErr) && result != nil {
						logger.Printf("warn: run %s finished but sink write failed: %v", result.RunID, err)
					} else {
						logger.Printf("error: document %s: %v", doc.ID, err)
						failed++
						continue
					}
				}
				fmt.Printf("run %s: %s\n", result.RunID, doc.Title)
				fmt.Printf("  cohorts: %d total, %d completed, %d failed\n",
					result.Stats.TotalCohorts, result.Stats.CompletedCohorts, result.Stats.FailedCohorts)
				fmt.Printf("  graph: %d nodes, %d edges (%d dangling edges dropped)\n",
					result.Stats.TotalNodes, result.Stats.TotalEdges, result.Stats.DroppedEdges)
				fmt.Printf("  usage: %d tokens, $%.4f, %s\n",
					result.Stats.TotalTokens, result.Stats.TotalCost, result.Stats.Duration)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(docs))
			}
			return nil
		},
	}
	process.Flags().BoolVar(&dirMode, "dir", false, "treat the path as a directory of guideline JSON files")
	process.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return process
}
