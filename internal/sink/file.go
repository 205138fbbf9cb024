package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// FileSink writes the run artifact as pretty-printed JSON under OutputDir,
// one file per run.
type FileSink struct {
	outputDir string
	logger    *log.Logger
}

func NewFileSink(outputDir string, logger *log.Logger) *FileSink {
	if logger == nil {
		logger = log.New(os.Stdout, "[SINK] ", log.LstdFlags)
	}
	if outputDir == "" {
		outputDir = "output"
	}
	return &FileSink{outputDir: outputDir, logger: logger}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(ctx context.Context, result *core.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run artifact: %w", err)
	}

	path := filepath.Join(s.outputDir, fmt.Sprintf("%s.json", result.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run artifact: %w", err)
	}

	s.logger.Printf("wrote run %s to %s (%d bytes)", result.RunID, path, len(data))
	return nil
}
