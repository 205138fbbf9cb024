package sink

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// FromConfig builds the configured sinks. The file sink is always present;
// S3 is added when enabled.
func FromConfig(ctx context.Context, cfg config.SinkConfig, logger *log.Logger) ([]core.Sink, error) {
	sinks := []core.Sink{NewFileSink(cfg.OutputDir, logger)}

	if cfg.S3.Enabled {
		s3Sink, err := NewS3Sink(ctx, cfg.S3, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 sink: %w", err)
		}
		sinks = append(sinks, s3Sink)
	}

	return sinks, nil
}
