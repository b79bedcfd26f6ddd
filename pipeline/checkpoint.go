package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
)

// Checkpoint streams the records of a crawl in progress to a JSONL file as
// categories finish. A product listed under several categories is written
// once, at its first sighting.
type Checkpoint struct {
	path     string
	writer   *JSONWriter
	pipeline *Pipeline
}

// OpenCheckpoint truncates path and starts a single-worker pipeline so the
// file keeps crawl order.
func OpenCheckpoint(ctx context.Context, path string, cfg *config.Config) (*Checkpoint, error) {
	writer, err := NewJSONWriter(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	p := NewPipeline(ctx, writer, cfg)
	p.Start(1)
	return &Checkpoint{path: path, writer: writer, pipeline: p}, nil
}

// Path returns the checkpoint file.
func (c *Checkpoint) Path() string {
	return c.path
}

// Process queues records. It is safe for concurrent use.
func (c *Checkpoint) Process(records ...*models.ProductRecord) error {
	return c.pipeline.Process(records...)
}

// Close drains queued records and closes the file. It returns the number of
// records written and the skipped counts by reason.
func (c *Checkpoint) Close() (int64, map[string]int, error) {
	err := errors.Join(c.pipeline.Close(), c.writer.Close())

	m := c.pipeline.GetMetrics()
	written := m["processed_records"].(int64)
	skipped := m["validation_errors"].(map[string]int)
	slog.Info("checkpoint written",
		slog.String("path", c.path),
		slog.Int64("records", written),
		slog.Any("skipped", skipped),
	)
	return written, skipped, err
}
