package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
)

// ExportBaseName is the file stem shared by every export format.
const ExportBaseName = "aversi_products"

// ExportFile returns the path of the export in format under dir.
func ExportFile(dir, format string) string {
	return filepath.Join(dir, ExportBaseName+"."+format)
}

// NewWriter opens the writer for a single export format.
func NewWriter(format, path string) (OutputWriter, error) {
	switch format {
	case config.FormatCSV:
		return NewCSVWriter(path)
	case config.FormatJSONL:
		return NewJSONWriter(path)
	case config.FormatXLSX:
		return NewXLSXWriter(path)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// Export streams records through a pipeline into every format in
// cfg.ExportFormats and returns the written file per format.
func Export(ctx context.Context, records []models.ProductRecord, cfg *config.Config) (map[string]string, error) {
	if len(cfg.ExportFormats) == 0 {
		return nil, nil
	}

	files := make(map[string]string, len(cfg.ExportFormats))
	var writers []NamedWriter
	closeAll := func() {
		for _, w := range writers {
			w.Writer.Close()
		}
	}
	for _, format := range cfg.ExportFormats {
		path := ExportFile(cfg.ExportDir, format)
		w, err := NewWriter(format, path)
		if err != nil {
			closeAll()
			return nil, err
		}
		writers = append(writers, NamedWriter{Format: format, Writer: w})
		files[format] = path
	}
	out := NewMultiWriter(writers...)

	started := time.Now()
	p := NewPipeline(ctx, out, cfg)
	p.Start(cfg.ExportWorkers)
	p.StartMetricsReporting(cfg.ExportProgressInterval)

	batch := make([]*models.ProductRecord, 0, max(cfg.BatchSize, 1))
	var processErr error
	for i := range records {
		batch = append(batch, &records[i])
		if len(batch) == cap(batch) {
			if processErr = p.Process(batch...); processErr != nil {
				break
			}
			batch = batch[:0]
		}
	}
	if processErr == nil {
		processErr = p.Process(batch...)
	}

	closeErr := p.Close()
	writeErr := out.Close()
	if err := errors.Join(processErr, closeErr, writeErr); err != nil {
		return nil, fmt.Errorf("export catalog: %w", err)
	}

	if len(records) > 0 {
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("validate exports: %w", err)
		}
	}

	m := p.GetMetrics()
	slog.Info("catalog exported",
		slog.Int64("records", m["processed_records"].(int64)),
		slog.Any("skipped", m["validation_errors"]),
		slog.Any("formats", out.Formats()),
		slog.Duration("elapsed", time.Since(started)),
	)
	return files, nil
}
