package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/catalog-harvester/models"
)

// NamedWriter pairs an output writer with the format it produces.
type NamedWriter struct {
	Format string
	Writer OutputWriter
}

// MultiWriter fans batches out to several writers.
type MultiWriter struct {
	writers []NamedWriter
	mu      sync.Mutex
}

// NewMultiWriter combines writers in order.
func NewMultiWriter(writers ...NamedWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write forwards records to every writer, stopping at the first failure.
func (mw *MultiWriter) Write(records []*models.ProductRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.Writer.Write(records); err != nil {
			return fmt.Errorf("%s write failed: %w", w.Format, err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", w.Format, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every output.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", w.Format, err))
		}
	}
	return errors.Join(errs...)
}

// Formats lists the formats in writer order.
func (mw *MultiWriter) Formats() []string {
	out := make([]string, 0, len(mw.writers))
	for _, w := range mw.writers {
		out = append(out, w.Format)
	}
	return out
}
