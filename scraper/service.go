package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/catalog-harvester/catalog"
	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
	"github.com/aluiziolira/catalog-harvester/pipeline"
	"github.com/aluiziolira/catalog-harvester/status"
)

// ErrExportNotFound is returned when a requested export file does not exist.
var ErrExportNotFound = errors.New("scraper: export not found")

// Service owns the run lifecycle: status, crawl, merge, persistence and export.
type Service struct {
	cfg          *config.Config
	fetcher      Fetcher
	detector     *Detector
	tracker      *status.Tracker
	store        *catalog.Store
	orchestrator *Orchestrator
	Metrics      *Metrics

	wg   sync.WaitGroup
	mu   sync.Mutex
	last *models.RunResult
}

// NewService wires a service around fetcher. metrics may be nil.
func NewService(cfg *config.Config, fetcher Fetcher, metrics *Metrics) *Service {
	tracker := status.NewTracker()
	detector := NewDetector(cfg, metrics)
	walker := &Walker{
		Fetcher:          fetcher,
		Detector:         detector,
		Sources:          SourcesFromConfig(cfg),
		Stop:             tracker,
		FetchTimeout:     cfg.Timeout,
		ChallengeTimeout: cfg.ChallengeTimeout,
		Cooldown:         cfg.PageCooldown,
	}
	return &Service{
		cfg:      cfg,
		fetcher:  fetcher,
		detector: detector,
		tracker:  tracker,
		store:    catalog.NewStore(cfg.CatalogFile),
		orchestrator: &Orchestrator{
			Walker:           walker,
			Tracker:          tracker,
			Metrics:          metrics,
			Concurrency:      cfg.Concurrency,
			CategoryCooldown: cfg.CategoryCooldown,
		},
		Metrics: metrics,
	}
}

// NewFetcher builds the fetch engine selected by cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (Fetcher, error) {
	switch cfg.Engine {
	case config.EngineHTTP:
		return NewHTTPFetcher(cfg, NewDetector(cfg, metrics), metrics)
	case config.EngineBrowser:
		return NewBrowserFetcher(cfg, metrics)
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
	}
}

// Start launches a run in the background. It fails with
// status.ErrRunInProgress while another run is active.
func (s *Service) Start(ctx context.Context) error {
	if err := s.tracker.Begin("Starting..."); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(ctx); err != nil {
			slog.Error("run failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Run performs a run synchronously and returns its result.
func (s *Service) Run(ctx context.Context) (*models.RunResult, error) {
	if err := s.tracker.Begin("Starting..."); err != nil {
		return nil, err
	}
	return s.execute(ctx)
}

// Wait blocks until background runs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// RequestStop asks the active run to wind down at its next checkpoint.
func (s *Service) RequestStop() error {
	return s.tracker.RequestStop()
}

// Status returns a snapshot of the run status.
func (s *Service) Status() status.Snapshot {
	return s.tracker.Snapshot()
}

// LastResult returns the result of the most recent completed crawl.
func (s *Service) LastResult() *models.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Catalog returns up to limit records of the persisted catalog and its size.
func (s *Service) Catalog(limit int) ([]models.ProductRecord, int, error) {
	records, err := s.store.Load()
	if err != nil {
		return nil, 0, err
	}
	total := len(records)
	if limit >= 0 && limit < total {
		records = records[:limit]
	}
	return records, total, nil
}

// ExportPath returns the file holding the catalog in format. "json" is the
// persisted catalog itself.
func (s *Service) ExportPath(format string) (string, error) {
	var path string
	switch format {
	case "json":
		path = s.store.Path()
	case config.FormatCSV, config.FormatJSONL, config.FormatXLSX:
		path = pipeline.ExportFile(s.cfg.ExportDir, format)
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrExportNotFound, format)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrExportNotFound, path)
		}
		return "", err
	}
	return path, nil
}

// Close releases the fetch engine.
func (s *Service) Close() error {
	return s.fetcher.Close()
}

func (s *Service) execute(ctx context.Context) (*models.RunResult, error) {
	started := time.Now()

	existing, err := s.store.Load()
	if err != nil {
		return nil, s.fail(fmt.Errorf("load catalog: %w", err))
	}
	slog.Info("catalog loaded", slog.Int("records", len(existing)))

	s.tracker.SetMessage("Resolving categories...")
	tasks, err := ResolveTasks(ctx, s.cfg, s.fetcher, s.detector)
	if err != nil {
		return nil, s.fail(err)
	}
	s.saveTasks(tasks)
	s.tracker.SetMessage(fmt.Sprintf("Found %d categories. Scraping started.", len(tasks)))

	// Persistence outlives a cancelled crawl so collected pages are kept.
	persistCtx := context.WithoutCancel(ctx)

	orchestrator := *s.orchestrator
	checkpoint := s.openCheckpoint(persistCtx)
	if checkpoint != nil {
		orchestrator.Sink = checkpoint
	}
	result := orchestrator.Run(ctx, tasks)
	if checkpoint != nil {
		if _, _, err := checkpoint.Close(); err != nil {
			slog.Warn("checkpoint incomplete", slog.String("path", checkpoint.Path()), slog.Any("error", err))
		}
	}

	if n := catalog.Keyless(result.Records); n > 0 {
		slog.Warn("records without product code dropped at merge", slog.Int("count", n))
	}
	merged := catalog.Merge(existing, result.Records)
	if err := s.store.Save(merged); err != nil {
		return &result, s.fail(fmt.Errorf("save catalog: %w", err))
	}

	if files, err := pipeline.Export(persistCtx, merged, s.cfg); err != nil {
		slog.Error("export failed", slog.Any("error", err))
	} else {
		for format, path := range files {
			slog.Info("export written", slog.String("format", format), slog.String("path", path))
		}
	}

	elapsed := time.Since(started)
	stats := catalog.Summarize(merged, &result, elapsed)
	s.tracker.Finish(stats, completionMessage(&result, stats.Duration))

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()
	return &result, nil
}

// openCheckpoint starts the per-run record checkpoint, or returns nil when
// it is disabled or cannot be created.
func (s *Service) openCheckpoint(ctx context.Context) *pipeline.Checkpoint {
	if s.cfg.CheckpointFile == "" {
		return nil
	}
	checkpoint, err := pipeline.OpenCheckpoint(ctx, s.cfg.CheckpointFile, s.cfg)
	if err != nil {
		slog.Warn("run checkpoint disabled", slog.Any("error", err))
		return nil
	}
	return checkpoint
}

func completionMessage(result *models.RunResult, minutes string) string {
	switch {
	case len(result.Records) == 0:
		return "No products were scraped"
	case result.Stopped:
		return fmt.Sprintf("Stopped! Scraped %d products in %s minutes", len(result.Records), minutes)
	}
	return fmt.Sprintf("Completed! Scraped %d products in %s minutes", len(result.Records), minutes)
}

func (s *Service) fail(err error) error {
	s.tracker.Fail(err)
	return err
}

// ResolvedCategoriesFile is the name of the per-run category list written
// next to the catalog. It is an output only; runs never read it back.
const ResolvedCategoriesFile = "resolved_categories.json"

// saveTasks records the resolved category list of a run. Configured
// category inputs are never overwritten.
func (s *Service) saveTasks(tasks []models.CategoryTask) {
	path := filepath.Join(filepath.Dir(s.cfg.CatalogFile), ResolvedCategoriesFile)
	for _, input := range []string{s.cfg.ShopCategoriesFile, s.cfg.FarmCategoriesFile} {
		if input != "" && filepath.Clean(input) == filepath.Clean(path) {
			slog.Warn("resolved categories would overwrite a category input, not saving", slog.String("path", path))
			return
		}
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err == nil {
		err = os.MkdirAll(filepath.Dir(path), 0o755)
	}
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		slog.Warn("could not save resolved categories", slog.String("path", path), slog.Any("error", err))
	}
}
