package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/catalog-harvester/api"
	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
	"github.com/aluiziolira/catalog-harvester/scraper"
	"github.com/aluiziolira/catalog-harvester/status"
)

func main() {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	formats := strings.Join(cfg.ExportFormats, ",")
	serve := flag.Bool("serve", false, "Serve the HTTP control surface instead of running once")
	flag.StringVar(&cfg.Engine, "engine", cfg.Engine, "Fetch engine: browser or http")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Source pipelines running at once")
	flag.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Concurrent requests of the http engine")
	flag.IntVar(&cfg.BrowserPages, "browser-pages", cfg.BrowserPages, "Browser tabs in the page pool")
	flag.StringVar(&cfg.BrowserBin, "browser-bin", cfg.BrowserBin, "Chromium binary (empty downloads one)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-page fetch timeout")
	flag.DurationVar(&cfg.ChallengeTimeout, "challenge-timeout", cfg.ChallengeTimeout, "Maximum wait for an anti-bot challenge to clear")
	flag.DurationVar(&cfg.PageCooldown, "page-cooldown", cfg.PageCooldown, "Pause between pages of a category")
	flag.DurationVar(&cfg.CategoryCooldown, "category-cooldown", cfg.CategoryCooldown, "Pause between categories of a source")
	flag.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per page (http engine)")
	flag.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	flag.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flag.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives (http engine)")
	flag.BoolVar(&cfg.DiscoverShopCategories, "discover", cfg.DiscoverShopCategories, "Discover shop categories from the site menu")
	flag.StringVar(&cfg.ShopCategoriesFile, "shop-categories", cfg.ShopCategoriesFile, "JSON file of shop categories (empty uses the built-in list)")
	flag.StringVar(&cfg.FarmCategoriesFile, "farm-categories", cfg.FarmCategoriesFile, "JSON file mapping FarmID to category name")
	flag.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "Persisted catalog file")
	flag.StringVar(&cfg.CheckpointFile, "checkpoint", cfg.CheckpointFile, "JSONL file receiving records while a run is in progress (empty disables)")
	flag.StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "Directory for catalog exports")
	flag.StringVar(&formats, "formats", formats, "Comma-separated export formats: csv, jsonl, xlsx")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Control surface listen address")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address for one-shot runs (e.g. :9090)")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	flag.Parse()
	cfg.ExportFormats = config.ParseFormats(formats)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		slog.Error("initialising fetch engine", slog.Any("error", err))
		os.Exit(1)
	}
	svc := scraper.NewService(cfg, fetcher, metrics)
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("close fetch engine", slog.Any("error", err))
		}
	}()

	if *serve {
		if err := runServer(cfg, svc); err != nil {
			slog.Error("control surface failed", slog.Any("error", err))
			svc.Close()
			os.Exit(1)
		}
		return
	}

	if err := runOnce(cfg, svc); err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		svc.Close()
		os.Exit(1)
	}
}

// runServer serves the control surface until SIGINT/SIGTERM, then stops any
// active run and waits for it to persist.
func runServer(cfg *config.Config, svc *scraper.Service) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(ctx, svc, svc.Metrics.Registry, time.Now()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("control surface listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("engine", cfg.Engine),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, waiting for in-flight work to finish")
	if err := svc.RequestStop(); err != nil && !errors.Is(err, status.ErrNoRun) {
		slog.Warn("request stop", slog.Any("error", err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("control surface shutdown failed", slog.Any("error", err))
	}
	svc.Wait()
	return nil
}

// runOnce performs a single run. The first SIGINT/SIGTERM asks the run to
// stop after the current page; a second one cancels in-flight fetches.
func runOnce(cfg *config.Config, svc *scraper.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for i := 0; ; i++ {
			select {
			case <-sigCh:
			case <-ctx.Done():
				return
			}
			if i == 0 {
				slog.Info("shutdown signal received, finishing the current page")
				if err := svc.RequestStop(); err != nil {
					slog.Warn("request stop", slog.Any("error", err))
				}
				continue
			}
			slog.Warn("second signal received, cancelling in-flight fetches")
			cancel()
			return
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && svc.Metrics != nil {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(svc.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting harvest",
		slog.String("engine", cfg.Engine),
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("catalog", cfg.CatalogFile),
	)

	startTime := time.Now()
	result, err := svc.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		shutdownCancel()
	}
	if err != nil {
		return err
	}

	printSummary(result, svc.Status(), time.Since(startTime), cfg)
	return nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("HARVESTER_ENGINE"); ok {
		cfg.Engine = strings.ToLower(value)
	}
	if value, ok, err := config.EnvInt("HARVESTER_CONCURRENCY"); err != nil {
		return fmt.Errorf("invalid HARVESTER_CONCURRENCY: %w", err)
	} else if ok {
		cfg.Concurrency = value
	}
	if value, ok, err := config.EnvInt("HARVESTER_BROWSER_PAGES"); err != nil {
		return fmt.Errorf("invalid HARVESTER_BROWSER_PAGES: %w", err)
	} else if ok {
		cfg.BrowserPages = value
	}
	if value, ok := config.EnvString("HARVESTER_BROWSER_BIN"); ok {
		cfg.BrowserBin = value
	}
	if value, ok, err := config.EnvBool("HARVESTER_BROWSER_HEADLESS"); err != nil {
		return fmt.Errorf("invalid HARVESTER_BROWSER_HEADLESS: %w", err)
	} else if ok {
		cfg.BrowserHeadless = value
	}
	if value, ok, err := config.EnvDuration("HARVESTER_TIMEOUT"); err != nil {
		return fmt.Errorf("invalid HARVESTER_TIMEOUT: %w", err)
	} else if ok {
		cfg.Timeout = value
	}
	if value, ok, err := config.EnvDuration("HARVESTER_PAGE_COOLDOWN"); err != nil {
		return fmt.Errorf("invalid HARVESTER_PAGE_COOLDOWN: %w", err)
	} else if ok {
		cfg.PageCooldown = value
	}
	if value, ok, err := config.EnvDuration("HARVESTER_CATEGORY_COOLDOWN"); err != nil {
		return fmt.Errorf("invalid HARVESTER_CATEGORY_COOLDOWN: %w", err)
	} else if ok {
		cfg.CategoryCooldown = value
	}
	if value, ok, err := config.EnvBool("HARVESTER_DISCOVER"); err != nil {
		return fmt.Errorf("invalid HARVESTER_DISCOVER: %w", err)
	} else if ok {
		cfg.DiscoverShopCategories = value
	}
	if value, ok := config.EnvString("HARVESTER_SHOP_CATEGORIES"); ok {
		cfg.ShopCategoriesFile = value
	}
	if value, ok := config.EnvString("HARVESTER_FARM_CATEGORIES"); ok {
		cfg.FarmCategoriesFile = value
	}
	if value, ok := config.EnvString("HARVESTER_CATALOG"); ok {
		cfg.CatalogFile = value
	}
	if value, ok := config.EnvString("HARVESTER_CHECKPOINT"); ok {
		cfg.CheckpointFile = value
	}
	if value, ok := config.EnvString("HARVESTER_EXPORT_DIR"); ok {
		cfg.ExportDir = value
	}
	if value, ok := config.EnvString("HARVESTER_FORMATS"); ok {
		cfg.ExportFormats = config.ParseFormats(value)
	}
	if value, ok := config.EnvString("HARVESTER_LISTEN"); ok {
		cfg.ListenAddr = value
	}
	if value, ok := config.EnvString("HARVESTER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

func printSummary(result *models.RunResult, snap status.Snapshot, duration time.Duration, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println(snap.Message)

	fmt.Printf("  Scraped:       %d\n", len(result.Records))
	fmt.Printf("  Pages:         %d\n", result.PagesCompleted())
	fmt.Printf("  Failed pages:  %d\n", len(result.FailedPages()))
	for _, src := range models.Sources {
		summary, ok := result.PerSource[src]
		if !ok {
			continue
		}
		fmt.Printf("  %-16s%d records, %d/%d categories\n", string(src)+":", summary.Records, summary.CategoriesDone, summary.Categories)
	}
	if stats := snap.Statistics; stats != nil {
		fmt.Printf("  Catalog:       %d products (%d medication, %d care)\n", stats.TotalProducts, stats.MedicationProducts, stats.CareProducts)
		fmt.Printf("  With price:    %d (%d discounted)\n", stats.WithPrice, stats.WithDiscount)
	}
	if result.Stopped {
		fmt.Println("  Stopped early: yes")
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Catalog file:  %s\n", cfg.CatalogFile)
	fmt.Printf("  Exports:       %s (%s)\n", cfg.ExportDir, strings.Join(cfg.ExportFormats, ", "))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
