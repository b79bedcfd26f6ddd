package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Fetch engines.
const (
	EngineHTTP    = "http"
	EngineBrowser = "browser"
)

// Export formats.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
	FormatXLSX  = "xlsx"
)

// Config holds harvester configuration.
type Config struct {
	// Fetching.
	Engine           string // http or browser
	UserAgent        string
	AcceptLanguage   string
	Timeout          time.Duration
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	RespectRobotsTxt bool

	// Browser engine.
	BrowserPages     int
	BrowserHeadless  bool
	BrowserNoSandbox bool
	BrowserBin       string
	NavigationRate   float64 // navigations per second, shared by all pipelines
	NavigationBurst  int

	// Challenge gating.
	ChallengeTitles  []string
	BlockMarkers     []string
	ChallengeTimeout time.Duration
	ChallengePoll    time.Duration
	ChallengeSettle  time.Duration

	// Walking.
	Concurrency      int
	PageCooldown     time.Duration
	CategoryCooldown time.Duration

	// Sources.
	ShopBaseURL            string
	ShopPageTemplate       string
	ShopCategoriesFile     string
	DiscoverShopCategories bool
	DiscoveredEndPage      int
	DiscoveredPageSize     int
	FarmFirstPageTemplate  string
	FarmPageTemplate       string
	FarmCategoriesFile     string
	FarmMaxPages           int

	// Output.
	CatalogFile        string
	ExportDir          string
	ExportFormats      []string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	ExportWorkers      int

	// Zero disables periodic export progress logs.
	ExportProgressInterval time.Duration
	// CheckpointFile receives the records of the run in progress as JSONL,
	// one line per product, as categories finish. Empty disables it.
	CheckpointFile string

	// Control surface.
	ListenAddr  string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns the production defaults for the two pharmacy sites.
func DefaultConfig() *Config {
	return &Config{
		Engine:           EngineBrowser,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
		AcceptLanguage:   "ka,en-US;q=0.9,en;q=0.8",
		Timeout:          60 * time.Second,
		Parallelism:      2,
		Delay:            0,
		RandomDelay:      0,
		MaxRetries:       2,
		RetryBackoff:     500 * time.Millisecond,
		RetryBackoffMax:  5 * time.Second,
		RespectRobotsTxt: false,

		BrowserPages:     2,
		BrowserHeadless:  true,
		BrowserNoSandbox: true,
		NavigationRate:   1,
		NavigationBurst:  1,

		ChallengeTitles:  []string{"Just a moment", "Verify you are human"},
		BlockMarkers:     []string{"Please unblock challenges.cloudflare.com"},
		ChallengeTimeout: 30 * time.Second,
		ChallengePoll:    time.Second,
		ChallengeSettle:  3 * time.Second,

		Concurrency:      2,
		PageCooldown:     3 * time.Second,
		CategoryCooldown: 3 * time.Second,

		ShopBaseURL:            "https://shop.aversi.ge/ka/",
		ShopPageTemplate:       "{locator}page-{page}/?items_per_page={size}&sort_by=product&sort_order=asc",
		DiscoverShopCategories: true,
		DiscoveredEndPage:      50,
		DiscoveredPageSize:     192,
		FarmFirstPageTemplate:  "https://www.aversi.ge/ka/aversi/act/genDet/?FarmID={locator}",
		FarmPageTemplate:       "https://www.aversi.ge/ka/aversi/act/genDet/?FarmID={locator}&page={page}",
		FarmCategoriesFile:     "data/aversi-farmid.json",
		FarmMaxPages:           200,

		CatalogFile:        "data/aversi_products.json",
		ExportDir:          "output",
		ExportFormats:      []string{FormatCSV, FormatXLSX},
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100_000,
		ExportWorkers:      1,

		ExportProgressInterval: 5 * time.Second,
		CheckpointFile:         "data/aversi_run.jsonl",

		ListenAddr:  ":3000",
		MetricsAddr: "",
		Verbose:     false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Engine != EngineHTTP && c.Engine != EngineBrowser {
		return fmt.Errorf("engine must be http or browser")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}

	if c.Engine == EngineBrowser {
		if c.BrowserPages <= 0 {
			return fmt.Errorf("browser pages must be positive")
		}
		if c.NavigationRate < 0 {
			return fmt.Errorf("navigation rate cannot be negative")
		}
		if c.NavigationRate > 0 && c.NavigationBurst <= 0 {
			return fmt.Errorf("navigation burst must be positive when a navigation rate is set")
		}
	}

	if c.ChallengeTimeout < 0 {
		return fmt.Errorf("challenge timeout cannot be negative")
	}
	if c.ChallengePoll <= 0 {
		return fmt.Errorf("challenge poll interval must be positive")
	}
	if c.ChallengeSettle < 0 {
		return fmt.Errorf("challenge settle delay cannot be negative")
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.PageCooldown < 0 {
		return fmt.Errorf("page cooldown cannot be negative")
	}
	if c.CategoryCooldown < 0 {
		return fmt.Errorf("category cooldown cannot be negative")
	}

	if err := validateBaseURL("shop base URL", c.ShopBaseURL); err != nil {
		return err
	}
	if !strings.Contains(c.ShopPageTemplate, "{locator}") || !strings.Contains(c.ShopPageTemplate, "{page}") {
		return fmt.Errorf("shop page template must contain {locator} and {page}")
	}
	if !strings.Contains(c.FarmFirstPageTemplate, "{locator}") {
		return fmt.Errorf("farm first page template must contain {locator}")
	}
	if !strings.Contains(c.FarmPageTemplate, "{locator}") || !strings.Contains(c.FarmPageTemplate, "{page}") {
		return fmt.Errorf("farm page template must contain {locator} and {page}")
	}
	if c.DiscoverShopCategories && (c.DiscoveredEndPage <= 0 || c.DiscoveredPageSize < 0) {
		return fmt.Errorf("discovered category pages must be positive")
	}
	if c.FarmMaxPages <= 0 {
		return fmt.Errorf("farm max pages must be positive")
	}

	if c.CatalogFile == "" {
		return fmt.Errorf("catalog file cannot be empty")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export directory cannot be empty")
	}
	for _, format := range c.ExportFormats {
		if !slices.Contains([]string{FormatCSV, FormatJSONL, FormatXLSX}, format) {
			return fmt.Errorf("export format must be csv, jsonl, or xlsx, got %q", format)
		}
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.ExportWorkers <= 0 {
		return fmt.Errorf("export workers must be positive")
	}
	if c.ExportProgressInterval < 0 {
		return fmt.Errorf("export progress interval cannot be negative")
	}
	if c.CheckpointFile != "" && filepath.Clean(c.CheckpointFile) == filepath.Clean(c.CatalogFile) {
		return fmt.Errorf("checkpoint file must differ from the catalog file")
	}

	return nil
}

func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// ParseFormats splits a comma separated list of export formats.
func ParseFormats(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || slices.Contains(out, part) {
			continue
		}
		out = append(out, part)
	}
	return out
}
