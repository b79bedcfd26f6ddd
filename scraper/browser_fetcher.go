package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/catalog-harvester/config"
)

const engineBrowser = "browser"

// BrowserFetcher renders pages in a shared headless Chromium. Tabs come from
// a bounded pool, so concurrent fetches block while every tab is in use.
type BrowserFetcher struct {
	cfg     *config.Config
	browser *rod.Browser
	pool    rod.Pool[rod.Page]
	limiter *rate.Limiter
	metrics *Metrics
}

// NewBrowserFetcher launches the browser and connects to it.
func NewBrowserFetcher(cfg *config.Config, metrics *Metrics) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(cfg.BrowserHeadless).
		NoSandbox(cfg.BrowserNoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-features"), "IsolateOrigins,site-per-process")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Info("browser launched", slog.String("control_url", controlURL))

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	limit := rate.Inf
	if cfg.NavigationRate > 0 {
		limit = rate.Limit(cfg.NavigationRate)
	}

	return &BrowserFetcher{
		cfg:     cfg,
		browser: browser,
		pool:    rod.NewPagePool(cfg.BrowserPages),
		limiter: rate.NewLimiter(limit, max(cfg.NavigationBurst, 1)),
		metrics: metrics,
	}, nil
}

// Fetch navigates a pooled tab to url. The returned page keeps the tab until
// it is closed.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	tab, err := f.pool.Get(f.newTab)
	if err != nil {
		return nil, fmt.Errorf("acquire tab: %w", err)
	}

	f.metrics.IncFetch(engineBrowser, "started")
	start := time.Now()

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	p := tab.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		f.release(tab)
		return nil, classifyError(fmt.Errorf("navigate %s: %w", url, err), 0)
	}
	if err := p.WaitLoad(); err != nil {
		slog.Debug("page load did not settle", slog.String("url", url), slog.Any("error", err))
	}

	f.metrics.ObserveFetch(engineBrowser, time.Since(start))
	f.metrics.IncFetch(engineBrowser, "completed")
	return &browserPage{fetcher: f, tab: tab, url: url}, nil
}

func (f *BrowserFetcher) newTab() (*rod.Page, error) {
	tab, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if _, err := tab.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", slog.Any("error", err))
	}
	if err := tab.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080, DeviceScaleFactor: 1}); err != nil {
		slog.Debug("set viewport", slog.Any("error", err))
	}
	if err := tab.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      f.cfg.UserAgent,
		AcceptLanguage: f.cfg.AcceptLanguage,
	}); err != nil {
		slog.Debug("set user agent", slog.Any("error", err))
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept-Language":           gson.New(f.cfg.AcceptLanguage),
			"Accept":                    gson.New("text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"),
			"Upgrade-Insecure-Requests": gson.New("1"),
		},
	}.Call(tab)
	return tab, nil
}

func (f *BrowserFetcher) release(tab *rod.Page) {
	if err := tab.Navigate("about:blank"); err != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", slog.Any("error", err))
	}
	f.pool.Put(tab)
}

// Close drains the tab pool and shuts the browser down.
func (f *BrowserFetcher) Close() error {
	f.pool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	return f.browser.Close()
}

// browserPage is a live tab; its title and content are read on demand so a
// clearing challenge is observed.
type browserPage struct {
	fetcher *BrowserFetcher
	tab     *rod.Page
	url     string
	closed  bool
}

func (p *browserPage) URL() string { return p.url }

func (p *browserPage) Title(ctx context.Context) (string, error) {
	res, err := p.tab.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *browserPage) HTML(ctx context.Context) (string, error) {
	return p.tab.Context(ctx).HTML()
}

func (p *browserPage) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.fetcher.release(p.tab)
	return nil
}
