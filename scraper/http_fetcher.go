package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/catalog-harvester/config"
)

const engineHTTP = "http"

// HTTPFetcher downloads pages with a plain HTTP client. It cannot execute
// challenge scripts, so interstitials are handed to the detector as static
// documents.
type HTTPFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	detector  *Detector
	metrics   *Metrics
}

// NewHTTPFetcher builds a fetcher configured from cfg. detector, when set,
// lets 4xx/5xx interstitials through as pages instead of errors.
func NewHTTPFetcher(cfg *config.Config, detector *Detector, metrics *Metrics) (*HTTPFetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &HTTPFetcher{
		cfg:       cfg,
		collector: collector,
		detector:  detector,
		metrics:   metrics,
	}, nil
}

// Fetch downloads url, retrying transient failures with capped backoff.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := f.fetchOnce(url)
		if err == nil {
			return page, nil
		}

		category := errorTypeLabel(err)
		f.metrics.IncError(category)
		if attempt >= f.cfg.MaxRetries || !retryable(err) {
			return nil, err
		}

		f.metrics.IncRetries()
		delay := f.backoff(attempt + 1)
		slog.Debug("retrying fetch",
			slog.String("url", url),
			slog.String("category", category),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)
		if !sleepCtx(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

func (f *HTTPFetcher) fetchOnce(url string) (Page, error) {
	c := f.collector.Clone()

	var (
		page   *staticPage
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		f.metrics.IncFetch(engineHTTP, "started")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveFetch(engineHTTP, time.Since(start))
		}
		page = newStaticPage(r.Request.URL.String(), r.StatusCode, r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, classifyError(err, status)
	}
	if page == nil {
		return nil, fmt.Errorf("no response for %s", url)
	}
	f.metrics.IncFetch(engineHTTP, "completed")

	if page.status >= http.StatusBadRequest {
		if f.detector != nil && f.detector.Classify(page.title, page.body) != VerdictClear {
			return page, nil
		}
		slog.Error("non-200 response",
			slog.Int("status", page.status),
			slog.String("url", url),
		)
		return nil, classifyError(nil, page.status)
	}
	return page, nil
}

func (f *HTTPFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Close is a no-op; the HTTP transport is reclaimed by the garbage collector.
func (f *HTTPFetcher) Close() error {
	return nil
}
