package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/catalog-harvester/models"
)

// StopReason records why a category walk ended.
type StopReason string

const (
	StopBudget          StopReason = "budget_exhausted"
	StopShortPage       StopReason = "short_page"
	StopEmptyStart      StopReason = "empty_first_page"
	StopEndOfListing    StopReason = "end_of_listing"
	StopFetchFailed     StopReason = "fetch_failed"
	StopDiscoveryFailed StopReason = "discovery_failed"
	StopRequested       StopReason = "stop_requested"
	StopUnknownSource   StopReason = "unknown_source"
)

// Page outcomes reported to Progress and metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeEmpty    = "empty"
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
)

// Progress receives per-page notifications from a walk.
type Progress interface {
	PageStarted(task models.CategoryTask, page, pagesTotal int)
	PageDone(task models.CategoryTask, page int, outcome string, records int)
}

type noProgress struct{}

func (noProgress) PageStarted(models.CategoryTask, int, int)      {}
func (noProgress) PageDone(models.CategoryTask, int, string, int) {}

// StopSignal is polled before every page fetch.
type StopSignal interface {
	StopRequested() bool
}

// WalkResult is the outcome of one category walk.
type WalkResult struct {
	Task           models.CategoryTask
	Records        []models.ProductRecord
	PagesTotal     int
	PagesCompleted int
	PagesSkipped   int
	FailedPages    []string
	StopReason     StopReason
}

// Summary converts the result for the run report.
func (r WalkResult) Summary() models.CategorySummary {
	return models.CategorySummary{
		SourceID:       r.Task.SourceID,
		Locator:        r.Task.Locator,
		Label:          r.Task.DisplayName(),
		PagesCompleted: r.PagesCompleted,
		PagesSkipped:   r.PagesSkipped,
		FailedPages:    slices.Clone(r.FailedPages),
		Records:        len(r.Records),
		StopReason:     string(r.StopReason),
	}
}

// Walker pages through one category at a time.
type Walker struct {
	Fetcher          Fetcher
	Detector         *Detector
	Sources          map[models.SourceID]Source
	Stop             StopSignal
	FetchTimeout     time.Duration
	ChallengeTimeout time.Duration
	Cooldown         time.Duration
}

// pageResult is what a single fetch-detect-extract step observed.
type pageResult struct {
	url     string
	err     error
	blocked bool
	doc     *goquery.Document
	records []models.ProductRecord
}

// decision is the walker's verdict on one page.
type decision struct {
	accept bool
	failed bool
	skip   bool
	stop   StopReason
}

// decide applies the pagination decision table to a page result.
func decide(task models.CategoryTask, page int, res pageResult, continueOnFetchError bool) decision {
	switch {
	case res.err != nil:
		if continueOnFetchError {
			return decision{failed: true}
		}
		return decision{failed: true, stop: StopFetchFailed}
	case res.blocked:
		return decision{skip: true}
	case len(res.records) == 0 && page == task.StartPage:
		return decision{failed: true, stop: StopEmptyStart}
	case len(res.records) == 0:
		return decision{stop: StopEndOfListing}
	case task.PageSize > 0 && len(res.records) < task.PageSize:
		return decision{accept: true, stop: StopShortPage}
	}
	return decision{accept: true}
}

// Walk pages through task in increasing order until a stop condition.
func (w *Walker) Walk(ctx context.Context, task models.CategoryTask, progress Progress) WalkResult {
	if progress == nil {
		progress = noProgress{}
	}
	result := WalkResult{Task: task}
	logger := slog.With(
		slog.String("source", string(task.SourceID)),
		slog.String("category", task.DisplayName()),
	)

	src, ok := w.Sources[task.SourceID]
	if !ok {
		logger.Error("no source configured for task")
		result.StopReason = StopUnknownSource
		return result
	}

	start := max(task.StartPage, 1)
	task.StartPage = start
	end := task.EndPage
	result.PagesTotal = max(end-start+1, 0)

	var first *pageResult
	if src.DiscoverPages && start <= end {
		if w.stopped(ctx) {
			result.StopReason = StopRequested
			return result
		}
		progress.PageStarted(task, start, end)
		res := w.fetchPage(ctx, src, task, start)
		if res.err != nil {
			logger.Warn("pagination discovery failed", slog.Any("error", res.err))
			result.FailedPages = append(result.FailedPages, res.url)
			progress.PageDone(task, start, OutcomeFailed, 0)
			result.StopReason = StopDiscoveryFailed
			return result
		}
		discovered := 1
		if res.doc != nil {
			discovered = src.Ruleset.MaxPage(res.doc)
		}
		end = min(max(discovered, start), task.EndPage)
		result.PagesTotal = end - start + 1
		logger.Info("pages discovered", slog.Int("pages", result.PagesTotal))
		first = &res
	}

	result.StopReason = StopBudget
	for page := start; page <= end; page++ {
		if page > start && !sleepCtx(ctx, w.Cooldown) {
			result.StopReason = StopRequested
			break
		}

		var res pageResult
		if first != nil && page == start {
			res = *first
			first = nil
		} else {
			if w.stopped(ctx) {
				result.StopReason = StopRequested
				break
			}
			progress.PageStarted(task, page, end)
			res = w.fetchPage(ctx, src, task, page)
		}

		d := decide(task, page, res, src.ContinueOnFetchError)
		switch {
		case d.failed:
			result.FailedPages = append(result.FailedPages, res.url)
		case d.skip:
			result.PagesSkipped++
		}
		if d.accept {
			result.Records = append(result.Records, res.records...)
			result.PagesCompleted++
		}
		progress.PageDone(task, page, pageOutcome(d, res), len(res.records))
		logger.Debug("page processed",
			slog.Int("page", page),
			slog.Int("records", len(res.records)),
			slog.String("outcome", pageOutcome(d, res)),
		)

		if d.stop != "" {
			result.StopReason = d.stop
			break
		}
	}

	logger.Info("category finished",
		slog.Int("records", len(result.Records)),
		slog.Int("pages", result.PagesCompleted),
		slog.Int("failed", len(result.FailedPages)),
		slog.String("reason", string(result.StopReason)),
	)
	return result
}

func pageOutcome(d decision, res pageResult) string {
	switch {
	case res.err != nil:
		return OutcomeFailed
	case d.skip:
		return OutcomeBlocked
	case d.accept:
		return OutcomeAccepted
	}
	return OutcomeEmpty
}

func (w *Walker) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return w.Stop != nil && w.Stop.StopRequested()
}

// fetchPage runs fetch, challenge gating and extraction for one page.
func (w *Walker) fetchPage(ctx context.Context, src Source, task models.CategoryTask, page int) pageResult {
	res := pageResult{url: src.PageURL(task, page)}

	if w.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.FetchTimeout+w.ChallengeTimeout+w.Detector.Settle)
		defer cancel()
	}

	p, err := w.Fetcher.Fetch(ctx, res.url)
	if err != nil {
		res.err = err
		return res
	}
	defer p.Close()

	gate := w.Detector.AwaitContent(ctx, p, w.ChallengeTimeout)
	if gate.Blocked {
		slog.Warn("blocked page skipped", slog.String("url", res.url))
		res.blocked = true
		return res
	}

	body := gate.HTML
	if body == "" {
		if body, err = p.HTML(ctx); err != nil {
			res.err = fmt.Errorf("read %s: %w", res.url, err)
			return res
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		res.err = fmt.Errorf("parse %s: %w", res.url, err)
		return res
	}
	res.doc = doc
	res.records = slices.Collect(src.Ruleset.Extract(doc, task, page))
	return res
}
