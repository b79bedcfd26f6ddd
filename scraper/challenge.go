package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/catalog-harvester/config"
)

// Verdict is the challenge classification of a document.
type Verdict int

const (
	VerdictClear Verdict = iota
	VerdictChallenged
	VerdictBlocked
)

func (v Verdict) String() string {
	switch v {
	case VerdictChallenged:
		return "challenged"
	case VerdictBlocked:
		return "blocked"
	default:
		return "clear"
	}
}

// ChallengeResult describes how a page fared against the anti-bot layer.
// HTML holds the final document when the detector had to read it.
type ChallengeResult struct {
	Cleared    bool
	Blocked    bool
	Challenged bool
	TimedOut   bool
	Waited     time.Duration
	HTML       string
}

// Detector recognises interstitial challenge pages and hard blocks.
type Detector struct {
	ChallengeTitles []string
	BlockMarkers    []string
	PollInterval    time.Duration
	Settle          time.Duration
	Metrics         *Metrics
}

// NewDetector builds a detector from cfg.
func NewDetector(cfg *config.Config, metrics *Metrics) *Detector {
	return &Detector{
		ChallengeTitles: cfg.ChallengeTitles,
		BlockMarkers:    cfg.BlockMarkers,
		PollInterval:    cfg.ChallengePoll,
		Settle:          cfg.ChallengeSettle,
		Metrics:         metrics,
	}
}

// Classify inspects a title and body without waiting.
func (d *Detector) Classify(title, body string) Verdict {
	for _, marker := range d.BlockMarkers {
		if marker != "" && strings.Contains(body, marker) {
			return VerdictBlocked
		}
	}
	if d.challenged(title) {
		return VerdictChallenged
	}
	return VerdictClear
}

func (d *Detector) challenged(title string) bool {
	for _, marker := range d.ChallengeTitles {
		if marker != "" && strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// AwaitContent waits for a challenge on page to clear, for at most timeout.
// It never fails: on any error it reports the page as cleared so the caller
// moves on and validates the extraction instead.
func (d *Detector) AwaitContent(ctx context.Context, page Page, timeout time.Duration) ChallengeResult {
	start := time.Now()
	result := ChallengeResult{Cleared: true}

	title, err := page.Title(ctx)
	if err != nil {
		slog.Debug("challenge check: read title", slog.String("url", page.URL()), slog.Any("error", err))
		return result
	}

	if d.challenged(title) {
		result.Challenged = true
		d.Metrics.IncChallenge("seen")
		slog.Info("challenge detected, waiting", slog.String("url", page.URL()), slog.Duration("timeout", timeout))

		if isStatic(page) {
			result.TimedOut = true
		} else {
			result.TimedOut = !d.poll(ctx, page, timeout)
		}
		if !result.TimedOut {
			d.Metrics.IncChallenge("cleared")
			if !sleepCtx(ctx, d.Settle) {
				result.Waited = time.Since(start)
				return result
			}
		} else {
			d.Metrics.IncChallenge("timeout")
			slog.Warn("challenge did not clear, proceeding", slog.String("url", page.URL()))
		}
	}

	body, err := page.HTML(ctx)
	if err != nil {
		slog.Debug("challenge check: read body", slog.String("url", page.URL()), slog.Any("error", err))
		result.Waited = time.Since(start)
		return result
	}
	result.HTML = body
	if d.Classify("", body) == VerdictBlocked {
		d.Metrics.IncChallenge("blocked")
		result.Blocked = true
		result.Cleared = false
	}
	result.Waited = time.Since(start)
	return result
}

// poll reports whether the challenge title went away before timeout.
func (d *Detector) poll(ctx context.Context, page Page, timeout time.Duration) bool {
	interval := d.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !sleepCtx(ctx, min(interval, time.Until(deadline))) {
			return false
		}
		title, err := page.Title(ctx)
		if err != nil {
			continue
		}
		if !d.challenged(title) {
			return true
		}
	}
	return false
}

// sleepCtx waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
