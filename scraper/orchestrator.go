package scraper

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/catalog-harvester/models"
	"github.com/aluiziolira/catalog-harvester/status"
)

// RecordSink receives the records of each category as soon as its walk
// finishes.
type RecordSink interface {
	Process(records ...*models.ProductRecord) error
}

// Orchestrator runs one sequential pipeline per source, with up to
// Concurrency pipelines in flight. It is the only writer of the tracker
// while a crawl is in progress.
type Orchestrator struct {
	Walker           *Walker
	Tracker          *status.Tracker
	Metrics          *Metrics
	Concurrency      int
	CategoryCooldown time.Duration
	// Sink is optional. Sink failures are logged and do not stop the crawl.
	Sink RecordSink
}

// Run walks every task and joins all source pipelines. Records collected
// before a stop request are kept.
func (o *Orchestrator) Run(ctx context.Context, tasks []models.CategoryTask) models.RunResult {
	result := models.RunResult{
		PerSource: make(map[models.SourceID]models.SourceSummary),
		StartTime: time.Now(),
	}

	order, groups := groupBySource(tasks)
	totals := make(map[models.SourceID]int, len(order))
	for _, src := range order {
		totals[src] = len(groups[src])
	}
	o.Tracker.Plan(totals)

	walks := make([][]WalkResult, len(order))
	var g errgroup.Group
	g.SetLimit(max(o.Concurrency, 1))
	for i, src := range order {
		g.Go(func() error {
			walks[i] = o.runSource(ctx, src, groups[src])
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range order {
		summary := models.SourceSummary{Categories: len(groups[src])}
		for _, w := range walks[i] {
			result.Records = append(result.Records, w.Records...)
			result.Categories = append(result.Categories, w.Summary())
			summary.CategoriesDone++
			summary.PagesCompleted += w.PagesCompleted
			summary.FailedPages += len(w.FailedPages)
			summary.Records += len(w.Records)
		}
		result.PerSource[src] = summary
	}
	result.EndTime = time.Now()
	result.Stopped = o.Tracker.StopRequested() || ctx.Err() != nil
	return result
}

func (o *Orchestrator) runSource(ctx context.Context, src models.SourceID, tasks []models.CategoryTask) []WalkResult {
	logger := slog.With(slog.String("source", string(src)))
	logger.Info("source pipeline started", slog.Int("categories", len(tasks)))

	out := make([]WalkResult, 0, len(tasks))
	progress := &reporter{tracker: o.Tracker, metrics: o.Metrics}
	for i, task := range tasks {
		if i > 0 && !sleepCtx(ctx, o.CategoryCooldown) {
			break
		}
		if o.Tracker.StopRequested() || ctx.Err() != nil {
			logger.Info("stop requested, halting category walks")
			break
		}

		logger.Info("category started",
			slog.Int("index", i+1),
			slog.Int("of", len(tasks)),
			slog.String("category", task.DisplayName()),
		)
		o.Tracker.CategoryStarted(src, task.DisplayName())
		walk := o.Walker.Walk(ctx, task, progress)
		out = append(out, walk)
		o.Tracker.CategoryDone(src)
		o.emit(logger, walk.Records)
	}

	var records int
	for _, w := range out {
		records += len(w.Records)
	}
	logger.Info("source pipeline finished",
		slog.Int("categories", len(out)),
		slog.Int("records", records),
	)
	return out
}

func (o *Orchestrator) emit(logger *slog.Logger, records []models.ProductRecord) {
	if o.Sink == nil || len(records) == 0 {
		return
	}
	batch := make([]*models.ProductRecord, len(records))
	for i := range records {
		batch[i] = &records[i]
	}
	if err := o.Sink.Process(batch...); err != nil {
		logger.Warn("record sink rejected category records", slog.Any("error", err))
	}
}

// groupBySource splits tasks per source, keeping first-seen source order and
// task order within each source.
func groupBySource(tasks []models.CategoryTask) ([]models.SourceID, map[models.SourceID][]models.CategoryTask) {
	var order []models.SourceID
	groups := make(map[models.SourceID][]models.CategoryTask)
	for _, task := range tasks {
		if _, ok := groups[task.SourceID]; !ok {
			order = append(order, task.SourceID)
		}
		groups[task.SourceID] = append(groups[task.SourceID], task)
	}
	return order, groups
}

// reporter forwards walker progress to the tracker and metrics.
type reporter struct {
	tracker *status.Tracker
	metrics *Metrics
}

func (r *reporter) PageStarted(task models.CategoryTask, page, pagesTotal int) {
	r.tracker.PageStarted(task.SourceID, task.DisplayName(), page, pagesTotal)
}

func (r *reporter) PageDone(task models.CategoryTask, page int, outcome string, records int) {
	r.metrics.IncPage(task.SourceID, outcome)
	if outcome != OutcomeAccepted {
		return
	}
	r.tracker.AddRecords(task.SourceID, records)
	r.metrics.AddRecords(task.SourceID, records)
}
