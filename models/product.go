// Package models defines data structures for the harvester.
package models

import "time"

// SourceID identifies one of the harvested sites.
type SourceID string

const (
	// SiteA is the tile-grid shop with predeclared page budgets.
	SiteA SourceID = "shop.aversi.ge"
	// SiteB is the FarmID-keyed card listing with discovered pagination.
	SiteB SourceID = "aversi.ge"
)

// Sources lists the known sources in pipeline order.
var Sources = []SourceID{SiteB, SiteA}

// ProductRecord is one observation of a listed item.
type ProductRecord struct {
	IdentityKey   string    `csv:"product_code" json:"productCode"`
	Title         string    `csv:"title" json:"title"`
	Price         string    `csv:"price" json:"price"`
	PriceOriginal string    `csv:"price_old" json:"priceOld"`
	CategoryLabel string    `csv:"category" json:"category"`
	PageIndex     string    `csv:"page_num" json:"pageNum"`
	SourceID      SourceID  `csv:"source" json:"source"`
	ObservedAt    time.Time `csv:"observed_at" json:"observedAt,omitzero"`
	// FarmID is the listing id a SiteB record was found under.
	FarmID string `csv:"farm_id" json:"farmID,omitempty"`
}

// CategoryTask is one unit of pagination work. EndPage is a budget: real
// content may end earlier. PageSize of zero disables the short-page signal.
type CategoryTask struct {
	SourceID  SourceID `json:"source"`
	Locator   string   `json:"category"`
	StartPage int      `json:"startPage"`
	EndPage   int      `json:"endPage"`
	PageSize  int      `json:"perpage"`
	Label     string   `json:"label,omitempty"`
}

// DisplayName returns the label, falling back to the locator.
func (t CategoryTask) DisplayName() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Locator
}

// CategorySummary describes how a single category walk ended.
type CategorySummary struct {
	SourceID       SourceID `json:"source"`
	Locator        string   `json:"category"`
	Label          string   `json:"label"`
	PagesCompleted int      `json:"pagesCompleted"`
	PagesSkipped   int      `json:"pagesSkipped"`
	FailedPages    []string `json:"failedPages,omitempty"`
	Records        int      `json:"records"`
	StopReason     string   `json:"stopReason"`
}

// SourceSummary aggregates the category walks of one source pipeline.
type SourceSummary struct {
	Categories     int `json:"categories"`
	CategoriesDone int `json:"categoriesDone"`
	PagesCompleted int `json:"pagesCompleted"`
	FailedPages    int `json:"failedPages"`
	Records        int `json:"records"`
}

// RunResult is the outcome of one orchestrated crawl, before merging.
type RunResult struct {
	Records    []ProductRecord
	PerSource  map[SourceID]SourceSummary
	Categories []CategorySummary
	StartTime  time.Time
	EndTime    time.Time
	Stopped    bool
}

// PagesCompleted sums completed pages across sources.
func (r *RunResult) PagesCompleted() int {
	total := 0
	for _, s := range r.PerSource {
		total += s.PagesCompleted
	}
	return total
}

// FailedPages lists failed page identifiers across all categories.
func (r *RunResult) FailedPages() []string {
	var out []string
	for _, c := range r.Categories {
		out = append(out, c.FailedPages...)
	}
	return out
}

// Statistics summarises a merged catalog after a run.
type Statistics struct {
	TotalProducts      int              `json:"totalProducts"`
	MedicationProducts int              `json:"medicationProducts"`
	CareProducts       int              `json:"careProducts"`
	WithPrice          int              `json:"withPrice"`
	WithDiscount       int              `json:"withDiscount"`
	WithProductCode    int              `json:"withProductCode"`
	PerSource          map[SourceID]int `json:"perSource"`
	PagesScraped       int              `json:"pagesScraped"`
	FailedPages        int              `json:"failedPages"`
	Duration           string           `json:"duration"`
}
