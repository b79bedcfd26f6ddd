package scraper

import (
	"strconv"
	"strings"

	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
	"github.com/aluiziolira/catalog-harvester/parser"
)

// Source describes how one site is paginated and parsed.
//
// Templates use the placeholders {locator}, {page} and {size}.
// FirstPageTemplate, when set, is used for page 1.
type Source struct {
	ID                models.SourceID
	Ruleset           *parser.Ruleset
	FirstPageTemplate string
	PageTemplate      string

	// DiscoverPages reads the page count from the first page's pagination
	// controls before iterating; the task's end page remains an upper bound.
	DiscoverPages bool
	// ContinueOnFetchError keeps walking after a failed page once the page
	// count is known.
	ContinueOnFetchError bool
}

// PageURL renders the listing URL of page for task.
func (s Source) PageURL(task models.CategoryTask, page int) string {
	tmpl := s.PageTemplate
	if page == 1 && s.FirstPageTemplate != "" {
		tmpl = s.FirstPageTemplate
	}
	return strings.NewReplacer(
		"{locator}", task.Locator,
		"{page}", strconv.Itoa(page),
		"{size}", strconv.Itoa(task.PageSize),
	).Replace(tmpl)
}

// ShopSource is the tile-grid shop with predeclared page budgets.
func ShopSource(cfg *config.Config) Source {
	return Source{
		ID:           models.SiteA,
		Ruleset:      builtinRuleset(models.SiteA),
		PageTemplate: cfg.ShopPageTemplate,
	}
}

// FarmSource is the FarmID listing whose page count is read from page 1.
func FarmSource(cfg *config.Config) Source {
	return Source{
		ID:                   models.SiteB,
		Ruleset:              builtinRuleset(models.SiteB),
		FirstPageTemplate:    cfg.FarmFirstPageTemplate,
		PageTemplate:         cfg.FarmPageTemplate,
		DiscoverPages:        true,
		ContinueOnFetchError: true,
	}
}

func builtinRuleset(id models.SourceID) *parser.Ruleset {
	rs, ok := parser.RulesetFor(id)
	if !ok {
		panic("scraper: no ruleset for source " + string(id))
	}
	return rs
}

// SourcesFromConfig returns every known source keyed by id.
func SourcesFromConfig(cfg *config.Config) map[models.SourceID]Source {
	shop, farm := ShopSource(cfg), FarmSource(cfg)
	return map[models.SourceID]Source{
		shop.ID: shop,
		farm.ID: farm,
	}
}
