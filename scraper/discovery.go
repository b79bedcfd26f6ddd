package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
	"github.com/aluiziolira/catalog-harvester/parser"
)

// ResolveTasks builds the category list for a run: categories discovered
// from the shop menu, then the static shop list, then one task per FarmID.
// Duplicate locators keep their first occurrence.
func ResolveTasks(ctx context.Context, cfg *config.Config, fetcher Fetcher, detector *Detector) ([]models.CategoryTask, error) {
	var tasks []models.CategoryTask

	if cfg.DiscoverShopCategories {
		discovered, err := DiscoverShopTasks(ctx, cfg, fetcher, detector)
		if err != nil {
			slog.Warn("category discovery failed, using static list", slog.Any("error", err))
		} else {
			slog.Info("categories discovered", slog.Int("count", len(discovered)))
			tasks = append(tasks, discovered...)
		}
	}

	static, err := config.LoadCategoryTasks(cfg.ShopCategoriesFile, cfg.ShopBaseURL)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, static...)

	farm, err := config.LoadFarmCategories(cfg.FarmCategoriesFile, cfg.FarmMaxPages)
	if err != nil {
		return nil, err
	}
	if len(farm) == 0 {
		slog.Info("no FarmID categories configured, skipping secondary source")
	}
	tasks = append(tasks, farm...)

	tasks = dedupeTasks(tasks)
	if len(tasks) == 0 {
		return nil, ErrNoCategories
	}
	return tasks, nil
}

// DiscoverShopTasks reads medication categories from the shop home menu.
func DiscoverShopTasks(ctx context.Context, cfg *config.Config, fetcher Fetcher, detector *Detector) ([]models.CategoryTask, error) {
	base, err := url.Parse(cfg.ShopBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse shop base url: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.Timeout+cfg.ChallengeTimeout+cfg.ChallengeSettle)
	defer cancel()

	page, err := fetcher.Fetch(fetchCtx, cfg.ShopBaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch menu: %w", err)
	}
	defer page.Close()

	gate := detector.AwaitContent(fetchCtx, page, cfg.ChallengeTimeout)
	if gate.Blocked {
		return nil, fmt.Errorf("menu page blocked")
	}
	body := gate.HTML
	if body == "" {
		if body, err = page.HTML(fetchCtx); err != nil {
			return nil, fmt.Errorf("read menu: %w", err)
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse menu: %w", err)
	}

	links := parser.DiscoverCategoryLinks(doc, base, parser.ShopMenuRules())
	tasks := make([]models.CategoryTask, 0, len(links))
	for _, link := range links {
		tasks = append(tasks, models.CategoryTask{
			SourceID:  models.SiteA,
			Locator:   link,
			StartPage: 1,
			EndPage:   cfg.DiscoveredEndPage,
			PageSize:  cfg.DiscoveredPageSize,
		})
	}
	return tasks, nil
}

func dedupeTasks(tasks []models.CategoryTask) []models.CategoryTask {
	type key struct {
		source  models.SourceID
		locator string
	}
	seen := make(map[key]struct{}, len(tasks))
	out := make([]models.CategoryTask, 0, len(tasks))
	for _, task := range tasks {
		k := key{task.SourceID, task.Locator}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, task)
	}
	return out
}
