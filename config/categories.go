package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aluiziolira/catalog-harvester/models"
)

// shopCategory is the on-disk descriptor of a SiteA category. Source is
// optional; entries naming another source are skipped.
type shopCategory struct {
	Source    string `json:"source,omitempty"`
	Category  string `json:"category"`
	StartPage int    `json:"startPage"`
	EndPage   int    `json:"endPage"`
	PerPage   int    `json:"perpage"`
	Label     string `json:"label,omitempty"`
}

var defaultShopCategories = []shopCategory{
	{Category: "medication/მედიკამენტები-სხვადასხვა/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "medication/homeopathic-remedies/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "medication/for-cardiovascular-diseases/", StartPage: 1, EndPage: 40, PerPage: 24},
	{Category: "medication/various-medicinal-products/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/child-care/child-care-hygiene-products/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/oral-care/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/skin-care-products/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "medication/drugs-stimulating-the-production-of-blood-cells/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/deodorant-antiperspirant/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/oral-care/toothpaste/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/oral-care/denture-adhesive/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "medication/care-items-and-products/care-products-and-equipment/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/skin-care-products/skin-care-products-ka-17/", StartPage: 1, EndPage: 12, PerPage: 192},
	{Category: "care-products/skin-care-products/skin-care-products-ka-13/", StartPage: 1, EndPage: 12, PerPage: 192},
}

// DefaultShopCategories returns the built-in SiteA category list rooted at base.
func DefaultShopCategories(base string) []models.CategoryTask {
	tasks, _ := shopTasks(defaultShopCategories, base)
	return tasks
}

// LoadCategoryTasks reads SiteA category descriptors from path. Relative
// locators are resolved against base. An empty path or a missing file
// yields the built-in list.
func LoadCategoryTasks(path, base string) ([]models.CategoryTask, error) {
	if path == "" {
		return DefaultShopCategories(base), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultShopCategories(base), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read categories %q: %w", path, err)
	}

	var entries []shopCategory
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode categories %q: %w", path, err)
	}
	tasks, err := shopTasks(entries, base)
	if err != nil {
		return nil, fmt.Errorf("categories %q: %w", path, err)
	}
	return tasks, nil
}

func shopTasks(entries []shopCategory, base string) ([]models.CategoryTask, error) {
	tasks := make([]models.CategoryTask, 0, len(entries))
	for i, e := range entries {
		if src := strings.TrimSpace(e.Source); src != "" && models.SourceID(src) != models.SiteA {
			slog.Warn("skipping category of another source",
				slog.Int("entry", i),
				slog.String("source", src),
				slog.String("category", e.Category),
			)
			continue
		}
		locator := strings.TrimSpace(e.Category)
		if locator == "" {
			return nil, fmt.Errorf("entry %d: category cannot be empty", i)
		}
		if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
			locator = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(locator, "/")
		}
		start := e.StartPage
		if start <= 0 {
			start = 1
		}
		if e.EndPage < start {
			return nil, fmt.Errorf("entry %d: end page %d before start page %d", i, e.EndPage, start)
		}
		if e.PerPage < 0 {
			return nil, fmt.Errorf("entry %d: perpage cannot be negative", i)
		}
		tasks = append(tasks, models.CategoryTask{
			SourceID:  models.SiteA,
			Locator:   locator,
			StartPage: start,
			EndPage:   e.EndPage,
			PageSize:  e.PerPage,
			Label:     e.Label,
		})
	}
	return tasks, nil
}

// LoadFarmCategories reads a FarmID → display name object from path and
// returns one SiteB task per entry, ordered by numeric FarmID. An empty
// path or a missing file yields no tasks.
func LoadFarmCategories(path string, maxPages int) ([]models.CategoryTask, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read farm categories %q: %w", path, err)
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode farm categories %q: %w", path, err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		if strings.TrimSpace(id) == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})

	tasks := make([]models.CategoryTask, 0, len(ids))
	for _, id := range ids {
		label := strings.TrimSpace(entries[id])
		if label == "" {
			label = id
		}
		tasks = append(tasks, models.CategoryTask{
			SourceID:  models.SiteB,
			Locator:   strings.TrimSpace(id),
			StartPage: 1,
			EndPage:   maxPages,
			Label:     label,
		})
	}
	return tasks, nil
}
