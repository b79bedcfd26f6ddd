package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/catalog-harvester/models"
)

// Category groups used by the summary and the spreadsheet export.
const (
	GroupMedication = "medication"
	GroupCare       = "care-products"
)

// Summarize computes catalog statistics for the finished run.
func Summarize(records []models.ProductRecord, result *models.RunResult, elapsed time.Duration) models.Statistics {
	stats := models.Statistics{
		TotalProducts: len(records),
		PerSource:     make(map[models.SourceID]int),
		Duration:      fmt.Sprintf("%.2f", elapsed.Minutes()),
	}
	for _, r := range records {
		if r.Price != "" {
			stats.WithPrice++
		}
		if r.PriceOriginal != "" && r.PriceOriginal != r.Price {
			stats.WithDiscount++
		}
		if r.IdentityKey != "" {
			stats.WithProductCode++
		}
		if strings.Contains(r.CategoryLabel, GroupMedication) {
			stats.MedicationProducts++
		}
		if strings.Contains(r.CategoryLabel, GroupCare) {
			stats.CareProducts++
		}
		stats.PerSource[r.SourceID]++
	}
	if result != nil {
		stats.PagesScraped = result.PagesCompleted()
		stats.FailedPages = len(result.FailedPages())
	}
	return stats
}
