package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/catalog-harvester/scraper"
)

const defaultCatalogLimit = 100

// Catalog returns a handler for GET /api/v1/catalog.
func Catalog(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultCatalogLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		records, total, err := ctl.Catalog(limit)
		if err != nil {
			slog.Error("load catalog", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		if total == 0 {
			c.JSON(http.StatusNotFound, CatalogResponse{
				Products: records,
				Message:  "No data available. Please run the scraper first.",
			})
			return
		}

		c.JSON(http.StatusOK, CatalogResponse{
			Success:  true,
			Count:    total,
			Products: records,
			Message:  fmt.Sprintf("Showing first %d of %d products", len(records), total),
		})
	}
}

// Download returns a handler for GET /api/v1/catalog/download/:format.
func Download(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := strings.ToLower(c.Param("format"))
		if format == "excel" {
			format = "xlsx"
		}

		path, err := ctl.ExportPath(format)
		if err != nil {
			if errors.Is(err, scraper.ErrExportNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "File not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.FileAttachment(path, filepath.Base(path))
	}
}
