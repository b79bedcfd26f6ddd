// Package handler implements the HTTP handlers of the control surface.
package handler

import (
	"context"

	"github.com/aluiziolira/catalog-harvester/models"
	"github.com/aluiziolira/catalog-harvester/status"
)

// Controller is the run lifecycle the handlers drive. *scraper.Service
// satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	RequestStop() error
	Status() status.Snapshot
	Catalog(limit int) ([]models.ProductRecord, int, error)
	ExportPath(format string) (string, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string           `json:"error"`
	Status *status.Snapshot `json:"status,omitempty"`
}

// RunResponse acknowledges a run or stop request.
type RunResponse struct {
	Message string          `json:"message"`
	Status  status.Snapshot `json:"status"`
}

// CatalogResponse is a preview of the persisted catalog.
type CatalogResponse struct {
	Success  bool                   `json:"success"`
	Count    int                    `json:"count"`
	Products []models.ProductRecord `json:"products"`
	Message  string                 `json:"message"`
}
