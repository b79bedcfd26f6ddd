// Package api exposes the run lifecycle over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/catalog-harvester/api/handler"
	"github.com/aluiziolira/catalog-harvester/api/middleware"
)

// NewRouter creates the gin engine serving the control surface. Runs
// started over HTTP are bound to ctx. gatherer may be nil, in which case
// /metrics is not served.
func NewRouter(ctx context.Context, ctl handler.Controller, gatherer prometheus.Gatherer, startTime time.Time) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	r.GET("/healthz", handler.Health(ctl, startTime))
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/runs", handler.StartRun(ctx, ctl))
	v1.POST("/runs/stop", handler.StopRun(ctl))
	v1.GET("/status", handler.Status(ctl))
	v1.GET("/catalog", handler.Catalog(ctl))
	v1.GET("/catalog/download/:format", handler.Download(ctl))

	return r
}
