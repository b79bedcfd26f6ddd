package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/catalog-harvester/status"
)

// StartRun returns a handler for POST /api/v1/runs. The run is bound to
// ctx rather than the request, so it outlives the reply.
func StartRun(ctx context.Context, ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := ctl.Start(ctx)
		snap := ctl.Status()
		switch {
		case errors.Is(err, status.ErrRunInProgress):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:  "Scraping is already in progress",
				Status: &snap,
			})
			return
		case err != nil:
			slog.Error("start run", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, RunResponse{
			Message: "Scraping started",
			Status:  snap,
		})
	}
}

// StopRun returns a handler for POST /api/v1/runs/stop.
func StopRun(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ctl.RequestStop(); err != nil {
			if errors.Is(err, status.ErrNoRun) {
				c.JSON(http.StatusConflict, ErrorResponse{Error: "No scraping run in progress"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, RunResponse{
			Message: "Stop requested, finishing the current page",
			Status:  ctl.Status(),
		})
	}
}

// Status returns a handler for GET /api/v1/status.
func Status(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Status())
	}
}
