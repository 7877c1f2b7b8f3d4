package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/popharvest/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports fetch slot utilisation (jobs and synchronous requests) and
// degrades status when every slot is busy.
func Health(jobs *JobStore, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		running, capacity := jobs.Running(), jobs.Capacity()

		status := "healthy"
		if capacity > 0 && running >= capacity {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      status,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			RunningJobs: running,
			MaxJobs:     capacity,
			Version:     "0.1.0",
		})
	}
}
