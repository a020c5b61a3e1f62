package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/aggregate"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// handleV1Comparison returns per-worker averages and the pie for one metric
// GET /api/v1/comparisons?worker=all&metric=pm25
func (s *Server) handleV1Comparison(c *gin.Context) {
	filter := c.DefaultQuery("worker", aggregate.AllWorkers)

	metric, err := telemetry.ParseMetric(c.DefaultQuery("metric", string(telemetry.MetricPM25)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmp := s.comparisons.Compare(c.Request.Context(), filter, metric)

	c.JSON(http.StatusOK, gin.H{
		"data": cmp,
		"meta": gin.H{
			"workers_count": len(cmp.Workers),
			"empty":         len(cmp.Workers) == 0,
		},
	})
}

// handleV1ComparisonMetrics lists the metrics the comparison views offer
// GET /api/v1/comparisons/metrics
func (s *Server) handleV1ComparisonMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": telemetry.TrackedMetrics})
}
