package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up the v1 API structure
// Groups: /api/v1/core, /api/v1/comparisons, /api/v1/realtime
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	// Core endpoints - workers and stored readings
	core := v1.Group("/core")
	{
		core.GET("/workers", s.handleV1ListWorkers)
		core.GET("/workers/:id", s.handleV1GetWorker)
		core.PUT("/workers/:id", s.handleV1PutWorker)
		core.GET("/readings", s.handleV1ListReadings)
		core.POST("/readings", s.handleV1IngestReadings)
	}

	// Comparison endpoints - per-worker averages and pie shares
	v1.GET("/comparisons", s.handleV1Comparison)
	v1.GET("/comparisons/metrics", s.handleV1ComparisonMetrics)

	// Realtime endpoints - latest data
	realtime := v1.Group("/realtime")
	{
		realtime.GET("/now", s.handleV1RealtimeNow)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
