package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/classifier"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// handleV1RealtimeNow returns the newest reading of every worker with its
// current classification
// GET /api/v1/realtime/now
func (s *Server) handleV1RealtimeNow(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	latest, err := s.store.LatestPerWorker(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(latest) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data available"})
		return
	}

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	byID := make(map[string]telemetry.Worker, len(workers))
	for _, w := range workers {
		byID[w.WorkerID] = w
	}

	unsafe := 0
	entries := make([]gin.H, 0, len(latest))
	for _, r := range latest {
		w, ok := byID[r.WorkerID]
		if !ok {
			w = telemetry.Worker{WorkerID: r.WorkerID, Name: r.WorkerID}
		}
		res := classifier.Classify(w, r)
		if res.Unsafe() {
			unsafe++
		}
		entries = append(entries, gin.H{
			"worker":     w,
			"reading":    r,
			"final_risk": res.RiskLevel,
			"fuzzy_risk": res.FuzzyRisk,
			"flags":      res.Flags,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": entries,
		"meta": gin.H{
			"workers_count":  len(entries),
			"unsafe_count":   unsafe,
			"worker_clients": s.hub.Count(telemetry.RoleWorker),
			"admin_clients":  s.hub.Count(telemetry.RoleAdmin),
			"generated_at":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}
