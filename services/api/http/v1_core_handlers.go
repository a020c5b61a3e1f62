package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/classifier"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/db"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

const maxBatchSize = 500

// handleV1ListWorkers returns all workers
// GET /api/v1/core/workers
func (s *Server) handleV1ListWorkers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": workers,
		"meta": gin.H{
			"count": len(workers),
		},
	})
}

// handleV1GetWorker returns a worker with exposure stats
// GET /api/v1/core/workers/:id?days=7
func (s *Server) handleV1GetWorker(c *gin.Context) {
	workerID := c.Param("id")
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker id is required"})
		return
	}

	days := s.cfg.DefaultDays
	if d := c.Query("days"); d != "" {
		val, err := strconv.Atoi(d)
		if err != nil || val <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = val
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if worker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := s.store.GetWorkerStats(ctx, workerID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"worker":     worker,
			"thresholds": classifier.AdaptiveThresholds(*worker),
			"stats":      stats,
		},
		"meta": gin.H{
			"since": since.Format(time.RFC3339),
			"days":  days,
		},
	})
}

// handleV1PutWorker creates or replaces a worker profile
// PUT /api/v1/core/workers/:id
func (s *Server) handleV1PutWorker(c *gin.Context) {
	var worker telemetry.Worker
	if err := c.ShouldBindJSON(&worker); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	worker.WorkerID = c.Param("id")
	worker.Name = strings.TrimSpace(worker.Name)
	if worker.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if worker.Age != nil && *worker.Age < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "age must not be negative"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.UpsertWorker(ctx, worker); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": worker})
}

// handleV1ListReadings returns paginated readings
// GET /api/v1/core/readings?worker=w1&page=1&limit=50&start=...&end=...
func (s *Server) handleV1ListReadings(c *gin.Context) {
	page := 1
	if p := c.Query("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil && val > 0 {
			page = val
		}
	}

	limit := s.cfg.DefaultLimit
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= maxListLimit {
			limit = val
		}
	}

	q := db.ReadingQuery{
		WorkerID: c.Query("worker"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	if start := c.Query("start"); start != "" {
		t, err := telemetry.ParseTimestamp(start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start time format, expected RFC3339"})
			return
		}
		q.Since = &t
	}
	if end := c.Query("end"); end != "" {
		t, err := telemetry.ParseTimestamp(end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end time format, expected RFC3339"})
			return
		}
		q.Until = &t
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.store.ListReadingsPage(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result.Readings,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total_count": result.TotalCount,
			"total_pages": (result.TotalCount + limit - 1) / limit,
		},
	})
}

type batchRequest struct {
	Readings []telemetry.Reading `json:"readings"`
}

// handleV1IngestReadings stores a batch of readings, then classifies and
// broadcasts each one in order.
// POST /api/v1/core/readings
func (s *Server) handleV1IngestReadings(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(req.Readings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "readings must not be empty"})
		return
	}
	if len(req.Readings) > maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many readings", "max": maxBatchSize})
		return
	}

	now := time.Now().UTC().Truncate(time.Second)
	for i := range req.Readings {
		r := &req.Readings[i]
		r.WorkerID = strings.TrimSpace(r.WorkerID)
		if r.WorkerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required", "index": i})
			return
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	workers := make(map[string]telemetry.Worker)
	for _, r := range req.Readings {
		if _, ok := workers[r.WorkerID]; ok {
			continue
		}
		w, err := s.store.EnsureWorker(ctx, r.WorkerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		workers[r.WorkerID] = w
	}

	if err := s.store.InsertReadings(ctx, req.Readings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	unsafe := 0
	results := make([]gin.H, 0, len(req.Readings))
	for _, r := range req.Readings {
		w := workers[r.WorkerID]
		res := classifier.Classify(w, r)
		s.broadcast(w, r, res)
		if res.Unsafe() {
			unsafe++
		}
		results = append(results, gin.H{
			"user_id":    r.WorkerID,
			"final_risk": res.RiskLevel,
			"fuzzy_risk": res.FuzzyRisk,
			"flags":      res.Flags,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": results,
		"meta": gin.H{
			"count":  len(results),
			"unsafe": unsafe,
		},
	})
}
