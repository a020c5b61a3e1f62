package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/classifier"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// devicePayload is the body posted by a sensor node. pm is PM2.5.
type devicePayload struct {
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	VOC         *float64 `json:"voc"`
	CO          *float64 `json:"co"`
	PM1         *float64 `json:"pm1"`
	PM          *float64 `json:"pm"`
	PM10        *float64 `json:"pm10"`
	Timestamp   string   `json:"timestamp"`
}

// missing returns the first required key absent from the payload.
func (p devicePayload) missing() string {
	required := []struct {
		key string
		val *float64
	}{
		{"temperature", p.Temperature},
		{"humidity", p.Humidity},
		{"voc", p.VOC},
		{"co", p.CO},
		{"pm1", p.PM1},
		{"pm", p.PM},
		{"pm10", p.PM10},
	}
	for _, r := range required {
		if r.val == nil {
			return r.key
		}
	}
	return ""
}

func (p devicePayload) reading(workerID string, ts time.Time) telemetry.Reading {
	return telemetry.Reading{
		WorkerID:    workerID,
		Timestamp:   ts,
		Temperature: *p.Temperature,
		Humidity:    *p.Humidity,
		CO:          *p.CO,
		VOC:         *p.VOC,
		PM1:         *p.PM1,
		PM25:        *p.PM,
		PM10:        *p.PM10,
	}
}

func (s *Server) handleSubmitData(c *gin.Context) {
	if s.cfg.SensorToken != "" && c.GetHeader("X-SENSOR-TOKEN") != s.cfg.SensorToken {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "Unauthorized"})
		return
	}

	var payload devicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	payload.DeviceID = strings.TrimSpace(payload.DeviceID)
	if payload.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Device ID missing"})
		return
	}
	if key := payload.missing(); key != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing key: " + key})
		return
	}

	ts := time.Now().UTC().Truncate(time.Second)
	if payload.Timestamp != "" {
		parsed, err := telemetry.ParseTimestamp(payload.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
			return
		}
		ts = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	workerID, err := s.resolveWorker(ctx, payload.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	reading := payload.reading(workerID, ts)
	result, err := s.ingest(ctx, reading)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"user_id":             workerID,
		"final_risk":          result.RiskLevel,
		"fuzzy_risk":          result.FuzzyRisk,
		"flags":               result.Flags,
		"thresholds":          result.Thresholds,
		"personalized_advice": result.Advice,
		"message":             result.Alert,
	})
}

// ingest stores, classifies and broadcasts one reading.
func (s *Server) ingest(ctx context.Context, r telemetry.Reading) (classifier.Result, error) {
	worker, err := s.store.EnsureWorker(ctx, r.WorkerID)
	if err != nil {
		return classifier.Result{}, fmt.Errorf("load worker %s: %w", r.WorkerID, err)
	}
	if err := s.store.InsertReading(ctx, r); err != nil {
		return classifier.Result{}, fmt.Errorf("store reading: %w", err)
	}

	result := classifier.Classify(worker, r)
	s.broadcast(worker, r, result)
	return result, nil
}

func (s *Server) broadcast(worker telemetry.Worker, r telemetry.Reading, result classifier.Result) {
	s.ingested.WithLabelValues(string(result.RiskLevel)).Inc()
	if result.Unsafe() {
		log.Printf("unsafe reading for %s: %s", r.WorkerID, strings.Join(result.Flags, ", "))
	}

	ev := result.Event(worker, r)
	if err := s.hub.Publish(ev, telemetry.RoleWorker, telemetry.RoleAdmin); err != nil {
		log.Printf("broadcast failed for %s: %v", r.WorkerID, err)
	}
}
