package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/config"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/db"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/api/hub"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/aggregate"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// maxListLimit caps caller-supplied page sizes on the listing endpoints.
const maxListLimit = 1000

// Store is the persistence the API needs; *db.Store implements it.
type Store interface {
	ListWorkers(ctx context.Context) ([]telemetry.Worker, error)
	GetWorker(ctx context.Context, workerID string) (*telemetry.Worker, error)
	UpsertWorker(ctx context.Context, w telemetry.Worker) error
	EnsureWorker(ctx context.Context, workerID string) (telemetry.Worker, error)
	ListReadings(ctx context.Context, limit int) ([]telemetry.Reading, error)
	LatestReading(ctx context.Context) (*telemetry.Reading, error)
	LatestPerWorker(ctx context.Context) ([]telemetry.Reading, error)
	InsertReading(ctx context.Context, r telemetry.Reading) error
	InsertReadings(ctx context.Context, readings []telemetry.Reading) error
	AssignDevice(ctx context.Context, deviceID, workerID string) error
	AssignedWorker(ctx context.Context, deviceID string) (string, bool, error)
	ListReadingsPage(ctx context.Context, q db.ReadingQuery) (*db.ReadingsPage, error)
	GetWorkerStats(ctx context.Context, workerID string, since time.Time) (*db.WorkerStats, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg         config.Config
	store       Store
	hub         *hub.Hub
	engine      *gin.Engine
	upgrader    *websocket.Upgrader
	comparisons *aggregate.Engine
	ingested    *prometheus.CounterVec
}

// New constructs a server with routes and middleware. Metrics are registered
// with reg and served from it on /metrics.
func New(cfg config.Config, store Store, h *hub.Hub, reg *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shizuku",
		Subsystem: "api",
		Name:      "readings_ingested_total",
		Help:      "Readings accepted by the ingestion endpoints, by risk level.",
	}, []string{"risk_level"})
	reg.MustRegister(ingested)

	server := &Server{
		cfg:      cfg,
		store:    store,
		hub:      h,
		engine:   engine,
		upgrader: hub.Upgrader(cfg.AllowedOrigin),
		comparisons: &aggregate.Engine{
			Source:  storeSource{store: store, limit: cfg.ComparisonLimit},
			Timeout: 15 * time.Second,
		},
		ingested: ingested,
	}
	server.registerRoutes(reg)
	server.registerV1Routes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(reg *prometheus.Registry) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// devices authenticate with X-SENSOR-TOKEN, websocket clients by role
	s.engine.POST("/submit_data", s.handleSubmitData)
	s.engine.GET("/ws/:role", s.handleWS)

	api := s.engine.Group("/")
	if s.cfg.BearerToken != "" {
		api.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}
	api.GET("/api/latest", s.handleLatest)
	api.GET("/api/sensor_data", s.handleSensorData)
	api.GET("/api/workers", s.handleListWorkers)
	api.GET("/worker/:worker_id", s.handleGetWorker)
	api.POST("/assign_user", s.handleAssignUser)
	api.GET("/get_assigned_user/:device_id", s.handleGetAssignedUser)
	api.POST("/broadcast", s.handleBroadcast)
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-SENSOR-TOKEN")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleLatest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	latest, err := s.store.LatestReading(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reading": latest})
}

func (s *Server) handleSensorData(c *gin.Context) {
	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxListLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	readings, err := s.store.ListReadings(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(readings),
		"readings": readings,
	})
}

func (s *Server) handleListWorkers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"workers": workers})
}

func (s *Server) handleGetWorker(c *gin.Context) {
	workerID := c.Param("worker_id")
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if worker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, worker)
}

type assignRequest struct {
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id"`
}

func (s *Server) handleAssignUser(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.DeviceID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id and user_id are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.AssignDevice(ctx, req.DeviceID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "assigned", "device_id": req.DeviceID, "assigned_user_id": req.UserID})
}

func (s *Server) handleGetAssignedUser(c *gin.Context) {
	deviceID := c.Param("device_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	workerID, err := s.resolveWorker(ctx, deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "assigned_user_id": workerID})
}

// resolveWorker maps a device to its worker, falling back to the device id.
func (s *Server) resolveWorker(ctx context.Context, deviceID string) (string, error) {
	workerID, ok, err := s.store.AssignedWorker(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if !ok {
		return deviceID, nil
	}
	return workerID, nil
}

func (s *Server) handleWS(c *gin.Context) {
	role, err := telemetry.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.hub.ServeWS(s.upgrader, c.Writer, c.Request, role, c.Query("worker_id")); err != nil {
		// the upgrader already wrote the HTTP error
		c.Abort()
	}
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	target, _ := body["target_role"].(string)
	role, err := telemetry.ParseRole(target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_role"})
		return
	}
	delete(body, "target_role")

	if err := s.hub.PublishRaw(role, body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent", "clients": s.hub.Count(role)})
}

// storeSource feeds the comparison engine straight from the database.
type storeSource struct {
	store Store
	limit int
}

func (s storeSource) Readings(ctx context.Context) ([]telemetry.Reading, error) {
	return s.store.ListReadings(ctx, s.limit)
}

func (s storeSource) Workers(ctx context.Context) ([]telemetry.Worker, error) {
	return s.store.ListWorkers(ctx)
}
