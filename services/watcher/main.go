package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/aggregate"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/channel"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/router"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/watcher/internal/config"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/watcher/internal/console"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("watcher failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	sub, err := cfg.Subscription()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := channel.NewPrometheusMetrics(reg)

	out := console.New(log.Default(), cfg.ValueEpsilon)
	session, err := router.NewSession(sub, cfg.HistoryCapacities(),
		router.WithNotifier(out),
		router.WithDropHook(func(telemetry.RiskEvent) {
			metrics.EventDropped(sub.Role, channel.DropIrrelevant)
		}),
	)
	if err != nil {
		return err
	}
	out.Attach(session)

	dialer := &channel.WebSocketDialer{BaseURL: cfg.APIURL}
	if cfg.APIToken != "" {
		dialer.Header = http.Header{"Authorization": []string{"Bearer " + cfg.APIToken}}
	}
	mgr := channel.NewManager(dialer,
		channel.WithReconnectDelay(cfg.ReconnectDelay),
		channel.WithMaxRetries(cfg.MaxRetries),
		channel.WithMetrics(metrics),
		channel.WithStatusHandler(out.Status),
	)

	go serveMetrics(ctx, cfg.MetricsAddr, reg)

	handle, err := openWithRetry(ctx, mgr, sub, out.HandleEvent, cfg.ReconnectDelay, cfg.MaxRetries)
	if err != nil {
		return err
	}
	defer handle.Close()
	log.Printf("watching %s via %s (handle=%s)", sub, cfg.APIURL, handle.ID())

	if sub.Role == telemetry.RoleAdmin && cfg.CompareInterval > 0 {
		src := aggregate.NewHTTPSource(cfg.APIURL, cfg.HistoryLimit, cfg.HistoryTimeout)
		src.Token = cfg.APIToken
		engine := &aggregate.Engine{Source: src, Timeout: cfg.HistoryTimeout}
		go compareLoop(ctx, engine, cfg.Metric(), cfg.CompareInterval, out.Comparison)
	}

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case <-handle.Done():
		if ctx.Err() == nil {
			return errors.New("subscription closed after exhausting reconnect attempts")
		}
	}

	alerts := session.Alerts()
	log.Printf("session ended with %d buffered alerts, %d trend points", len(alerts), len(session.Trend()))
	return nil
}

// openWithRetry keeps dialing until the first connection succeeds. maxRetries
// of zero retries until ctx ends.
func openWithRetry(ctx context.Context, mgr *channel.Manager, sub telemetry.Subscription, fn channel.EventFunc, delay time.Duration, maxRetries int) (*channel.Handle, error) {
	for attempt := 1; ; attempt++ {
		handle, err := mgr.Open(ctx, sub, fn)
		if err == nil {
			return handle, nil
		}

		var connErr *channel.ConnectionError
		if !errors.As(err, &connErr) {
			return nil, err
		}
		if maxRetries > 0 && attempt > maxRetries {
			return nil, err
		}
		log.Printf("open %s failed (attempt %d): %v; retrying in %s", sub, attempt, connErr.Err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func compareLoop(ctx context.Context, engine *aggregate.Engine, metric telemetry.Metric, every time.Duration, report func(aggregate.Comparison)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		report(engine.Compare(ctx, aggregate.AllWorkers, metric))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server error: %v", err)
	}
}
