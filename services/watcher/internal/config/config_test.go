package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/history"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != defaultAPIURL || cfg.ReconnectDelay != 5*time.Second || cfg.MaxRetries != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.HistoryCapacities() != history.DefaultCapacities() {
		t.Fatalf("capacities = %+v", cfg.HistoryCapacities())
	}
	sub, err := cfg.Subscription()
	if err != nil || sub.Role != telemetry.RoleAdmin {
		t.Fatalf("subscription = %+v, %v", sub, err)
	}
	if cfg.Metric() != telemetry.MetricPM25 {
		t.Fatalf("metric = %q", cfg.Metric())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
api_url: http://api.internal:8000
role: worker
worker_id: w1
reconnect_delay: 2s
capacities:
  worker_alerts: 5
  worker_trend: 12
`)
	if err := os.WriteFile(filepath.Join(dir, "watcher.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WATCHER_MAX_RETRIES", "3")
	t.Setenv("WATCHER_CAPACITIES_WORKER_TREND", "20")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "http://api.internal:8000" || cfg.ReconnectDelay != 2*time.Second || cfg.MaxRetries != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	caps := cfg.HistoryCapacities()
	if caps.WorkerAlerts != 5 || caps.WorkerTrend != 20 || caps.AdminAlerts != 100 {
		t.Fatalf("capacities = %+v", caps)
	}
	sub, err := cfg.Subscription()
	if err != nil || sub != (telemetry.Subscription{Role: telemetry.RoleWorker, Identity: "w1"}) {
		t.Fatalf("subscription = %+v, %v", sub, err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"worker without id": {"WATCHER_ROLE": "worker"},
		"unknown role":      {"WATCHER_ROLE": "visitor"},
		"unknown metric":    {"WATCHER_COMPARE_METRIC": "noise"},
		"negative retries":  {"WATCHER_MAX_RETRIES": "-1"},
		"zero delay":        {"WATCHER_RECONNECT_DELAY": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(t.TempDir()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
