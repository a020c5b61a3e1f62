package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/history"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

const (
	defaultAPIURL          = "http://localhost:8000"
	defaultReconnectDelay  = 5 * time.Second
	defaultHistoryTimeout  = 10 * time.Second
	defaultCompareInterval = time.Minute
	defaultValueEpsilon    = 0.01
)

// Capacities mirrors history.Capacities for file and env decoding.
type Capacities struct {
	WorkerAlerts   int `mapstructure:"worker_alerts"`
	WorkerTrend    int `mapstructure:"worker_trend"`
	AdminLiveGraph int `mapstructure:"admin_live_graph"`
	AdminAlerts    int `mapstructure:"admin_alerts"`
}

// Config holds runtime configuration for the watcher service.
type Config struct {
	APIURL          string        `mapstructure:"api_url"`
	APIToken        string        `mapstructure:"api_token"`
	Role            string        `mapstructure:"role"`
	WorkerID        string        `mapstructure:"worker_id"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	HistoryLimit    int           `mapstructure:"history_limit"`
	HistoryTimeout  time.Duration `mapstructure:"history_timeout"`
	CompareInterval time.Duration `mapstructure:"compare_interval"`
	CompareMetric   string        `mapstructure:"compare_metric"`
	ValueEpsilon    float64       `mapstructure:"value_epsilon"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	Capacities      Capacities    `mapstructure:"capacities"`
}

func setDefaults(v *viper.Viper) {
	caps := history.DefaultCapacities()
	v.SetDefault("api_url", defaultAPIURL)
	v.SetDefault("api_token", "")
	v.SetDefault("role", string(telemetry.RoleAdmin))
	v.SetDefault("worker_id", "")
	v.SetDefault("reconnect_delay", defaultReconnectDelay)
	v.SetDefault("max_retries", 0)
	v.SetDefault("history_limit", 1000)
	v.SetDefault("history_timeout", defaultHistoryTimeout)
	v.SetDefault("compare_interval", defaultCompareInterval)
	v.SetDefault("compare_metric", string(telemetry.MetricPM25))
	v.SetDefault("value_epsilon", defaultValueEpsilon)
	v.SetDefault("metrics_addr", ":9102")
	v.SetDefault("capacities.worker_alerts", caps.WorkerAlerts)
	v.SetDefault("capacities.worker_trend", caps.WorkerTrend)
	v.SetDefault("capacities.admin_live_graph", caps.AdminLiveGraph)
	v.SetDefault("capacities.admin_alerts", caps.AdminAlerts)
}

// Load reads watcher.yaml from dir when present, then WATCHER_* environment
// variables (optionally from .env), which take precedence.
func Load(dir string) (Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("watcher")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		log.Printf("using config file %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	cfg.WorkerID = strings.TrimSpace(cfg.WorkerID)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if _, err := c.Subscription(); err != nil {
		return err
	}
	if _, err := telemetry.ParseMetric(c.CompareMetric); err != nil {
		return fmt.Errorf("invalid compare_metric: %w", err)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("invalid reconnect_delay: %s", c.ReconnectDelay)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max_retries: %d", c.MaxRetries)
	}
	if c.ValueEpsilon < 0 {
		return fmt.Errorf("invalid value_epsilon: %v", c.ValueEpsilon)
	}
	return nil
}

// Subscription returns the validated role and identity to subscribe with.
func (c Config) Subscription() (telemetry.Subscription, error) {
	role, err := telemetry.ParseRole(c.Role)
	if err != nil {
		return telemetry.Subscription{}, fmt.Errorf("invalid role: %w", err)
	}
	sub := telemetry.Subscription{Role: role, Identity: c.WorkerID}
	if err := sub.Validate(); err != nil {
		return telemetry.Subscription{}, err
	}
	return sub, nil
}

// Metric returns the metric used by periodic comparisons.
func (c Config) Metric() telemetry.Metric {
	return telemetry.Metric(c.CompareMetric)
}

// HistoryCapacities converts the configured buffer sizes.
func (c Config) HistoryCapacities() history.Capacities {
	return history.Capacities{
		WorkerAlerts:   c.Capacities.WorkerAlerts,
		WorkerTrend:    c.Capacities.WorkerTrend,
		AdminLiveGraph: c.Capacities.AdminLiveGraph,
		AdminAlerts:    c.Capacities.AdminAlerts,
	}
}
