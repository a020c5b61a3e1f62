package config

import "testing"

func TestLoad(t *testing.T) {
	t.Run("requires database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		if _, err := Load(); err == nil {
			t.Fatal("expected error without DATABASE_URL")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/shizuku")
		for _, k := range []string{"PORT", "API_PORT", "API_DEFAULT_LIMIT", "API_COMPARISON_LIMIT", "API_DEFAULT_DAYS", "API_AUTO_MIGRATE", "WS_ALLOWED_ORIGIN", "SENSOR_TOKEN"} {
			t.Setenv(k, "")
		}
		cfg, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Port != 8000 || cfg.DefaultLimit != 100 || cfg.ComparisonLimit != 1000 || cfg.DefaultDays != 7 {
			t.Fatalf("unexpected defaults %+v", cfg)
		}
		if !cfg.AutoMigrate || cfg.AllowedOrigin != "*" {
			t.Fatalf("unexpected defaults %+v", cfg)
		}
		if cfg.ListenAddr() != ":8000" {
			t.Fatalf("listen addr = %q", cfg.ListenAddr())
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/shizuku")
		t.Setenv("PORT", "")
		t.Setenv("API_PORT", "9100")
		t.Setenv("API_COMPARISON_LIMIT", "250")
		t.Setenv("API_AUTO_MIGRATE", "false")
		t.Setenv("SENSOR_TOKEN", "s3cret")
		t.Setenv("WS_ALLOWED_ORIGIN", "https://dash.example.com")
		cfg, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Port != 9100 || cfg.ComparisonLimit != 250 || cfg.AutoMigrate {
			t.Fatalf("overrides not applied %+v", cfg)
		}
		if cfg.SensorToken != "s3cret" || cfg.AllowedOrigin != "https://dash.example.com" {
			t.Fatalf("overrides not applied %+v", cfg)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/shizuku")
		for k, v := range map[string]string{
			"PORT":                 "http",
			"API_DEFAULT_LIMIT":    "-1",
			"API_COMPARISON_LIMIT": "lots",
			"API_AUTO_MIGRATE":     "maybe",
		} {
			t.Run(k, func(t *testing.T) {
				t.Setenv(k, v)
				if _, err := Load(); err == nil {
					t.Fatalf("expected error for %s=%s", k, v)
				}
			})
		}
	})
}
