package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.AvgServiceTime != 10*time.Minute {
		t.Errorf("expected 10m avg service time, got %s", cfg.AvgServiceTime)
	}
	if cfg.StatsWindow != 24*time.Hour {
		t.Errorf("expected 24h stats window, got %s", cfg.StatsWindow)
	}
	if cfg.PollInterval != 7*time.Second {
		t.Errorf("expected 7s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("expected 30 retention days, got %d", cfg.RetentionDays)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Errorf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("AVG_SERVICE_TIME", "15m")
	t.Setenv("POLL_INTERVAL", "3s")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.AvgServiceTime != 15*time.Minute {
		t.Errorf("expected 15m, got %s", cfg.AvgServiceTime)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.PollInterval)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("expected 7, got %d", cfg.RetentionDays)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("expected 2.5 rps, got %f", cfg.RateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("AVG_SERVICE_TIME", "soon")
	t.Setenv("RETENTION_DAYS", "a month")

	cfg := Load()

	if cfg.AvgServiceTime != 10*time.Minute {
		t.Errorf("expected fallback 10m, got %s", cfg.AvgServiceTime)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("expected fallback 30, got %d", cfg.RetentionDays)
	}
}
