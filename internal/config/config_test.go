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
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.SameDayLeadTime != 2*time.Hour {
		t.Errorf("expected default lead time 2h, got %s", cfg.SameDayLeadTime)
	}
	if cfg.SlotDebounce != 120*time.Millisecond {
		t.Errorf("expected default debounce 120ms, got %s", cfg.SlotDebounce)
	}
	if cfg.AutoConfirmWindow != 24*time.Hour {
		t.Errorf("expected default auto-confirm window 24h, got %s", cfg.AutoConfirmWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SAME_DAY_LEAD_TIME", "90m")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.clinic.test, https://app.clinic.test")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port override 9090, got %s", cfg.Port)
	}
	if cfg.SameDayLeadTime != 90*time.Minute {
		t.Errorf("expected lead time 90m, got %s", cfg.SameDayLeadTime)
	}
	if !cfg.RedisTLS {
		t.Error("expected REDIS_TLS=true to enable TLS")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://app.clinic.test" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("BLOCK_CACHE_TTL", "not-a-duration")

	cfg := Load()
	if cfg.BlockCacheTTL != 10*time.Minute {
		t.Errorf("expected fallback TTL 10m, got %s", cfg.BlockCacheTTL)
	}
}
