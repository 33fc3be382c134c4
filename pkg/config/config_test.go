package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if cfg.AnalyticsAPI.BaseURL != "http://analytics.test/api/v1" {
		t.Fatalf("unexpected base url %q", cfg.AnalyticsAPI.BaseURL)
	}
	if cfg.Query.MaxAttempts != 3 {
		t.Fatalf("expected default 3 attempts, got %d", cfg.Query.MaxAttempts)
	}
	if cfg.Query.BackoffStep != 200*time.Millisecond {
		t.Fatalf("expected default 200ms backoff step, got %v", cfg.Query.BackoffStep)
	}
	if cfg.Query.AttemptTimeout != 0 {
		t.Fatalf("attempt timeout should default to disabled, got %v", cfg.Query.AttemptTimeout)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled without url or address")
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("unexpected default origins %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_ReportsAllInvalidSettings(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvAnalyticsBaseURL, "::not a url")
	t.Setenv(EnvQueryMaxAttempts, "0")
	t.Setenv(EnvQueryBackoffStep, "-1s")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, name := range []string{EnvAnalyticsBaseURL, EnvQueryMaxAttempts, EnvQueryBackoffStep} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in %q", name, err.Error())
		}
	}
}

func TestLoad_RejectsZeroBackoffStep(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvQueryBackoffStep, "0s")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), EnvQueryBackoffStep) {
		t.Fatalf("expected %s validation error, got %v", EnvQueryBackoffStep, err)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvAnalyticsBaseURL, "http://analytics.test/api/v1")
	t.Setenv(EnvRedisURL, "")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}

	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
}

func TestRedisEnabled(t *testing.T) {
	if !(RedisConfig{URL: "redis://localhost:6379/0"}).Enabled() {
		t.Fatal("expected url to enable redis")
	}
	if !(RedisConfig{Address: "localhost:6379"}).Enabled() {
		t.Fatal("expected address to enable redis")
	}
}
