package config

import (
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Server.Port = 99999
	cfg.Scanner.MaxPages = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "port must be 1-65535", "max_pages"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateLiveNeedsKey(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.AllowLiveExecution = true

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "private_key or encrypted_key_path") {
		t.Fatalf("expected wallet error, got %v", err)
	}

	cfg.Wallet.PrivateKey = "0xabc123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with key set: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DUTCHBOT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("DUTCHBOT_ENGINE_ALLOW_LIVE_EXECUTION", "true")
	t.Setenv("DUTCHBOT_ENGINE_SCAN_INTERVAL", "10s")
	t.Setenv("DUTCHBOT_SCANNER_TITLE_PATTERNS", "eth up or down, sol up or down")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if !cfg.Engine.AllowLiveExecution {
		t.Error("allow_live_execution not overridden")
	}
	if cfg.Engine.ScanInterval.Seconds() != 10 {
		t.Errorf("scan interval = %v", cfg.Engine.ScanInterval.Duration)
	}
	if len(cfg.Scanner.TitlePatterns) != 2 || cfg.Scanner.TitlePatterns[1] != "sol up or down" {
		t.Errorf("title patterns = %v", cfg.Scanner.TitlePatterns)
	}
}

func TestEnvOverrideIgnoresEmptyAndInvalid(t *testing.T) {
	t.Setenv("DUTCHBOT_SUPABASE_PORT", "not-a-number")
	t.Setenv("DUTCHBOT_REDIS_ADDR", "")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Supabase.Port != 5432 {
		t.Errorf("invalid int should keep default, got %d", cfg.Supabase.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("empty env should keep default, got %q", cfg.Redis.Addr)
	}
}
