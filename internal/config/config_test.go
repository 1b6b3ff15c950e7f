package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RELAY_OWNER_GRACE_PERIOD", "")
	t.Setenv("RELAY_AWARD_POLICY", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()
	if cfg.OwnerGracePeriod != 0 {
		t.Fatalf("expected zero grace period, got %s", cfg.OwnerGracePeriod)
	}
	if cfg.AwardPolicy != "close_on_award" {
		t.Fatalf("expected close_on_award, got %s", cfg.AwardPolicy)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected allow-all origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.CodeAttempts != 10 {
		t.Fatalf("expected 10 code attempts, got %d", cfg.CodeAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_OWNER_GRACE_PERIOD", "45s")
	t.Setenv("WS_WRITE_TIMEOUT", "3")
	t.Setenv("PERSISTENCE_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg := Load()
	if cfg.OwnerGracePeriod != 45*time.Second {
		t.Fatalf("expected 45s, got %s", cfg.OwnerGracePeriod)
	}
	if cfg.WSWriteTimeout != 3*time.Second {
		t.Fatalf("expected integer seconds fallback, got %s", cfg.WSWriteTimeout)
	}
	if cfg.PersistenceEnabled {
		t.Fatalf("expected persistence disabled")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestGetEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("MAX_DB_CONNS", "many")
	if got := getEnvInt("MAX_DB_CONNS", 4); got != 4 {
		t.Fatalf("expected fallback 4, got %d", got)
	}
}
