package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "PENDING_CLAIM_TTL", "SCHEDULER_TIMEZONE", "JWT_EXPIRES_IN", "LEDGER_FILE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.DBDriver)
	}
	if cfg.PendingClaimTTL != 10*time.Minute {
		t.Errorf("expected 10m claim ttl, got %s", cfg.PendingClaimTTL)
	}
	if cfg.JWTExpirationDur != 24*time.Hour {
		t.Errorf("expected 24h jwt expiry, got %s", cfg.JWTExpirationDur)
	}
	if cfg.SchedulerLocation != time.UTC {
		t.Errorf("expected UTC scheduler location, got %s", cfg.SchedulerLocation)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("PENDING_CLAIM_TTL", "90s")
	t.Setenv("SCHEDULER_TIMEZONE", "Asia/Shanghai")
	t.Setenv("LEDGER_FILE", "/tmp/main.beancount")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DBDriver)
	}
	if cfg.PendingClaimTTL != 90*time.Second {
		t.Errorf("expected 90s, got %s", cfg.PendingClaimTTL)
	}
	if cfg.SchedulerLocation.String() != "Asia/Shanghai" {
		t.Errorf("expected Asia/Shanghai, got %s", cfg.SchedulerLocation)
	}
	if cfg.LedgerFile != "/tmp/main.beancount" {
		t.Errorf("unexpected ledger file %s", cfg.LedgerFile)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("bad_driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		if _, err := Load(); err == nil {
			t.Error("expected error for unsupported driver")
		}
	})

	t.Run("bad_timezone", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "")
		t.Setenv("SCHEDULER_TIMEZONE", "Mars/Olympus")
		if _, err := Load(); err == nil {
			t.Error("expected error for unknown timezone")
		}
	})

	t.Run("bad_duration_falls_back", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "")
		t.Setenv("SCHEDULER_TIMEZONE", "")
		t.Setenv("PENDING_CLAIM_TTL", "soon")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.PendingClaimTTL != 10*time.Minute {
			t.Errorf("expected fallback to 10m, got %s", cfg.PendingClaimTTL)
		}
	})
}
