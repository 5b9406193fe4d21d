package config

import (
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Setenv("JWT_USER_SECRET", "user-secret")
	t.Setenv("JWT_DRIVER_SECRET", "driver-secret")
	t.Setenv("JWT_ADMIN_SECRET", "admin-secret")
}

func TestLoadDefaults(t *testing.T) {
	setSecrets(t)
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("BIDDING_LOCK_HOURS", "")
	t.Setenv("BID_CEILING_PERCENT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("store driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Bidding.LockWindow != 24*time.Hour {
		t.Errorf("lock window = %v, want 24h", cfg.Bidding.LockWindow)
	}
	if cfg.Bidding.CeilingPercent != 115 {
		t.Errorf("ceiling = %v, want 115", cfg.Bidding.CeilingPercent)
	}
}

func TestLoadRejectsSharedSecrets(t *testing.T) {
	setSecrets(t)
	t.Setenv("JWT_DRIVER_SECRET", "user-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for shared secrets")
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	setSecrets(t)
	t.Setenv("STORE_DRIVER", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("splitList = %v", got)
	}
}
