package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("BRIDGE_GUARD_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Auth.SessionTTL != 15*time.Minute {
		t.Fatalf("unexpected session TTL default: %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.MaxRefreshFamilies <= 0 {
		t.Fatalf("expected positive refresh family cap, got %d", cfg.Auth.MaxRefreshFamilies)
	}
	if cfg.Auth.ReplayGrace <= 0 || cfg.Auth.TombstoneTTL <= 0 || cfg.Auth.StaleLock <= 0 {
		t.Fatalf("rotation policy windows must be positive: %+v", cfg.Auth)
	}
	if cfg.Argon2.MemoryKiB == 0 || cfg.Argon2.Time == 0 || cfg.Argon2.Parallelism == 0 {
		t.Fatalf("argon2 params must default to non-zero: %+v", cfg.Argon2)
	}
}
