package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `server:
  port: "9090"
  url: ws://localhost:9090/ws
client:
  repeatGuard: 250ms
  statsTopK: 3
consensus:
  enabled: true
  threshold: 75
  allowChat: true
redis:
  addr: localhost:6379
  ttl: 2m
quiz:
  dir: ./quizzes
log:
  env: production
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.URL != "ws://localhost:9090/ws" {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if cfg.RepeatGuard() != 250*time.Millisecond {
		t.Fatalf("expected repeat guard 250ms, got %v", cfg.RepeatGuard())
	}
	if !cfg.Consensus.Enabled || cfg.Consensus.Threshold != 75 || !cfg.Consensus.AllowChat {
		t.Fatalf("unexpected consensus section %+v", cfg.Consensus)
	}
	if TTLDuration(cfg.Redis.TTL, time.Minute) != 2*time.Minute {
		t.Fatalf("expected redis ttl 2m")
	}
	if cfg.Quiz.Dir != "./quizzes" || cfg.Log.Env != "production" {
		t.Fatalf("unexpected quiz/log sections %+v %+v", cfg.Quiz, cfg.Log)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should load defaults: %v", err)
	}
	if cfg.RepeatGuard() != 500*time.Millisecond || cfg.Tick() != time.Second {
		t.Fatalf("unexpected defaults %v %v", cfg.RepeatGuard(), cfg.Tick())
	}
	if cfg.WarningThreshold() != 5*time.Second || cfg.RevealDelay() != 3*time.Second || cfg.Backoff() != 200*time.Millisecond {
		t.Fatalf("unexpected duration defaults")
	}
	if TTLDuration("nonsense", time.Minute) != time.Minute {
		t.Fatalf("expected fallback for unparsable duration")
	}
	if IntOr(0, 5) != 5 || IntOr(3, 5) != 3 {
		t.Fatalf("IntOr mismatch")
	}
}
