package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr == "" || cfg.PostgresDSN == "" || cfg.RedisAddr == "" {
		t.Fatalf("missing defaults: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) == 0 {
		t.Fatal("no default kafka brokers")
	}
	if cfg.ApplyMaxAttempts <= 0 || cfg.PublishMaxAttempts <= 0 {
		t.Fatalf("retry budgets must be positive: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("CONSUMER_WORKERS", "3")
	t.Setenv("OUTBOX_INTERVAL", "1s")
	t.Setenv("APPLY_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "a:9092" || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.ConsumerWorkers != 3 {
		t.Fatalf("workers = %d", cfg.ConsumerWorkers)
	}
	if cfg.OutboxInterval != time.Second {
		t.Fatalf("outbox interval = %v", cfg.OutboxInterval)
	}
	// Bad values fall back to defaults.
	if cfg.ApplyMaxAttempts != 5 {
		t.Fatalf("apply max attempts = %d, want default 5", cfg.ApplyMaxAttempts)
	}
}
