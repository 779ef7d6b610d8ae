package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultsKeepLegacyBehaviour(t *testing.T) {
	t.Setenv("STOCK_POLICY", "")
	t.Setenv("MISSING_RATE_POLICY", "")
	t.Setenv("SEQUENCE_RESET_YEARLY", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PUBLISH_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.StockPolicy != "allow_negative" {
		t.Fatalf("expected allow_negative stock policy, got %q", cfg.StockPolicy)
	}
	if cfg.MissingRatePolicy != "error" {
		t.Fatalf("expected error missing-rate policy, got %q", cfg.MissingRatePolicy)
	}
	if cfg.SequenceResetYearly {
		t.Fatalf("expected global sequence counters by default")
	}
	if cfg.PublishTimeoutSeconds != 5 {
		t.Fatalf("expected 5s publish timeout, got %d", cfg.PublishTimeoutSeconds)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadParsesListsAndNumbers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RATE_CACHE_TTL_SECONDS", "-4")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SEQUENCE_RESET_YEARLY", "true")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RateCacheTTLSeconds != 60 {
		t.Fatalf("expected fallback ttl 60, got %d", cfg.RateCacheTTLSeconds)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("expected redis db 3, got %d", cfg.RedisDB)
	}
	if !cfg.SequenceResetYearly {
		t.Fatalf("expected yearly reset to be enabled")
	}
}
