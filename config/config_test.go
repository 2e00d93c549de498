package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FILEALCHEMY_API_URL", "")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("API_REQUEST_TIMEOUT", "")

	cfg := Load()
	if cfg.APIURL != "http://localhost:5000/api" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.DatabaseURL != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("optional sinks should be disabled: %q %v", cfg.DatabaseURL, cfg.KafkaBrokers)
	}
}

func TestLoad_PrefixAndOverrides(t *testing.T) {
	t.Setenv("REDIS_PREFIX", "fa_")
	t.Setenv("FORCE_MOCK", "yes")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "p@ss word")

	cfg := Load()
	if cfg.PendingQueue != "fa_conversion:pending" || cfg.StatusKeyPrefix != "fa_conversion:status:" {
		t.Fatalf("prefix not applied: %q %q", cfg.PendingQueue, cfg.StatusKeyPrefix)
	}
	if !cfg.ForceMock {
		t.Fatal("FORCE_MOCK not parsed")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "host=db ") || !strings.Contains(cfg.DatabaseURL, "password=p@ss word") {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}
