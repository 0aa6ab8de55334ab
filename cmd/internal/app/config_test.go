package app

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" {
		t.Fatalf("addr=%q format=%q", cfg.HTTPAddr, cfg.LogFormat)
	}
	if cfg.DBSchema != "accessgate" || cfg.DBAutoMigrate {
		t.Fatalf("db schema=%q automigrate=%v", cfg.DBSchema, cfg.DBAutoMigrate)
	}
	if cfg.PhoneCountryCode != "82" || cfg.PhoneTrunkPrefix != "0" {
		t.Fatalf("phone plan=%q/%q", cfg.PhoneCountryCode, cfg.PhoneTrunkPrefix)
	}
	if !cfg.MetricsEnabled || cfg.RequireTokenHMAC {
		t.Fatalf("metrics=%v hmac=%v", cfg.MetricsEnabled, cfg.RequireTokenHMAC)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ACCESSGATE_KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("ACCESSGATE_CORS_ALLOWED_ORIGINS", "https://a.example.com")
	t.Setenv("ACCESSGATE_DB_MAX_CONNS", "25")
	t.Setenv("ACCESSGATE_DELIVERY_TIMEOUT", "2s")
	t.Setenv("ACCESSGATE_HTTP_MAX_HEADER_BYTES", "-1")

	cfg := LoadConfig()

	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("brokers=%v", cfg.KafkaBrokers)
	}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, []string{"https://a.example.com"}) {
		t.Fatalf("origins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.DBMaxConns != 25 || cfg.DeliveryTimeout != 2*time.Second {
		t.Fatalf("max conns=%d delivery timeout=%v", cfg.DBMaxConns, cfg.DeliveryTimeout)
	}
	if cfg.MaxHeaderBytes != 1<<20 {
		t.Fatalf("invalid value should fall back, got %d", cfg.MaxHeaderBytes)
	}
}

func TestEnvHelpers_InvalidFallBack(t *testing.T) {
	t.Setenv("ACCESSGATE_TEST_BOOL", "maybe")
	t.Setenv("ACCESSGATE_TEST_INT32", "-4")
	t.Setenv("ACCESSGATE_TEST_DURATION", "soon")

	if !EnvBool("ACCESSGATE_TEST_BOOL", true) {
		t.Fatalf("bool fallback")
	}
	if EnvInt32("ACCESSGATE_TEST_INT32", 7) != 7 {
		t.Fatalf("int32 fallback")
	}
	if EnvDuration("ACCESSGATE_TEST_DURATION", time.Minute) != time.Minute {
		t.Fatalf("duration fallback")
	}
	if EnvList("ACCESSGATE_TEST_UNSET") != nil {
		t.Fatalf("unset list should be nil")
	}
}
