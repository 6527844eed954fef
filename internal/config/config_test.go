package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear environment
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, DriverMemory)
	}
	if cfg.OpenClawToken != "" {
		t.Errorf("OpenClawToken = %q, want empty", cfg.OpenClawToken)
	}
	if cfg.OpenClawAllowRemote {
		t.Error("OpenClawAllowRemote should default to false")
	}
	if cfg.HubSendBuffer != 64 {
		t.Errorf("HubSendBuffer = %d, want 64", cfg.HubSendBuffer)
	}
	if cfg.LedgerMaxRetries != 5 {
		t.Errorf("LedgerMaxRetries = %d, want 5", cfg.LedgerMaxRetries)
	}
	if cfg.MaxSnapshotBytes != 8<<20 {
		t.Errorf("MaxSnapshotBytes = %d, want %d", cfg.MaxSnapshotBytes, 8<<20)
	}
	if cfg.JWTIssuer != "canvas-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "canvas-auth")
	}
	if cfg.JWTAudience != "canvas-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "canvas-api")
	}
	if cfg.TelemetryKafkaTopic != "canvas-telemetry" {
		t.Errorf("TelemetryKafkaTopic = %q, want %q", cfg.TelemetryKafkaTopic, "canvas-telemetry")
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled should be false without JWT_PUBLIC_KEY")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":7070")
	os.Setenv("OPENCLAW_TOKEN", "s3cret")
	os.Setenv("OPENCLAW_ALLOW_REMOTE", "true")
	os.Setenv("HUB_SEND_BUFFER", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":7070")
	}
	if cfg.OpenClawToken != "s3cret" {
		t.Errorf("OpenClawToken = %q, want %q", cfg.OpenClawToken, "s3cret")
	}
	if !cfg.OpenClawAllowRemote {
		t.Error("OpenClawAllowRemote should be true")
	}
	if cfg.HubSendBuffer != 16 {
		t.Errorf("HubSendBuffer = %d, want 16", cfg.HubSendBuffer)
	}
}

func TestLoad_StoreDriver(t *testing.T) {
	testCases := []struct {
		name   string
		env    map[string]string
		want   string
		hasErr bool
	}{
		{"default memory", nil, DriverMemory, false},
		{"postgres inferred from DSN", map[string]string{"DATABASE_URL": "postgres://localhost/canvas"}, DriverPostgres, false},
		{"explicit sqlite", map[string]string{"STORE_DRIVER": "SQLite"}, DriverSQLite, false},
		{"postgres without DSN", map[string]string{"STORE_DRIVER": "postgres"}, "", true},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mysql"}, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if tc.hasErr {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.StoreDriver != tc.want {
				t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, tc.want)
			}
		})
	}
}

func TestLoad_RemoteWithoutTokenInProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OPENCLAW_ALLOW_REMOTE", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when remote access is enabled without a token in production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OPENCLAW_ALLOW_REMOTE requires OPENCLAW_TOKEN when APP_ENV=production" {
		t.Errorf("error = %q, want production remote message", err.Error())
	}
}

func TestLoad_RemoteWithoutTokenInDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OPENCLAW_ALLOW_REMOTE", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OpenClawAllowRemote {
		t.Error("OpenClawAllowRemote should be true")
	}
}

func TestLoad_NegativeRetries(t *testing.T) {
	os.Clearenv()
	os.Setenv("LEDGER_MAX_RETRIES", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject negative LEDGER_MAX_RETRIES")
	}
}

func TestDurations(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		get   func(*Config) time.Duration
		want  time.Duration
	}{
		{"send timeout valid", "HUB_SEND_TIMEOUT", "250ms", (*Config).SendTimeout, 250 * time.Millisecond},
		{"send timeout invalid", "HUB_SEND_TIMEOUT", "soon", (*Config).SendTimeout, 5 * time.Second},
		{"send timeout negative", "HUB_SEND_TIMEOUT", "-1s", (*Config).SendTimeout, 5 * time.Second},
		{"ping interval valid", "HUB_PING_INTERVAL", "10s", (*Config).PingInterval, 10 * time.Second},
		{"ping interval zero", "HUB_PING_INTERVAL", "0", (*Config).PingInterval, 30 * time.Second},
		{"access ttl valid", "JWT_ACCESS_TTL", "30m", (*Config).AccessTTL, 30 * time.Minute},
		{"access ttl invalid", "JWT_ACCESS_TTL", "invalid", (*Config).AccessTTL, 15 * time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.key, tc.value)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := tc.get(cfg); got != tc.want {
				t.Errorf("%s = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		name    string
		brokers string
		want    []string
	}{
		{"empty", "", nil},
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"multiple with spaces", " a:9092 , b:9092,,", []string{"a:9092", "b:9092"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{TelemetryKafkaBrokers: tc.brokers}
			got := cfg.TelemetryKafkaBrokersList()
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("TelemetryKafkaBrokersList() = %v, want %v", got, tc.want)
			}
		})
	}

	var nilCfg *Config
	if got := nilCfg.TelemetryKafkaBrokersList(); got != nil {
		t.Errorf("nil config brokers = %v, want nil", got)
	}
}
