// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server (REST, websocket hub, metrics) listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	// StoreDriver selects the history backend: memory, postgres, or sqlite.
	// Defaults to postgres when DATABASE_URL is set, otherwise memory.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// DatabaseURL is the Postgres DSN; used when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the SQLite database file; used when StoreDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	// OpenClawToken is the shared secret a connection must present. Empty disables the token check.
	OpenClawToken string `mapstructure:"OPENCLAW_TOKEN"`
	// OpenClawAllowRemote permits non-local connections. When false, remote peers are always rejected.
	OpenClawAllowRemote bool `mapstructure:"OPENCLAW_ALLOW_REMOTE"`

	// HubSendTimeout bounds a single delivery to one endpoint (e.g. "5s").
	HubSendTimeout string `mapstructure:"HUB_SEND_TIMEOUT"`
	// HubSendBuffer is the per-connection outbound queue length.
	HubSendBuffer int `mapstructure:"HUB_SEND_BUFFER"`
	// HubPingInterval is the websocket keepalive interval (e.g. "30s").
	HubPingInterval string `mapstructure:"HUB_PING_INTERVAL"`

	// LedgerMaxRetries is how many times Append retries after losing a sequence race to another writer.
	LedgerMaxRetries int `mapstructure:"LEDGER_MAX_RETRIES"`
	// MaxSnapshotBytes limits request bodies and websocket frames carrying a snapshot.
	MaxSnapshotBytes int64 `mapstructure:"MAX_SNAPSHOT_BYTES"`

	// JWTPublicKey is the PEM-encoded public key or path to file. When set, command paths require a Bearer access token.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the PEM-encoded private key or path to file; only cmd/seed uses it to mint dev tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer is the iss claim expected on access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim expected on access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime for dev tokens (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When Kafka brokers are set, servers emit telemetry events to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events (default canvas-telemetry).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("STORE_DRIVER", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "canvas.db")
	v.SetDefault("OPENCLAW_TOKEN", "")
	v.SetDefault("OPENCLAW_ALLOW_REMOTE", false)
	v.SetDefault("HUB_SEND_TIMEOUT", "5s")
	v.SetDefault("HUB_SEND_BUFFER", 64)
	v.SetDefault("HUB_PING_INTERVAL", "30s")
	v.SetDefault("LEDGER_MAX_RETRIES", 5)
	v.SetDefault("MAX_SNAPSHOT_BYTES", 8<<20)
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "canvas-auth")
	v.SetDefault("JWT_AUDIENCE", "canvas-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "canvas-hub")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "canvas-telemetry")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "canvas-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = DriverPostgres
		} else {
			cfg.StoreDriver = DriverMemory
		}
	}
	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	default:
		return nil, errors.New("config: STORE_DRIVER must be memory, postgres, or sqlite")
	}
	if cfg.StoreDriver == DriverSQLite && cfg.SQLitePath == "" {
		return nil, errors.New("config: SQLITE_PATH must be set when STORE_DRIVER=sqlite")
	}

	if cfg.OpenClawAllowRemote && cfg.OpenClawToken == "" && cfg.Env == "production" {
		return nil, errors.New("config: OPENCLAW_ALLOW_REMOTE requires OPENCLAW_TOKEN when APP_ENV=production")
	}

	if cfg.HubSendBuffer <= 0 {
		cfg.HubSendBuffer = 64
	}
	if cfg.LedgerMaxRetries < 0 {
		return nil, errors.New("config: LEDGER_MAX_RETRIES must not be negative")
	}
	if cfg.MaxSnapshotBytes <= 0 {
		cfg.MaxSnapshotBytes = 8 << 20
	}

	return &cfg, nil
}

// SendTimeout parses HubSendTimeout as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) SendTimeout() time.Duration {
	d, err := time.ParseDuration(c.HubSendTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// PingInterval parses HubPingInterval as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) PingInterval() time.Duration {
	d, err := time.ParseDuration(c.HubPingInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// AuthEnabled reports whether command paths require a Bearer access token.
func (c *Config) AuthEnabled() bool {
	return c != nil && strings.TrimSpace(c.JWTPublicKey) != ""
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
