// Package config assembles the Neural Engine's typed configuration once at
// process start from a YAML file plus environment variable overrides
// (spec.md §6). Configuration is immutable once loaded and is passed
// explicitly to constructors; nothing here is a package-level singleton.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	APIPort     string `yaml:"api_port"`
	MetricsPort string `yaml:"metrics_port"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	DB           int    `yaml:"db"`
	StreamPrefix string `yaml:"stream_prefix"`
}

type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// LedgerConfig configures the Neural Ledger (spec.md §4.8): the
// signing mode selects whether events are KMS-signed or left unsigned for
// deployments without a configured key.
type LedgerConfig struct {
	SigningMode      string        `yaml:"signing_mode"` // "kms" | "none"
	SigningKeyID     string        `yaml:"signing_key_id"`
	ShardCount       int           `yaml:"shard_count"`
	RootChainCadence time.Duration `yaml:"root_chain_cadence"`
}

// IngestionConfig configures the Ingestion Service (spec.md §4.5).
type IngestionConfig struct {
	MaxChunkBytes       int     `yaml:"max_chunk_bytes"`
	BufferSize          int     `yaml:"buffer_size"`
	BufferHighWatermark float64 `yaml:"buffer_high_watermark"`
	NumPartitions       int     `yaml:"num_partitions"`
	// ProcessSaltBase64, if set, seeds the user-id anonymization salt
	// (spec.md §4.5) so anonymized ids stay stable across restarts; left
	// empty, a random salt is generated at startup.
	ProcessSaltBase64 string `yaml:"process_salt_base64"`
}

// PipelineConfig configures the Windowed Processing Pipeline (spec.md §4.6).
type PipelineConfig struct {
	WindowMs          int `yaml:"window_ms"`
	AllowedLatenessMs int `yaml:"allowed_lateness_ms"`
	WorkerCount       int `yaml:"worker_count"`
}

// DiscoveryConfig configures Device Discovery (spec.md §4.3).
type DiscoveryConfig struct {
	MDNSEnabled     bool `yaml:"mdns_enabled"`
	ScanIntervalSec int  `yaml:"scan_interval_sec"`
}

// ObjectStorageConfig configures the long-term columnar store and the
// batch-upload object source (spec.md §4.5/§4.6).
type ObjectStorageConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Redis     RedisConfig         `yaml:"redis"`
	Postgres  PostgresConfig      `yaml:"postgres"`
	Ledger    LedgerConfig        `yaml:"ledger"`
	Ingestion IngestionConfig     `yaml:"ingestion"`
	Pipeline  PipelineConfig      `yaml:"pipeline"`
	Discovery DiscoveryConfig     `yaml:"discovery"`
	Storage   ObjectStorageConfig `yaml:"storage"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// Load reads the YAML file at path, applies defaults, overlays environment
// variables, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.APIPort == "" {
		cfg.Server.APIPort = "8080"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.StreamPrefix == "" {
		cfg.Redis.StreamPrefix = "neural"
	}
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Ledger.SigningMode == "" {
		cfg.Ledger.SigningMode = "none"
	}
	if cfg.Ledger.ShardCount == 0 {
		cfg.Ledger.ShardCount = 1
	}
	if cfg.Ledger.RootChainCadence == 0 {
		cfg.Ledger.RootChainCadence = 1 * time.Minute
	}
	if cfg.Ingestion.MaxChunkBytes == 0 {
		cfg.Ingestion.MaxChunkBytes = 65536
	}
	if cfg.Ingestion.BufferSize == 0 {
		cfg.Ingestion.BufferSize = 10000
	}
	if cfg.Ingestion.BufferHighWatermark == 0 {
		cfg.Ingestion.BufferHighWatermark = 0.8
	}
	if cfg.Ingestion.NumPartitions == 0 {
		cfg.Ingestion.NumPartitions = 16
	}
	if cfg.Pipeline.WindowMs == 0 {
		cfg.Pipeline.WindowMs = 50
	}
	if cfg.Pipeline.AllowedLatenessMs == 0 {
		cfg.Pipeline.AllowedLatenessMs = 100
	}
	if cfg.Pipeline.WorkerCount == 0 {
		cfg.Pipeline.WorkerCount = 4
	}
	if cfg.Discovery.ScanIntervalSec == 0 {
		cfg.Discovery.ScanIntervalSec = 30
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "neural-engine-archive"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "frames"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validate enforces the invariants that matter once the config is fully
// assembled: missing optional fields are defaulted rather than rejected,
// but values that would make a component impossible to start are errors.
func validate(cfg *Config) error {
	switch cfg.Ledger.SigningMode {
	case "kms", "none":
	default:
		return fmt.Errorf("unsupported ledger signing mode: %q", cfg.Ledger.SigningMode)
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}

	if cfg.Ledger.SigningMode == "kms" && cfg.Ledger.SigningKeyID == "" {
		return fmt.Errorf("ledger signing key id is required for kms signing mode")
	}

	if cfg.Ingestion.BufferHighWatermark < 0.0 || cfg.Ingestion.BufferHighWatermark > 1.0 {
		return fmt.Errorf("ingestion buffer high watermark must be between 0.0 and 1.0")
	}

	if cfg.Ingestion.MaxChunkBytes <= 0 {
		return fmt.Errorf("ingestion max chunk bytes must be greater than 0")
	}

	if cfg.Postgres.Database == "" {
		return fmt.Errorf("postgres database name is required")
	}

	if cfg.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("pipeline worker count must be greater than 0")
	}

	return nil
}

// loadFromEnv overlays environment variables named in spec.md §6 onto cfg,
// leaving any field whose variable is unset untouched.
func loadFromEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("API_PORT"); ok {
		cfg.Server.APIPort = v
	}
	if v, ok := os.LookupEnv("METRICS_PORT"); ok {
		cfg.Server.MetricsPort = v
	}
	if v, ok := os.LookupEnv("STORAGE_HOST"); ok {
		cfg.Postgres.Host = v
	}
	if v, ok := os.LookupEnv("STORAGE_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STORAGE_PORT: %w", err)
		}
		cfg.Postgres.Port = n
	}
	if v, ok := os.LookupEnv("STORAGE_DATABASE"); ok {
		cfg.Postgres.Database = v
	}
	if v, ok := os.LookupEnv("STORAGE_USER"); ok {
		cfg.Postgres.User = v
	}
	if v, ok := os.LookupEnv("STORAGE_PASSWORD"); ok {
		cfg.Postgres.Password = v
	}
	if v, ok := os.LookupEnv("LEDGER_SIGNING_KEY_ID"); ok {
		cfg.Ledger.SigningKeyID = v
	}
	if v, ok := os.LookupEnv("LEDGER_SHARD_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_SHARD_COUNT: %w", err)
		}
		cfg.Ledger.ShardCount = n
	}
	if v, ok := os.LookupEnv("INGEST_MAX_CHUNK_BYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid INGEST_MAX_CHUNK_BYTES: %w", err)
		}
		cfg.Ingestion.MaxChunkBytes = n
	}
	if v, ok := os.LookupEnv("INGEST_BUFFER_HIGH_WM"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid INGEST_BUFFER_HIGH_WM: %w", err)
		}
		cfg.Ingestion.BufferHighWatermark = f
	}
	if v, ok := os.LookupEnv("WINDOW_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WINDOW_MS: %w", err)
		}
		cfg.Pipeline.WindowMs = n
	}
	if v, ok := os.LookupEnv("DISCOVERY_MDNS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DISCOVERY_MDNS_ENABLED: %w", err)
		}
		cfg.Discovery.MDNSEnabled = b
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("STORAGE_S3_BUCKET"); ok {
		cfg.Storage.Bucket = v
	}
	if v, ok := os.LookupEnv("INGEST_PROCESS_SALT"); ok {
		cfg.Ingestion.ProcessSaltBase64 = v
	}
	return nil
}
