package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  api_port: "8080"
  metrics_port: "9090"

redis:
  addr: "localhost:6379"
  db: 0
  stream_prefix: "neural"

postgres:
  host: "localhost"
  port: 5432
  database: "neural_engine"
  user: "neural"
  ssl_mode: "disable"

ledger:
  signing_mode: "kms"
  signing_key_id: "arn:aws:kms:us-east-1:000000000000:key/test"
  shard_count: 4
  root_chain_cadence: "1m"

ingestion:
  max_chunk_bytes: 65536
  buffer_size: 10000
  buffer_high_watermark: 0.8

pipeline:
  window_ms: 50
  allowed_lateness_ms: 100
  worker_count: 4

discovery:
  mdns_enabled: true
  scan_interval_sec: 30

logging:
  level: "info"
  format: "json"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.APIPort).To(Equal("8080"))
				Expect(config.Server.MetricsPort).To(Equal("9090"))

				Expect(config.Redis.Addr).To(Equal("localhost:6379"))
				Expect(config.Redis.DB).To(Equal(0))
				Expect(config.Redis.StreamPrefix).To(Equal("neural"))

				Expect(config.Postgres.Host).To(Equal("localhost"))
				Expect(config.Postgres.Port).To(Equal(5432))
				Expect(config.Postgres.Database).To(Equal("neural_engine"))
				Expect(config.Postgres.User).To(Equal("neural"))
				Expect(config.Postgres.SSLMode).To(Equal("disable"))

				Expect(config.Ledger.SigningMode).To(Equal("kms"))
				Expect(config.Ledger.SigningKeyID).To(Equal("arn:aws:kms:us-east-1:000000000000:key/test"))
				Expect(config.Ledger.ShardCount).To(Equal(4))
				Expect(config.Ledger.RootChainCadence).To(Equal(1 * time.Minute))

				Expect(config.Ingestion.MaxChunkBytes).To(Equal(65536))
				Expect(config.Ingestion.BufferSize).To(Equal(10000))
				Expect(config.Ingestion.BufferHighWatermark).To(Equal(0.8))

				Expect(config.Pipeline.WindowMs).To(Equal(50))
				Expect(config.Pipeline.AllowedLatenessMs).To(Equal(100))
				Expect(config.Pipeline.WorkerCount).To(Equal(4))

				Expect(config.Discovery.MDNSEnabled).To(BeTrue())
				Expect(config.Discovery.ScanIntervalSec).To(Equal(30))

				Expect(config.Logging.Level).To(Equal("info"))
				Expect(config.Logging.Format).To(Equal("json"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  api_port: "3000"

postgres:
  database: "neural_engine"

ledger:
  signing_mode: "none"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.APIPort).To(Equal("3000"))
				Expect(config.Postgres.Database).To(Equal("neural_engine"))

				Expect(config.Postgres.Host).To(Equal("localhost"))
				Expect(config.Ledger.ShardCount).To(Equal(1))
				Expect(config.Pipeline.WorkerCount).To(Equal(4))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  api_port: "8080"
  invalid_yaml: [
redis:
  addr: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  api_port: "8080"

ledger:
  signing_mode: "none"
  root_chain_cadence: "not-a-duration"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Server: ServerConfig{
					APIPort:     "8080",
					MetricsPort: "9090",
				},
				Postgres: PostgresConfig{
					Host:     "localhost",
					Port:     5432,
					Database: "neural_engine",
				},
				Ledger: LedgerConfig{
					SigningMode:      "kms",
					SigningKeyID:     "arn:aws:kms:us-east-1:000000000000:key/test",
					ShardCount:       4,
					RootChainCadence: 1 * time.Minute,
				},
				Ingestion: IngestionConfig{
					MaxChunkBytes:       65536,
					BufferSize:          10000,
					BufferHighWatermark: 0.8,
				},
				Pipeline: PipelineConfig{
					WindowMs:    50,
					WorkerCount: 4,
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when ledger signing mode is invalid", func() {
			BeforeEach(func() {
				config.Ledger.SigningMode = "invalid"
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported ledger signing mode"))
			})
		})

		Context("when postgres host is missing", func() {
			BeforeEach(func() {
				config.Postgres.Host = ""
			})

			It("should set default host", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(config.Postgres.Host).To(Equal("localhost"))
			})
		})

		Context("when ledger signing key id is missing for kms mode", func() {
			BeforeEach(func() {
				config.Ledger.SigningKeyID = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ledger signing key id is required for kms signing mode"))
			})
		})

		Context("when ingestion buffer high watermark is out of range", func() {
			BeforeEach(func() {
				config.Ingestion.BufferHighWatermark = 1.5
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ingestion buffer high watermark must be between 0.0 and 1.0"))
			})
		})

		Context("when ingestion max chunk bytes is invalid", func() {
			BeforeEach(func() {
				config.Ingestion.MaxChunkBytes = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ingestion max chunk bytes must be greater than 0"))
			})
		})

		Context("when postgres database name is empty", func() {
			BeforeEach(func() {
				config.Postgres.Database = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("postgres database name is required"))
			})
		})

		Context("when pipeline worker count is invalid", func() {
			BeforeEach(func() {
				config.Pipeline.WorkerCount = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("pipeline worker count must be greater than 0"))
			})
		})

		Context("when pipeline worker count is negative", func() {
			BeforeEach(func() {
				config.Pipeline.WorkerCount = -1
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("pipeline worker count must be greater than 0"))
			})
		})

		Context("when ledger shard count is zero", func() {
			BeforeEach(func() {
				config.Ledger.ShardCount = 0
			})

			It("should pass validation", func() {
				// shard count defaults are applied at load time, not enforced here
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when root chain cadence is negative", func() {
			BeforeEach(func() {
				config.Ledger.RootChainCadence = -1 * time.Minute
			})

			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("API_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("STORAGE_HOST", "db.internal")
				os.Setenv("STORAGE_DATABASE", "neural_engine")
				os.Setenv("LEDGER_SIGNING_KEY_ID", "test-key")
				os.Setenv("LEDGER_SHARD_COUNT", "8")
				os.Setenv("INGEST_MAX_CHUNK_BYTES", "131072")
				os.Setenv("INGEST_BUFFER_HIGH_WM", "0.9")
				os.Setenv("WINDOW_MS", "100")
				os.Setenv("DISCOVERY_MDNS_ENABLED", "true")
				os.Setenv("LOG_LEVEL", "debug")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.APIPort).To(Equal("3000"))
				Expect(config.Server.MetricsPort).To(Equal("9999"))
				Expect(config.Postgres.Host).To(Equal("db.internal"))
				Expect(config.Postgres.Database).To(Equal("neural_engine"))
				Expect(config.Ledger.SigningKeyID).To(Equal("test-key"))
				Expect(config.Ledger.ShardCount).To(Equal(8))
				Expect(config.Ingestion.MaxChunkBytes).To(Equal(131072))
				Expect(config.Ingestion.BufferHighWatermark).To(Equal(0.9))
				Expect(config.Pipeline.WindowMs).To(Equal(100))
				Expect(config.Discovery.MDNSEnabled).To(BeTrue())
				Expect(config.Logging.Level).To(Equal("debug"))
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				originalConfig := *config
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(*config).To(Equal(originalConfig))
			})
		})
	})
})
