package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/neurascale/neural-engine/internal/config"
	"github.com/neurascale/neural-engine/internal/database"
	"github.com/neurascale/neural-engine/pkg/api"
	dsmetrics "github.com/neurascale/neural-engine/pkg/datastorage/metrics"
	"github.com/neurascale/neural-engine/pkg/devicemanager"
	"github.com/neurascale/neural-engine/pkg/discovery"
	"github.com/neurascale/neural-engine/pkg/features"
	gocors "github.com/neurascale/neural-engine/pkg/http/cors"
	"github.com/neurascale/neural-engine/pkg/ingestion"
	"github.com/neurascale/neural-engine/pkg/ledger"
	"github.com/neurascale/neural-engine/pkg/ledger/bufferedstore"
	ledgerkms "github.com/neurascale/neural-engine/pkg/ledger/kms"
	"github.com/neurascale/neural-engine/pkg/ledger/pgstore"
	"github.com/neurascale/neural-engine/pkg/ledger/redisstore"
	"github.com/neurascale/neural-engine/pkg/metrics"
	"github.com/neurascale/neural-engine/pkg/pipeline"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// pipelineWorker pairs a Topology with the concrete RedisSource driving
// it, so run() can ensure the source's consumer group exists before
// handing the Topology off to its own goroutine.
type pipelineWorker struct {
	topology *pipeline.Topology
	source   *pipeline.RedisSource
}

// app holds every long-lived component main wires together, so run()
// can start and stop them in one place instead of scattering server
// variables across main's body.
type app struct {
	logger logr.Logger

	apiServer     *http.Server
	metricsServer *metrics.Server

	ingestionService *ingestion.Service
	pipelineWorkers  []pipelineWorker
	deviceManager    *devicemanager.Manager
	alertHistory     *api.AlertHistory
	recorder         *ledger.Recorder

	rootChain        *ledger.RootChain
	rootChainCadence time.Duration
	reconciler       *ledger.Reconciler
	reconcileShards  int
}

// build assembles every component from cfg, wiring each one to the
// production backends pkg/ledger/pgstore, pkg/ledger/redisstore and
// pkg/ledger/kms implement, and returns the assembled app along with a
// shutdown function that releases every opened connection.
func build(ctx context.Context, cfg *config.Config, logger logr.Logger) (*app, func(context.Context), error) {
	dbCfg := &database.Config{
		Host:         cfg.Postgres.Host,
		Port:         cfg.Postgres.Port,
		User:         cfg.Postgres.User,
		Password:     cfg.Postgres.Password,
		Database:     cfg.Postgres.Database,
		SSLMode:      cfg.Postgres.SSLMode,
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
	}
	if err := dbCfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("neural-engine: validate postgres config: %w", err)
	}

	db, err := pgstore.Open(dbCfg.ConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("neural-engine: open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)

	ledgerWriteMetrics := dsmetrics.NewMetricsWithRegistry("neural_engine", "ledger", prometheus.DefaultRegisterer)
	chainStore := &pgstore.ChainStore{DB: db, Metrics: ledgerWriteMetrics}
	analyticalStore := &pgstore.AnalyticalStore{DB: db, Metrics: ledgerWriteMetrics}
	documentIndex := &pgstore.DocumentIndex{DB: db}
	rowStore := &pipeline.RowStore{DB: db}
	if err := chainStore.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("neural-engine: ensure chain schema: %w", err)
	}
	if err := analyticalStore.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("neural-engine: ensure analytical schema: %w", err)
	}
	if err := documentIndex.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("neural-engine: ensure document schema: %w", err)
	}
	if err := rowStore.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("neural-engine: ensure pipeline feature schema: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	intentStore := &redisstore.IntentStore{Client: redisClient, Prefix: cfg.Redis.StreamPrefix + ":intent:"}

	signer, err := buildSigner(ctx, cfg.Ledger)
	if err != nil {
		return nil, nil, err
	}

	// analyticalFanout buffers writes to the day-partitioned analytical
	// store so a slow materialized view never adds latency to a shard's
	// authoritative chain append (spec.md §4.8's p99 target is for the
	// chain append itself, not this best-effort fan-out sink).
	analyticalFanout := bufferedstore.New(0, logger)
	analyticalFanout.RegisterAnalytical("postgres", analyticalStore)
	analyticalFanout.Start(ctx)

	shardCount := cfg.Ledger.ShardCount
	if shardCount <= 0 {
		shardCount = 1
	}
	shards := make([]*ledger.Chain, shardCount)
	for i := range shards {
		shards[i] = &ledger.Chain{
			Shard:      i,
			ChainStore: chainStore,
			Analytical: analyticalFanout,
			Document:   documentIndex,
			Intents:    intentStore,
			Signer:     signer,
			Logger:     logger,
		}
	}
	recorder := ledger.NewRecorder(shards)
	reconstructor := &ledger.Reconstructor{Document: documentIndex, Shards: shards}
	ledgerGateway := api.NewLedgerGateway(recorder, reconstructor)

	rootStore := &pgstore.RootStore{DB: db}
	if err := rootStore.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("neural-engine: ensure root chain schema: %w", err)
	}
	rootChain := &ledger.RootChain{Shards: shards, Store: rootStore, Logger: logger}

	reconciler := &ledger.Reconciler{ChainStore: chainStore, Analytical: analyticalStore, Logger: logger}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("neural-engine: load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)

	codec := &sample.Codec{MaxChunkBytes: cfg.Ingestion.MaxChunkBytes}
	publisher := ingestion.NewPublisher(redisClient, logger)

	salt, err := processSalt(cfg.Ingestion.ProcessSaltBase64)
	if err != nil {
		return nil, nil, err
	}

	ingestionSvc := ingestion.NewService(ingestion.Config{
		BufferCapacity: cfg.Ingestion.BufferSize,
		HighWatermark:  cfg.Ingestion.BufferHighWatermark,
		StreamPrefix:   cfg.Redis.StreamPrefix,
		NumPartitions:  cfg.Ingestion.NumPartitions,
		ProcessSalt:    salt,
		QualityWeights: features.DefaultQualityWeights,
	}, codec, publisher, recorder, logger)

	batchUploader := &ingestion.BatchUploader{
		Client:  s3Client,
		Bucket:  cfg.Storage.Bucket,
		Codec:   codec,
		Service: ingestionSvc,
	}

	chunkSink := &ingestion.DeviceSink{Service: ingestionSvc, Ledger: recorder, Logger: logger}
	telemetry := devicemanager.NewTelemetryBuffer(logger)
	deviceManager := devicemanager.New(recorder, telemetry, logger, devicemanager.WithChunkSink(chunkSink))

	scanner := discovery.New(
		&discovery.SerialProber{},
		&discovery.BluetoothProber{},
		&discovery.MDNSProber{},
		&discovery.LSLProber{},
		&discovery.SyntheticProber{},
	)

	alertHistory := api.NewAlertHistory(0)
	workers := buildPipelineWorkers(redisClient, codec, recorder, rowStore, s3Client, cfg, logger)

	opts := []api.Option{
		api.WithIngestion(ingestionSvc),
		api.WithBatchUploader(batchUploader),
		api.WithDeviceManager(deviceManager),
		api.WithDiscovery(scanner, newDriverFactory()),
		api.WithCodec(codec),
		api.WithLedgerGateway(ledgerGateway),
		api.WithAlertHistory(alertHistory),
		api.WithQualityWeights(features.DefaultQualityWeights),
	}
	if verifier := staticVerifierFromEnv(); verifier != nil {
		opts = append(opts, api.WithAuth(verifier, recorder))
	}
	srv := api.NewServer(logger, opts...)

	router := srv.Router(gocors.Handler(gocors.FromEnvironment()))
	apiHTTPServer := &http.Server{Addr: ":" + cfg.Server.APIPort, Handler: router}

	logrusLogger := logrus.New()
	if level, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		logrusLogger.SetLevel(level)
	}
	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logrusLogger)

	a := &app{
		logger:           logger,
		apiServer:        apiHTTPServer,
		metricsServer:    metricsServer,
		ingestionService: ingestionSvc,
		pipelineWorkers:  workers,
		deviceManager:    deviceManager,
		alertHistory:     alertHistory,
		recorder:         recorder,
		rootChain:        rootChain,
		rootChainCadence: cfg.Ledger.RootChainCadence,
		reconciler:       reconciler,
		reconcileShards:  shardCount,
	}

	shutdown := func(shutdownCtx context.Context) {
		_ = apiHTTPServer.Shutdown(shutdownCtx)
		_ = metricsServer.Stop(shutdownCtx)
		analyticalFanout.Stop()
		_ = redisClient.Close()
		_ = db.Close()
	}

	return a, shutdown, nil
}

// buildPipelineWorkers returns one Topology, paired with its RedisSource,
// per signal data type (spec.md §4.6), each consuming its own consumer
// group and writing through a shared recording, row-plus-columnar sink.
func buildPipelineWorkers(redisClient *redis.Client, codec *sample.Codec, recorder *ledger.Recorder, rowStore *pipeline.RowStore, s3Client *s3.Client, cfg *config.Config, logger logr.Logger) []pipelineWorker {
	dataTypes := []sample.DataType{
		sample.DataTypeEEG, sample.DataTypeECoG, sample.DataTypeSpikes,
		sample.DataTypeLFP, sample.DataTypeEMG, sample.DataTypeAccelerometer,
	}

	columnarStore := &pipeline.ColumnarStore{Client: s3Client, Bucket: cfg.Storage.Bucket, Prefix: cfg.Storage.Prefix}
	sink := &pipeline.RecordingSink{
		Store:  &pipeline.FanoutSink{Sinks: []pipeline.Sink{rowStore, columnarStore}},
		Ledger: recorder,
	}

	windowCfg := pipeline.WindowConfig{}
	workers := make([]pipelineWorker, 0, len(dataTypes))
	for _, dt := range dataTypes {
		topic := ingestion.TopicFor(cfg.Redis.StreamPrefix, string(dt))
		source := pipeline.NewRedisSource(redisClient, codec, logger, topic, "pipeline", "worker-1")
		workers = append(workers, pipelineWorker{
			topology: pipeline.NewTopology(source, sink, windowCfg, logger),
			source:   source,
		})
	}
	return workers
}

func buildSigner(ctx context.Context, cfg config.LedgerConfig) (ledger.Signer, error) {
	if cfg.SigningMode != "kms" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("neural-engine: load aws config for kms: %w", err)
	}
	return &ledgerkms.Signer{Client: awskms.NewFromConfig(awsCfg), KeyID: cfg.SigningKeyID}, nil
}

func processSalt(b64 string) ([]byte, error) {
	if b64 == "" {
		salt := make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("neural-engine: generate process salt: %w", err)
		}
		return salt, nil
	}
	salt, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("neural-engine: decode INGEST_PROCESS_SALT: %w", err)
	}
	return salt, nil
}

// staticVerifierFromEnv builds a bearer-token verifier from
// NEURAL_ENGINE_API_TOKENS, formatted "token=scope1|scope2,token2=scope3"
// (spec.md §4.9's scopes). An unset or empty value disables
// authentication entirely, which server.requireScope treats as an open
// control plane — suitable for local development only.
func staticVerifierFromEnv() api.StaticTokenVerifier {
	raw := os.Getenv("NEURAL_ENGINE_API_TOKENS")
	if raw == "" {
		return nil
	}
	verifier := api.StaticTokenVerifier{}
	for i, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		verifier[parts[0]] = api.Principal{
			ID:     fmt.Sprintf("principal-%d", i),
			Scopes: strings.Split(parts[1], "|"),
		}
	}
	if len(verifier) == 0 {
		return nil
	}
	return verifier
}
