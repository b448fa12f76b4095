// Package api implements the Control-Plane API (spec.md §4.9): a
// chi-routed REST surface over the Ingestion Service, Device Manager,
// Device Discovery, and Neural Ledger, fronted by bearer-token RBAC and
// responding with RFC 7807 problem+json on every error path.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/devicemanager"
	"github.com/neurascale/neural-engine/pkg/discovery"
	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/ingestion"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// Server holds every dependency the control-plane handlers call into.
// Construct with NewServer and Options; a nil optional dependency makes
// the routes that need it return 503 rather than panic, so a partially
// wired Server (as in unit tests exercising one handler) is still safe.
type Server struct {
	Logger logr.Logger

	Ingestion     *ingestion.Service
	BatchUploader *ingestion.BatchUploader
	DeviceManager *devicemanager.Manager
	Scanner       *discovery.Scanner
	DriverFactory devicemanager.DriverFactory
	Codec         *sample.Codec

	Ledger  *LedgerGateway
	Auth    TokenVerifier
	Access  AccessLedger
	Alerts  *AlertHistory
	Weights features.QualityWeights
}

// Option configures a Server at construction time.
type Option func(*Server)

func WithIngestion(svc *ingestion.Service) Option {
	return func(s *Server) { s.Ingestion = svc }
}

func WithBatchUploader(u *ingestion.BatchUploader) Option {
	return func(s *Server) { s.BatchUploader = u }
}

func WithDeviceManager(m *devicemanager.Manager) Option {
	return func(s *Server) { s.DeviceManager = m }
}

func WithDiscovery(scanner *discovery.Scanner, factory devicemanager.DriverFactory) Option {
	return func(s *Server) {
		s.Scanner = scanner
		s.DriverFactory = factory
	}
}

func WithCodec(codec *sample.Codec) Option {
	return func(s *Server) { s.Codec = codec }
}

func WithLedgerGateway(g *LedgerGateway) Option {
	return func(s *Server) { s.Ledger = g }
}

func WithAuth(verifier TokenVerifier, access AccessLedger) Option {
	return func(s *Server) {
		s.Auth = verifier
		s.Access = access
	}
}

func WithAlertHistory(h *AlertHistory) Option {
	return func(s *Server) { s.Alerts = h }
}

func WithQualityWeights(w features.QualityWeights) Option {
	return func(s *Server) { s.Weights = w }
}

// NewServer builds a Server. logger is required; every other dependency
// is optional and supplied via Option, mirroring the teacher's
// functional-options handler constructor.
func NewServer(logger logr.Logger, opts ...Option) *Server {
	s := &Server{Logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the chi router: CORS, per-route RBAC, and every
// endpoint in spec.md §6's table. cors may be nil to skip CORS
// middleware (e.g. in unit tests).
func (s *Server) Router(cors func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	if cors != nil {
		r.Use(cors)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.requireScope("write:neural_data")).Post("/ingest/neural-data", s.handleIngestNeuralData)
		v1.With(s.requireScope("write:neural_data")).Post("/ingest/batch-upload", s.handleBatchUpload)

		v1.With(s.requireScope("read:sessions")).Get("/sessions/{sessionID}", s.handleGetSession)
		v1.With(s.requireScope("write:neural_data")).Post("/session/start", s.handleSessionStart)
		v1.With(s.requireScope("write:neural_data")).Post("/session/end", s.handleSessionEnd)

		v1.With(s.requireScope("read:sessions")).Get("/devices", s.handleListDevices)
		v1.With(s.requireScope("admin:*")).Post("/devices", s.handleCreateDevice)
		v1.With(s.requireScope("write:neural_data")).Post("/devices/{deviceID}/connect", s.handleConnectDevice)
		v1.With(s.requireScope("write:neural_data")).Post("/devices/{deviceID}/stream/start", s.handleStreamStart)
		v1.With(s.requireScope("read:features")).Get("/devices/{deviceID}/impedance", s.handleImpedance)
		v1.With(s.requireScope("read:features")).Get("/devices/{deviceID}/signal-quality", s.handleSignalQuality)
		v1.With(s.requireScope("read:sessions")).Get("/devices/health", s.handleDevicesHealth)
		v1.With(s.requireScope("read:sessions")).Get("/devices/health/alerts", s.handleHealthAlerts)
		v1.With(s.requireScope("read:sessions")).Get("/devices/discover", s.handleDiscover)

		v1.With(s.requireScope("execute:analysis")).Get("/ledger/verify", s.handleLedgerVerify)
		v1.With(s.requireScope("execute:analysis")).Get("/ledger/dump", s.handleLedgerDump)
	})

	return r
}

// requireScope wraps RequireScope with this Server's configured
// verifier/ledger, so route registration above stays one line per
// endpoint. An unconfigured Auth (e.g. in a unit test exercising a
// single handler directly) allows every request through unauthenticated
// — callers wanting RBAC enforced in tests should set Auth explicitly.
func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	if s.Auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return RequireScope(scope, s.Auth, s.Access, s.Logger)
}
