// Package devicemanager implements the Device Manager (spec.md §4.4):
// the registry of attached devices, session lifecycle, health
// monitoring, and telemetry buffering sitting on top of pkg/device and
// pkg/discovery. Every public operation is idempotent with respect to
// its end state — calling an operation that is already satisfied
// succeeds without effect, but the ledger still records the issuance.
package devicemanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/discovery"
	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/metrics"
)

// LedgerRecorder is the seam devicemanager uses to emit ledger events
// for every operation it performs, regardless of whether the operation
// was a no-op (spec.md §4.4: "the ledger records the issuance
// regardless of no-op status"). The real implementation is
// pkg/ledger's event writer; tests and early wiring use a fake.
type LedgerRecorder interface {
	RecordAction(ctx context.Context, action, deviceID, sessionID string, noop bool) error
}

// DriverFactory builds a Driver for a discovered device, so
// create_from_discovery can turn a discovery.Device into a managed,
// connectable device without the manager knowing about device families.
type DriverFactory func(d discovery.Device) (device.Driver, error)

// ManagedDevice is one entry in the manager's registry.
type ManagedDevice struct {
	DeviceID            string
	DeviceType          string
	Driver              device.Driver
	FSM                 *device.FSM
	LastQuality         features.QualityReport
	ConsecutiveDegraded int
	LastCheckedAtNs     int64
}

// Manager is the Device Manager (spec.md §4.4). It is safe for
// concurrent use.
type Manager struct {
	mu         sync.RWMutex
	devices    map[string]*ManagedDevice
	discovered map[string]discovery.Device
	session    *Session

	ledger    LedgerRecorder
	telemetry *TelemetryBuffer
	logger    logr.Logger

	// ChunkSink receives every chunk streamed by any managed device,
	// once StartStreaming is called. Wired to pkg/ingestion in the
	// assembled binary; nil is a valid no-op sink for tests.
	ChunkSink device.Sink

	qualityProbeDuration time.Duration

	healthInterval     time.Duration
	degradedThreshold  int
	healthSubscribers  []chan HealthAlert
	healthSubscriberMu sync.Mutex

	processSalt []byte
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithQualityProbeDuration overrides the duration passed to a driver's
// ProbeQuality call (default 500ms).
func WithQualityProbeDuration(d time.Duration) Option {
	return func(m *Manager) { m.qualityProbeDuration = d }
}

// WithChunkSink wires the sink every started stream forwards chunks to.
func WithChunkSink(sink device.Sink) Option {
	return func(m *Manager) { m.ChunkSink = sink }
}

// WithHealthInterval overrides the health monitor's tick interval
// (default 1s, spec.md §4.4).
func WithHealthInterval(d time.Duration) Option {
	return func(m *Manager) { m.healthInterval = d }
}

// WithDegradedThreshold overrides how many consecutive degraded (or
// worse) health checks trigger a HealthAlert (default 3, spec.md
// §4.4).
func WithDegradedThreshold(n int) Option {
	return func(m *Manager) { m.degradedThreshold = n }
}

// WithProcessSalt sets the per-process secret StartSession uses to
// anonymize a session's user_id metadata field (spec.md §4.5: "H(user_id
// ‖ process_salt) truncated to 128 bits").
func WithProcessSalt(salt []byte) Option {
	return func(m *Manager) { m.processSalt = salt }
}

// New builds a Manager. ledger and telemetry may be nil for tests that
// don't exercise those concerns.
func New(ledger LedgerRecorder, telemetry *TelemetryBuffer, logger logr.Logger, opts ...Option) *Manager {
	m := &Manager{
		devices:              make(map[string]*ManagedDevice),
		discovered:           make(map[string]discovery.Device),
		ledger:               ledger,
		telemetry:            telemetry,
		logger:               logger,
		qualityProbeDuration: 500 * time.Millisecond,
		healthInterval:       time.Second,
		degradedThreshold:    3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) recordAction(ctx context.Context, action, deviceID string, noop bool) {
	start := time.Now()
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.ID
	}
	if m.ledger != nil {
		if err := m.ledger.RecordAction(ctx, action, deviceID, sessionID, noop); err != nil {
			m.logger.Error(err, "failed to record ledger action", "action", action, "device_id", deviceID)
		}
	}
	metrics.RecordAction(action, time.Since(start))
	if m.telemetry != nil {
		m.telemetry.Record(TelemetryEvent{
			Kind:     TelemetryKindConnection,
			DeviceID: deviceID,
			TsNs:     time.Now().UnixNano(),
			Fields:   map[string]string{"action": action, "noop": fmt.Sprintf("%t", noop)},
		})
	}
}

// AddDevice registers a device with its driver, starting in
// StateDiscovered.
func (m *Manager) AddDevice(deviceID, deviceType string, driver device.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[deviceID]; exists {
		return nil // idempotent: already registered
	}
	m.devices[deviceID] = &ManagedDevice{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Driver:     driver,
		FSM:        device.NewFSM(),
	}
	return nil
}

// RemoveDevice disconnects (if needed) and removes a device from the
// registry. Removing an unregistered device is a no-op.
func (m *Manager) RemoveDevice(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	md, exists := m.devices[deviceID]
	if !exists {
		m.mu.Unlock()
		m.recordAction(ctx, "remove_device", deviceID, true)
		return nil
	}
	delete(m.devices, deviceID)
	m.mu.Unlock()

	if md.FSM.State() == device.StateStreaming || md.FSM.State() == device.StatePaused || md.FSM.State() == device.StateConnected {
		_ = md.Driver.Disconnect(ctx)
	}
	m.recordAction(ctx, "remove_device", deviceID, false)
	return nil
}

// lookupLocked returns the registered device, holding no lock itself —
// callers must already hold m.mu.
func (m *Manager) lookupLocked(deviceID string) (*ManagedDevice, error) {
	md, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("devicemanager: device %q not registered", deviceID)
	}
	return md, nil
}

// Connect transitions a device to Connected. Connecting an
// already-connected (or streaming) device succeeds without effect.
func (m *Manager) Connect(ctx context.Context, deviceID string, params device.ConnectParams) error {
	m.mu.Lock()
	md, err := m.lookupLocked(deviceID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	state := md.FSM.State()
	m.mu.Unlock()

	if state == device.StateConnected || state == device.StateStreaming || state == device.StatePaused {
		m.recordAction(ctx, "connect", deviceID, true)
		return nil
	}

	metrics.RecordDeviceConnectAttempt(md.DeviceType)
	if err := md.FSM.Transition(device.StateConnecting); err != nil {
		return err
	}
	if err := md.Driver.Connect(ctx, params); err != nil {
		metrics.RecordDeviceConnectError(md.DeviceType, "connect_failed")
		_ = md.FSM.Transition(device.StateErrored)
		m.recordAction(ctx, "connect", deviceID, false)
		return err
	}
	if err := md.FSM.Transition(device.StateConnected); err != nil {
		return err
	}
	m.recordAction(ctx, "connect", deviceID, false)
	return nil
}

// Disconnect transitions a device back to Closed. Disconnecting an
// already-disconnected device succeeds without effect.
func (m *Manager) Disconnect(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	md, err := m.lookupLocked(deviceID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	state := md.FSM.State()
	m.mu.Unlock()

	if state == device.StateClosed || state == device.StateDiscovered {
		m.recordAction(ctx, "disconnect", deviceID, true)
		return nil
	}

	if err := md.FSM.Transition(device.StateDisconnecting); err != nil {
		return err
	}
	if err := md.Driver.Disconnect(ctx); err != nil {
		_ = md.FSM.Transition(device.StateErrored)
		m.recordAction(ctx, "disconnect", deviceID, false)
		return err
	}
	if err := md.FSM.Transition(device.StateClosed); err != nil {
		return err
	}
	m.recordAction(ctx, "disconnect", deviceID, false)
	return nil
}

// StartStreaming transitions a connected device to Streaming under the
// given session. Starting an already-streaming device succeeds without
// effect.
func (m *Manager) StartStreaming(ctx context.Context, deviceID, sessionID string) error {
	m.mu.Lock()
	md, err := m.lookupLocked(deviceID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	state := md.FSM.State()
	sink := m.ChunkSink
	m.mu.Unlock()

	if state == device.StateStreaming {
		m.recordAction(ctx, "start_streaming", deviceID, true)
		return nil
	}
	if state == device.StatePaused {
		if err := md.FSM.Transition(device.StateStreaming); err != nil {
			return err
		}
		m.recordAction(ctx, "start_streaming", deviceID, false)
		return nil
	}

	if err := md.Driver.StartStream(ctx, sink); err != nil {
		_ = md.FSM.Transition(device.StateErrored)
		m.recordAction(ctx, "start_streaming", deviceID, false)
		return err
	}
	if err := md.FSM.Transition(device.StateStreaming); err != nil {
		return err
	}
	metrics.IncrementActiveSessions()
	m.recordAction(ctx, "start_streaming", deviceID, false)
	return nil
}

// StopStreaming transitions a streaming (or paused) device back to
// Connected. Stopping a non-streaming device succeeds without effect.
func (m *Manager) StopStreaming(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	md, err := m.lookupLocked(deviceID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	state := md.FSM.State()
	m.mu.Unlock()

	if state != device.StateStreaming && state != device.StatePaused {
		m.recordAction(ctx, "stop_streaming", deviceID, true)
		return nil
	}

	if err := md.Driver.StopStream(ctx); err != nil {
		return err
	}
	if err := md.FSM.Transition(device.StateConnected); err != nil {
		return err
	}
	metrics.DecrementActiveSessions()
	m.recordAction(ctx, "stop_streaming", deviceID, false)
	return nil
}

// CheckImpedance runs an impedance check against a connected device.
func (m *Manager) CheckImpedance(ctx context.Context, deviceID string) (map[string]float64, error) {
	m.mu.RLock()
	md, err := m.lookupLocked(deviceID)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	result, err := md.Driver.CheckImpedance(ctx)
	m.recordAction(ctx, "check_impedance", deviceID, false)
	return result, err
}

// GetSignalQuality probes a device's current signal quality.
func (m *Manager) GetSignalQuality(ctx context.Context, deviceID string) (features.QualityReport, error) {
	m.mu.RLock()
	md, err := m.lookupLocked(deviceID)
	probeDuration := m.qualityProbeDuration
	m.mu.RUnlock()
	if err != nil {
		return features.QualityReport{}, err
	}

	report, err := md.Driver.ProbeQuality(ctx, probeDuration)
	if err != nil {
		return features.QualityReport{}, err
	}

	m.mu.Lock()
	md.LastQuality = report
	md.LastCheckedAtNs = time.Now().UnixNano()
	m.mu.Unlock()

	m.recordAction(ctx, "get_signal_quality", deviceID, false)
	return report, nil
}

// SetDiscovered replaces the manager's view of currently-discovered
// devices, normally populated from a discovery.Scanner result.
func (m *Manager) SetDiscovered(devices []discovery.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovered = make(map[string]discovery.Device, len(devices))
	for _, d := range devices {
		m.discovered[d.DiscoveryID] = d
	}
}

// ListDiscovered returns the devices known from the most recent
// discovery scan.
func (m *Manager) ListDiscovered() []discovery.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]discovery.Device, 0, len(m.discovered))
	for _, d := range m.discovered {
		out = append(out, d)
	}
	return out
}

// CreateFromDiscovery registers a managed device from a previously
// discovered endpoint, building its driver via factory.
func (m *Manager) CreateFromDiscovery(ctx context.Context, discoveryID string, factory DriverFactory) (string, error) {
	m.mu.RLock()
	d, ok := m.discovered[discoveryID]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("devicemanager: discovery id %q not found", discoveryID)
	}

	drv, err := factory(d)
	if err != nil {
		return "", fmt.Errorf("devicemanager: build driver for %q: %w", discoveryID, err)
	}

	deviceID := d.DiscoveryID
	if err := m.AddDevice(deviceID, d.DeviceType, drv); err != nil {
		return "", err
	}
	m.recordAction(ctx, "create_from_discovery", deviceID, false)
	return deviceID, nil
}

// Device returns a snapshot of a registered device's state, or false if
// it is not registered.
func (m *Manager) Device(deviceID string) (ManagedDevice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.devices[deviceID]
	if !ok {
		return ManagedDevice{}, false
	}
	return *md, true
}

// Devices returns the ids of every registered device.
func (m *Manager) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	return ids
}
