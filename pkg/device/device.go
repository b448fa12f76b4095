// Package device defines the uniform driver interface every BCI device
// family implements (spec.md §4.2), and the lifecycle FSM that manages a
// driver's connection state with exponential jittered backoff.
package device

import (
	"context"
	"time"

	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// ErrKind classifies a driver operation failure.
type ErrKind string

const (
	ErrKindNotFound         ErrKind = "not_found"
	ErrKindPermissionDenied ErrKind = "permission_denied"
	ErrKindAlreadyInUse     ErrKind = "already_in_use"
	ErrKindProtocolError    ErrKind = "protocol_error"
	ErrKindUnsupported      ErrKind = "unsupported"
	ErrKindAlreadyStreaming ErrKind = "already_streaming"
	ErrKindHardwareError    ErrKind = "hardware_error"
)

// DriverError is the error type every Driver method returns.
type DriverError struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return "device: " + e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
	}
	return "device: " + e.Op + ": " + string(e.Kind)
}

func (e *DriverError) Unwrap() error { return e.Err }

func newErr(op string, kind ErrKind, cause error) *DriverError {
	return &DriverError{Kind: kind, Op: op, Err: cause}
}

// ConnectParams carries driver-specific connection parameters (port
// name, address, stream name, ...). Drivers type-assert the fields they
// need and ignore the rest.
type ConnectParams struct {
	Endpoint string
	Options  map[string]string
}

// DeviceInfo describes a connected device's fixed characteristics.
type DeviceInfo struct {
	DeviceType             string
	Channels               []sample.Channel
	SamplingRateHz         int
	SupportsImpedanceCheck bool
	SupportsBattery        bool
}

// Sink receives SampleChunks asynchronously once a driver's stream is
// started (spec.md §4.2 "start_stream(sink)").
type Sink interface {
	Accept(chunk *sample.Chunk)
	// GapDetected is called when a driver detects it dropped samples,
	// instead of silently omitting them (spec.md §4.2 "drivers never
	// silently drop samples").
	GapDetected(deviceID string, atTsNs int64, approxSamples int)
}

// Driver is the capability set every device family implements
// (spec.md §4.2).
type Driver interface {
	Connect(ctx context.Context, params ConnectParams) error
	Disconnect(ctx context.Context) error
	Describe() DeviceInfo
	StartStream(ctx context.Context, sink Sink) error
	StopStream(ctx context.Context) error
	CheckImpedance(ctx context.Context) (map[string]float64, error)
	ProbeQuality(ctx context.Context, duration time.Duration) (features.QualityReport, error)
}
