// Package discovery runs the protocol-bus scanner that enumerates
// reachable BCI devices over serial, Bluetooth, mDNS, LSL, and a
// synthetic probe (spec.md §4.3). A partial failure in one protocol
// never aborts the whole scan; it is recorded alongside whatever other
// protocols did return.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Protocol names a discovery probe.
type Protocol string

const (
	ProtocolSerial    Protocol = "serial"
	ProtocolBluetooth Protocol = "bluetooth"
	ProtocolMDNS      Protocol = "mdns"
	ProtocolLSL       Protocol = "lsl"
	ProtocolSynthetic Protocol = "synthetic"
)

// Device is a single discovered endpoint (spec.md §4.3).
type Device struct {
	DiscoveryID  string
	DeviceType   string
	Protocol     Protocol
	Endpoint     string
	RSSI         *int
	FriendlyName string
}

// DiscoveryID derives a discovery_id stable across scans for the same
// physical endpoint: a protocol is namespaced so the same endpoint
// string under two protocols never collides.
func DiscoveryID(protocol Protocol, endpoint string) string {
	sum := sha256.Sum256([]byte(string(protocol) + "|" + endpoint))
	return hex.EncodeToString(sum[:])[:16]
}

// Prober is one protocol's probe implementation. It returns the devices
// it found; a non-nil error is recorded against this protocol without
// aborting the other probes.
type Prober interface {
	Protocol() Protocol
	Probe(ctx context.Context, timeout time.Duration) ([]Device, error)
}

// ProtocolError records one protocol's scan failure, returned alongside
// whatever other protocols' results succeeded.
type ProtocolError struct {
	Protocol Protocol
	Err      error
}

// ScanResult is the outcome of one Scanner.Scan call.
type ScanResult struct {
	Devices []Device
	Errors  []ProtocolError
}

// Scanner runs a configured set of Probers concurrently, merging results
// and partial failures.
type Scanner struct {
	probers []Prober
}

// New builds a Scanner over the given probers.
func New(probers ...Prober) *Scanner {
	return &Scanner{probers: probers}
}

// Scan runs every configured probe concurrently with the same timeout,
// returning whatever devices were found and per-protocol errors for
// probes that failed (spec.md §4.3: "partial protocol failures never
// abort the whole scan").
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) ScanResult {
	var (
		mu      sync.Mutex
		devices []Device
		errs    []ProtocolError
		wg      sync.WaitGroup
	)

	for _, p := range s.probers {
		wg.Add(1)
		go func(p Prober) {
			defer wg.Done()
			found, err := p.Probe(ctx, timeout)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, ProtocolError{Protocol: p.Protocol(), Err: err})
			}
			devices = append(devices, found...)
		}(p)
	}

	wg.Wait()
	return ScanResult{Devices: devices, Errors: errs}
}

// QuickScan is a convenience one-shot scan with the given timeout,
// returning just the devices found (spec.md §4.3 "quick_scan(timeout)").
func (s *Scanner) QuickScan(ctx context.Context, timeout time.Duration) []Device {
	return s.Scan(ctx, timeout).Devices
}

// EventStream subscribes to discovery events: every scan this Scanner
// runs (via ScanLoop) is published to every subscriber's channel.
type EventStream struct {
	mu          sync.Mutex
	subscribers []chan Device
}

// Subscribe registers a new subscriber channel, buffered to avoid
// blocking the scan loop on a slow consumer. Callers should drain it
// until the provided context is done.
func (e *EventStream) Subscribe(ctx context.Context) <-chan Device {
	ch := make(chan Device, 64)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subscribers {
			if sub == ch {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (e *EventStream) publish(d Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.subscribers {
		select {
		case sub <- d:
		default:
		}
	}
}

// ScanLoop runs Scan on interval until ctx is done, publishing every
// discovered device to stream's subscribers.
func (s *Scanner) ScanLoop(ctx context.Context, interval time.Duration, probeTimeout time.Duration, stream *EventStream) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.Scan(ctx, probeTimeout)
			for _, d := range result.Devices {
				stream.publish(d)
			}
		}
	}
}
