package discovery

import (
	"context"
	"os"
	"time"
)

// SyntheticProber always returns one device, gated on an env flag
// (spec.md §4.3), so CI and local development can exercise the full
// discovery→device-manager→ingestion path without real hardware.
type SyntheticProber struct {
	// EnvVar names the flag that gates this prober; empty defaults to
	// "NEURAL_ENGINE_SYNTHETIC_DEVICE".
	EnvVar string
}

func (p *SyntheticProber) Protocol() Protocol { return ProtocolSynthetic }

func (p *SyntheticProber) envVar() string {
	if p.EnvVar != "" {
		return p.EnvVar
	}
	return "NEURAL_ENGINE_SYNTHETIC_DEVICE"
}

func (p *SyntheticProber) Probe(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if os.Getenv(p.envVar()) == "" {
		return nil, nil
	}
	endpoint := "synthetic://default"
	return []Device{{
		DiscoveryID:  DiscoveryID(ProtocolSynthetic, endpoint),
		DeviceType:   "synthetic",
		Protocol:     ProtocolSynthetic,
		Endpoint:     endpoint,
		FriendlyName: "Synthetic Test Device",
	}}, nil
}
