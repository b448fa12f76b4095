package discovery

import (
	"context"
	"time"
)

// lslStreamTypes are the LSL stream types this prober looks for
// (spec.md §4.3).
var lslStreamTypes = map[string]bool{
	"EEG":    true,
	"ECoG":   true,
	"Marker": true,
}

// LSLStreamInfo describes one resolved LSL outlet.
type LSLStreamInfo struct {
	Name       string
	Type       string
	SourceID   string
	HostName   string
	UID        string
	ChannelCnt int
}

// LSLResolver resolves currently-advertised LSL streams. LSL has no Go
// client (spec.md's device driver for it is a websocket relay, see
// pkg/device/lsl), so stream resolution is likewise an injectable seam.
type LSLResolver interface {
	ResolveStreams(ctx context.Context, timeout time.Duration) ([]LSLStreamInfo, error)
}

// LSLProber discovers LSL outlets whose stream type is one this system
// ingests (spec.md §4.3: "type ∈ {EEG, ECoG, Marker}").
type LSLProber struct {
	Resolver LSLResolver
}

func (p *LSLProber) Protocol() Protocol { return ProtocolLSL }

func (p *LSLProber) Probe(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if p.Resolver == nil {
		return nil, nil
	}

	streams, err := p.Resolver.ResolveStreams(ctx, timeout)
	if err != nil {
		return nil, err
	}

	var found []Device
	for _, s := range streams {
		if !lslStreamTypes[s.Type] {
			continue
		}
		endpoint := s.UID
		if endpoint == "" {
			endpoint = s.SourceID + "@" + s.HostName
		}
		found = append(found, Device{
			DiscoveryID:  DiscoveryID(ProtocolLSL, endpoint),
			DeviceType:   "lsl:" + s.Type,
			Protocol:     ProtocolLSL,
			Endpoint:     endpoint,
			FriendlyName: s.Name,
		})
	}
	return found, nil
}
