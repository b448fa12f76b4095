package discovery

import (
	"context"
	"time"
)

// MDNSService is one mDNS/DNS-SD service record observed on the local
// network.
type MDNSService struct {
	Instance   string
	Host       string
	Port       int
	ServiceTag string
	TXT        map[string]string
}

// MDNSBrowser enumerates services advertised under a given service type
// (e.g. "_neurascale._tcp"). No mDNS library is vendored by this module,
// so this is an injectable seam over whatever resolver the host process
// wires in.
type MDNSBrowser interface {
	Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]MDNSService, error)
}

// mdnsServiceTypes are the service types this prober browses, per
// spec.md §4.3: the neural-engine's own advertisement plus the
// biosignal-SDK bridge services it can discover secondhand.
var mdnsServiceTypes = []string{
	"_neurascale._tcp",
	"_biosignal-sdk._tcp",
}

// MDNSProber discovers devices advertised via mDNS/DNS-SD (spec.md
// §4.3).
type MDNSProber struct {
	Browser MDNSBrowser
}

func (p *MDNSProber) Protocol() Protocol { return ProtocolMDNS }

func (p *MDNSProber) Probe(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if p.Browser == nil {
		return nil, nil
	}

	var found []Device
	for _, serviceType := range mdnsServiceTypes {
		services, err := p.Browser.Browse(ctx, serviceType, timeout)
		if err != nil {
			return found, err
		}
		for _, svc := range services {
			endpoint := svc.Host
			found = append(found, Device{
				DiscoveryID:  DiscoveryID(ProtocolMDNS, serviceType+"|"+svc.Instance+"|"+svc.Host),
				DeviceType:   svc.TXT["device_type"],
				Protocol:     ProtocolMDNS,
				Endpoint:     endpoint,
				FriendlyName: svc.Instance,
			})
		}
	}
	return found, nil
}
