package discovery

import (
	"context"
	"time"
)

// SerialPortLister enumerates tty/COM ports and reads a short probe
// response from each. No serial enumeration library is vendored by this
// module (ambient OS port listing belongs to whatever deployment target
// builds the binary), so this is an injectable seam rather than a direct
// OS call.
type SerialPortLister interface {
	ListPorts() ([]string, error)
	ProbeSignature(ctx context.Context, port string, timeout time.Duration) (deviceType string, matched bool, err error)
}

// SerialProber enumerates serial ports and attempts a non-destructive
// protocol-signature probe against each (spec.md §4.3).
type SerialProber struct {
	Lister SerialPortLister
}

func (p *SerialProber) Protocol() Protocol { return ProtocolSerial }

func (p *SerialProber) Probe(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if p.Lister == nil {
		return nil, nil
	}
	ports, err := p.Lister.ListPorts()
	if err != nil {
		return nil, err
	}

	var found []Device
	for _, port := range ports {
		deviceType, matched, err := p.Lister.ProbeSignature(ctx, port, timeout)
		if err != nil || !matched {
			continue
		}
		found = append(found, Device{
			DiscoveryID:  DiscoveryID(ProtocolSerial, port),
			DeviceType:   deviceType,
			Protocol:     ProtocolSerial,
			Endpoint:     port,
			FriendlyName: deviceType + " on " + port,
		})
	}
	return found, nil
}
