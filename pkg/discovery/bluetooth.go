package discovery

import (
	"context"
	"strings"
	"time"
)

// BluetoothAdvertisement is one advertised BLE service observed by a
// scan.
type BluetoothAdvertisement struct {
	Address string
	Name    string
	UUIDs   []string
	RSSI    int
}

// BluetoothScanner enumerates nearby BLE advertisements. No Bluetooth
// stack is vendored by this module, so this is an injectable seam (the
// host process supplies a real scanner; tests supply a fake).
type BluetoothScanner interface {
	Scan(ctx context.Context) ([]BluetoothAdvertisement, error)
}

// curatedBluetoothNames maps a known device name substring to its device
// type, per spec.md §4.3's "curated name/UUID table".
var curatedBluetoothNames = map[string]string{
	"Ganglion": "ganglion",
	"Muse":     "muse",
}

// BluetoothProber matches Bluetooth advertisements against a curated
// name/UUID table (spec.md §4.3).
type BluetoothProber struct {
	Scanner BluetoothScanner
}

func (p *BluetoothProber) Protocol() Protocol { return ProtocolBluetooth }

func (p *BluetoothProber) Probe(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if p.Scanner == nil {
		return nil, nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ads, err := p.Scanner.Scan(scanCtx)
	if err != nil {
		return nil, err
	}

	var found []Device
	for _, ad := range ads {
		deviceType, ok := matchCuratedName(ad.Name)
		if !ok {
			continue
		}
		rssi := ad.RSSI
		found = append(found, Device{
			DiscoveryID:  DiscoveryID(ProtocolBluetooth, ad.Address),
			DeviceType:   deviceType,
			Protocol:     ProtocolBluetooth,
			Endpoint:     ad.Address,
			RSSI:         &rssi,
			FriendlyName: ad.Name,
		})
	}
	return found, nil
}

func matchCuratedName(name string) (string, bool) {
	for substr, deviceType := range curatedBluetoothNames {
		if strings.Contains(name, substr) {
			return deviceType, true
		}
	}
	return "", false
}
