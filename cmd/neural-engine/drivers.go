package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/device/lsl"
	"github.com/neurascale/neural-engine/pkg/device/synthetic"
	"github.com/neurascale/neural-engine/pkg/devicemanager"
	"github.com/neurascale/neural-engine/pkg/discovery"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// defaultRelayChannelCount is the channel count assumed for a relay
// device until its first Describe() call; websocket relay endpoints
// don't advertise a channel count at discovery time the way a
// board-specific driver's spec sheet does.
const defaultRelayChannelCount = 8

func relayChannels(n int) []sample.Channel {
	channels := make([]sample.Channel, n)
	for i := range channels {
		channels[i] = sample.Channel{
			ID:    fmt.Sprintf("ch%d", i),
			Label: fmt.Sprintf("relay-CH%d", i+1),
			Kind:  sample.ChannelKindNeural,
			Unit:  "uV",
		}
	}
	return channels
}

func newRelayDriver(d discovery.Device) *lsl.Driver {
	return lsl.New(lsl.Config{
		DeviceID:       d.DiscoveryID,
		StreamName:     d.FriendlyName,
		DataType:       sample.DataTypeEEG,
		Channels:       relayChannels(defaultRelayChannelCount),
		SamplingRateHz: 250,
		Dial:           dialRelay,
	})
}

// dialRelay opens a websocket connection to a discovered endpoint,
// adapting gorilla/websocket's (conn, response, error) Dial to the
// single-error shape pkg/device/lsl.Config.Dial expects.
func dialRelay(endpoint string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, http.Header{})
	return conn, err
}

// newDriverFactory returns the devicemanager.DriverFactory the control
// plane's POST /v1/devices endpoint uses to turn a discovery.Device into
// a connectable Driver (spec.md §4.3/§4.4).
//
// Only the synthetic family and the websocket-relay families (lsl,
// bluetooth, mdns — every protocol this module's lsl driver's framing
// already covers, per its doc comment) have a concrete backend in this
// module; the serial family's Port is a narrowed io.ReadWriteCloser
// seam with no vendored OS serial library behind it (see DESIGN.md), so
// it returns an error rather than a half-working driver.
func newDriverFactory() devicemanager.DriverFactory {
	return func(d discovery.Device) (device.Driver, error) {
		switch d.Protocol {
		case discovery.ProtocolSynthetic:
			return synthetic.New(synthetic.Config{DeviceID: d.DiscoveryID}), nil
		case discovery.ProtocolLSL, discovery.ProtocolBluetooth, discovery.ProtocolMDNS:
			return newRelayDriver(d), nil
		default:
			return nil, fmt.Errorf("neural-engine: no driver backend available for protocol %q", d.Protocol)
		}
	}
}
