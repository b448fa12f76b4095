// Package synthetic implements a deterministic, PRNG-seeded driver used
// for tests and CI (spec.md §4.2): it never touches real hardware, but
// otherwise participates in the same lifecycle and streaming contract
// every other driver does.
package synthetic

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// Config configures a synthetic driver instance.
type Config struct {
	DeviceID       string
	Seed           int64
	ChannelCount   int
	SamplingRateHz int
	ChunkSamples   int
	// ChunkInterval is how often StartStream emits a chunk; zero selects
	// a rate matching ChunkSamples/SamplingRateHz.
	ChunkInterval time.Duration
}

// Driver generates deterministic sine-plus-noise EEG-shaped data from a
// seeded PRNG, so the same Config always produces the same samples.
type Driver struct {
	cfg Config
	rng *rand.Rand

	mu        sync.Mutex
	streaming bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	seq       uint64
}

// New builds a synthetic Driver. A zero ChannelCount defaults to 8, a
// zero SamplingRateHz defaults to 250, and a zero ChunkSamples defaults
// to SamplingRateHz/20 (≈50ms chunks, matching the pipeline's default
// window size).
func New(cfg Config) *Driver {
	if cfg.ChannelCount == 0 {
		cfg.ChannelCount = 8
	}
	if cfg.SamplingRateHz == 0 {
		cfg.SamplingRateHz = 250
	}
	if cfg.ChunkSamples == 0 {
		cfg.ChunkSamples = cfg.SamplingRateHz / 20
		if cfg.ChunkSamples == 0 {
			cfg.ChunkSamples = 1
		}
	}
	if cfg.ChunkInterval == 0 {
		cfg.ChunkInterval = time.Duration(float64(cfg.ChunkSamples) / float64(cfg.SamplingRateHz) * float64(time.Second))
	}
	return &Driver{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

var _ device.Driver = (*Driver)(nil)

func (d *Driver) Connect(ctx context.Context, params device.ConnectParams) error {
	return nil
}

func (d *Driver) Disconnect(ctx context.Context) error {
	return d.StopStream(ctx)
}

func (d *Driver) Describe() device.DeviceInfo {
	channels := make([]sample.Channel, d.cfg.ChannelCount)
	for i := range channels {
		channels[i] = sample.Channel{
			ID:    channelID(i),
			Label: channelID(i),
			Kind:  sample.ChannelKindNeural,
			Unit:  "uV",
		}
	}
	return device.DeviceInfo{
		DeviceType:             "synthetic",
		Channels:               channels,
		SamplingRateHz:         d.cfg.SamplingRateHz,
		SupportsImpedanceCheck: true,
		SupportsBattery:        false,
	}
}

func (d *Driver) StartStream(ctx context.Context, sink device.Sink) error {
	d.mu.Lock()
	if d.streaming {
		d.mu.Unlock()
		return &device.DriverError{Kind: device.ErrKindAlreadyStreaming, Op: "start_stream"}
	}
	d.streaming = true
	d.stopCh = make(chan struct{})
	stopCh := d.stopCh
	d.mu.Unlock()

	d.wg.Add(1)
	go d.generate(ctx, sink, stopCh)
	return nil
}

func (d *Driver) StopStream(ctx context.Context) error {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return nil
	}
	d.streaming = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Driver) generate(ctx context.Context, sink device.Sink, stopCh chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			sink.Accept(d.nextChunk())
		}
	}
}

// nextChunk synthesizes one chunk: a 10 Hz alpha-band sine per channel
// plus Gaussian noise, scaled to a plausible EEG amplitude.
func (d *Driver) nextChunk() *sample.Chunk {
	d.mu.Lock()
	seq := d.seq
	d.seq++
	d.mu.Unlock()

	now := time.Now().UnixNano()
	samples := make([][]float32, d.cfg.ChannelCount)
	for c := 0; c < d.cfg.ChannelCount; c++ {
		row := make([]float32, d.cfg.ChunkSamples)
		for i := 0; i < d.cfg.ChunkSamples; i++ {
			t := float64(int(seq)*d.cfg.ChunkSamples+i) / float64(d.cfg.SamplingRateHz)
			signal := 20.0*math.Sin(2*math.Pi*10*t) + d.rng.NormFloat64()*5.0
			row[i] = float32(signal)
		}
		samples[c] = row
	}

	channels := d.Describe().Channels
	return &sample.Chunk{
		SessionID:      d.cfg.DeviceID + "-session",
		DeviceID:       d.cfg.DeviceID,
		DataType:       sample.DataTypeEEG,
		SamplingRateHz: d.cfg.SamplingRateHz,
		Channels:       channels,
		Samples:        samples,
		ChunkSeq:       seq,
		DeviceTsNs:     now,
		IngestTsNs:     now,
	}
}

func (d *Driver) CheckImpedance(ctx context.Context) (map[string]float64, error) {
	result := make(map[string]float64, d.cfg.ChannelCount)
	for i := 0; i < d.cfg.ChannelCount; i++ {
		result[channelID(i)] = 2000 + d.rng.Float64()*3000
	}
	return result, nil
}

func (d *Driver) ProbeQuality(ctx context.Context, duration time.Duration) (features.QualityReport, error) {
	channels := make([]features.ChannelQuality, d.cfg.ChannelCount)
	for i := 0; i < d.cfg.ChannelCount; i++ {
		channels[i] = features.ScoreChannel(channelID(i), 25, 0.02, 0.01, nil, features.QualityWeights{})
	}
	return features.ScoreReport(channels), nil
}

func channelID(i int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if i < len(letters) {
		return "CH" + string(letters[i])
	}
	return "CH" + string(rune('A'+i%26)) + string(rune('0'+i/26))
}
