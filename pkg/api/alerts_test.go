package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurascale/neural-engine/pkg/api"
	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/devicemanager"
	"github.com/neurascale/neural-engine/pkg/features"
)

type fakeAlertLedger struct{}

func (fakeAlertLedger) RecordAction(context.Context, string, string, string, bool) error { return nil }

type fakeAlertDriver struct {
	quality features.QualityReport
}

func (d *fakeAlertDriver) Connect(context.Context, device.ConnectParams) error { return nil }
func (d *fakeAlertDriver) Disconnect(context.Context) error                   { return nil }
func (d *fakeAlertDriver) Describe() device.DeviceInfo {
	return device.DeviceInfo{DeviceType: "fake"}
}
func (d *fakeAlertDriver) StartStream(context.Context, device.Sink) error { return nil }
func (d *fakeAlertDriver) StopStream(context.Context) error               { return nil }
func (d *fakeAlertDriver) CheckImpedance(context.Context) (map[string]float64, error) {
	return nil, nil
}
func (d *fakeAlertDriver) ProbeQuality(context.Context, time.Duration) (features.QualityReport, error) {
	return d.quality, nil
}

func TestAlertHistory_WatchBuffersAlertsFromManager(t *testing.T) {
	mgr := devicemanager.New(fakeAlertLedger{}, nil, testLogger(),
		devicemanager.WithHealthInterval(5*time.Millisecond),
		devicemanager.WithDegradedThreshold(1),
		devicemanager.WithQualityProbeDuration(time.Millisecond),
	)
	drv := &fakeAlertDriver{quality: features.QualityReport{Overall: 0.05}}
	require.NoError(t, mgr.AddDevice("dev-1", "fake", drv))
	require.NoError(t, mgr.Connect(context.Background(), "dev-1", device.ConnectParams{}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	history := api.NewAlertHistory(4)
	go history.Watch(ctx, mgr)
	go mgr.RunHealthMonitor(ctx)

	require.Eventually(t, func() bool {
		return len(history.Snapshot()) > 0
	}, 500*time.Millisecond, 10*time.Millisecond)

	snap := history.Snapshot()
	assert.Equal(t, "dev-1", snap[0].DeviceID)
}

func TestAlertHistory_SnapshotEvictsOldestBeyondCapacity(t *testing.T) {
	mgr := devicemanager.New(fakeAlertLedger{}, nil, testLogger(),
		devicemanager.WithHealthInterval(5*time.Millisecond),
		devicemanager.WithDegradedThreshold(1),
		devicemanager.WithQualityProbeDuration(time.Millisecond),
	)
	for _, id := range []string{"dev-a", "dev-b", "dev-c"} {
		drv := &fakeAlertDriver{quality: features.QualityReport{Overall: 0.05}}
		require.NoError(t, mgr.AddDevice(id, "fake", drv))
		require.NoError(t, mgr.Connect(context.Background(), id, device.ConnectParams{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	history := api.NewAlertHistory(2)
	go history.Watch(ctx, mgr)
	go mgr.RunHealthMonitor(ctx)

	require.Eventually(t, func() bool {
		return len(history.Snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	assert.Len(t, history.Snapshot(), 2)
}
