package devicemanager

import (
	"context"
	"time"

	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/metrics"
)

// HealthState buckets a device's current health beyond the finer-grained
// features.QualityLevel (spec.md §4.4: "enters degraded or worse").
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthCritical HealthState = "critical"
)

// HealthAlert is emitted the instant a device crosses into N
// consecutive degraded-or-worse health checks (spec.md §4.4).
type HealthAlert struct {
	DeviceID             string
	State                HealthState
	ConsecutiveIntervals int
	AtTsNs               int64
}

func healthStateForLevel(level features.QualityLevel) HealthState {
	switch level {
	case features.QualityExcellent, features.QualityGood:
		return HealthHealthy
	case features.QualityFair:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// SubscribeHealthAlerts registers a new alert subscriber, unsubscribed
// automatically when ctx is done.
func (m *Manager) SubscribeHealthAlerts(ctx context.Context) <-chan HealthAlert {
	ch := make(chan HealthAlert, 16)

	m.healthSubscriberMu.Lock()
	m.healthSubscribers = append(m.healthSubscribers, ch)
	m.healthSubscriberMu.Unlock()

	go func() {
		<-ctx.Done()
		m.healthSubscriberMu.Lock()
		defer m.healthSubscriberMu.Unlock()
		for i, sub := range m.healthSubscribers {
			if sub == ch {
				m.healthSubscribers = append(m.healthSubscribers[:i], m.healthSubscribers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (m *Manager) publishHealthAlert(alert HealthAlert) {
	m.healthSubscriberMu.Lock()
	defer m.healthSubscriberMu.Unlock()
	for _, sub := range m.healthSubscribers {
		select {
		case sub <- alert:
		default:
		}
	}
}

// RunHealthMonitor ticks at the configured health interval, probing
// every connected-or-streaming device's signal quality and emitting a
// HealthAlert the instant a device crosses into N consecutive
// degraded-or-worse checks. It blocks until ctx is done.
func (m *Manager) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runHealthTick(ctx)
		}
	}
}

func (m *Manager) runHealthTick(ctx context.Context) {
	m.mu.RLock()
	candidates := make([]*ManagedDevice, 0, len(m.devices))
	for _, md := range m.devices {
		state := md.FSM.State()
		if state == device.StateConnected || state == device.StateStreaming || state == device.StatePaused {
			candidates = append(candidates, md)
		}
	}
	m.mu.RUnlock()

	for _, md := range candidates {
		report, err := md.Driver.ProbeQuality(ctx, m.qualityProbeDuration)
		if err != nil {
			continue
		}

		level := features.LevelForScore(report.Overall)
		state := healthStateForLevel(level)

		m.mu.Lock()
		md.LastQuality = report
		md.LastCheckedAtNs = time.Now().UnixNano()
		if state == HealthHealthy {
			md.ConsecutiveDegraded = 0
		} else {
			md.ConsecutiveDegraded++
		}
		consecutive := md.ConsecutiveDegraded
		deviceID := md.DeviceID
		m.mu.Unlock()

		if consecutive == m.degradedThreshold {
			metrics.RecordAlert()
			m.publishHealthAlert(HealthAlert{
				DeviceID:             deviceID,
				State:                state,
				ConsecutiveIntervals: consecutive,
				AtTsNs:               time.Now().UnixNano(),
			})
		}
	}
}
