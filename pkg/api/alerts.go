package api

import (
	"context"
	"sync"

	"github.com/neurascale/neural-engine/pkg/devicemanager"
)

// defaultAlertHistoryCapacity bounds how many HealthAlerts
// GET /v1/devices/health/alerts remembers, since devicemanager.Manager
// itself only fans alerts out to live subscribers (spec.md §4.4) and
// keeps no history of its own.
const defaultAlertHistoryCapacity = 256

// AlertHistory buffers the most recent HealthAlerts emitted by a
// devicemanager.Manager, so the control-plane API can serve
// GET /v1/devices/health/alerts without requiring a client to have been
// subscribed at the moment an alert fired.
type AlertHistory struct {
	mu       sync.Mutex
	capacity int
	alerts   []devicemanager.HealthAlert
}

// NewAlertHistory builds an AlertHistory with the given capacity (0
// selects defaultAlertHistoryCapacity).
func NewAlertHistory(capacity int) *AlertHistory {
	if capacity <= 0 {
		capacity = defaultAlertHistoryCapacity
	}
	return &AlertHistory{capacity: capacity}
}

func (h *AlertHistory) record(alert devicemanager.HealthAlert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, alert)
	if len(h.alerts) > h.capacity {
		h.alerts = h.alerts[len(h.alerts)-h.capacity:]
	}
}

// Snapshot returns a copy of the currently buffered alerts, oldest first.
func (h *AlertHistory) Snapshot() []devicemanager.HealthAlert {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]devicemanager.HealthAlert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

// Watch subscribes to manager's health alerts and records every one
// into h until ctx is done. Call as a goroutine at process start,
// alongside manager.RunHealthMonitor.
func (h *AlertHistory) Watch(ctx context.Context, manager *devicemanager.Manager) {
	ch := manager.SubscribeHealthAlerts(ctx)
	for alert := range ch {
		h.record(alert)
	}
}
