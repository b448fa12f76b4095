/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the ledger's write-path Prometheus instruments. A
// namespace/subsystem pair lets the ledger and the control-plane API each
// mount their own copy without colliding in a shared registry.
type Metrics struct {
	WritesTotal        *prometheus.CounterVec
	WriteLagSeconds    *prometheus.HistogramVec
	WriteDuration      *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec
}

// NewMetricsWithRegistry constructs a Metrics and registers it against
// registry, so tests can use a private prometheus.NewRegistry() and avoid
// the "duplicate metrics collector registration" panic that a shared
// DefaultRegisterer would otherwise cause across parallel test runs.
func NewMetricsWithRegistry(namespace, subsystem string, registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "writes_total",
			Help:      "Total ledger event writes, by table and outcome.",
		}, []string{"table", "status"}),
		WriteLagSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_lag_seconds",
			Help:      "Seconds between event occurrence and ledger write.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_duration_seconds",
			Help:      "Duration of a single ledger store write.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validation_failures_total",
			Help:      "Ledger event validation failures, by field and reason.",
		}, []string{"field", "reason"}),
	}

	registry.MustRegister(m.WritesTotal, m.WriteLagSeconds, m.WriteDuration, m.ValidationFailures)
	return m
}
