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

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMetricsStruct(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Data Storage Metrics Struct Suite")
}

var _ = Describe("Metrics Struct", func() {
	var (
		metrics  *Metrics
		registry *prometheus.Registry
	)

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
		metrics = NewMetricsWithRegistry("ledger", "", registry)
	})

	Context("Metrics Creation", func() {
		It("should create metrics struct with all required metrics", func() {
			Expect(metrics).ToNot(BeNil())
			Expect(metrics.WritesTotal).ToNot(BeNil(), "WritesTotal should be initialized")
			Expect(metrics.WriteLagSeconds).ToNot(BeNil(), "WriteLagSeconds should be initialized")
			Expect(metrics.WriteDuration).ToNot(BeNil(), "WriteDuration should be initialized")
			Expect(metrics.ValidationFailures).ToNot(BeNil(), "ValidationFailures should be initialized")
		})

		It("should register metrics with custom registry", func() {
			metrics.WritesTotal.WithLabelValues(TableSessionEvents, StatusSuccess).Inc()
			metrics.WriteLagSeconds.WithLabelValues(TableSessionEvents).Observe(0.5)
			metrics.WriteDuration.WithLabelValues(TableSessionEvents).Observe(0.025)
			metrics.ValidationFailures.WithLabelValues("session_id", ValidationReasonRequired).Inc()

			families, err := registry.Gather()
			Expect(err).ToNot(HaveOccurred())

			Expect(families).To(HaveLen(4), "Registry should contain 4 metric families")

			metricNames := make(map[string]bool)
			for _, family := range families {
				metricNames[family.GetName()] = true
			}

			Expect(metricNames).To(HaveKey("ledger_writes_total"), "writes_total metric should exist")
			Expect(metricNames).To(HaveKey("ledger_write_lag_seconds"), "write_lag_seconds metric should exist")
			Expect(metricNames).To(HaveKey("ledger_write_duration_seconds"), "write_duration metric should exist")
			Expect(metricNames).To(HaveKey("ledger_validation_failures_total"), "validation_failures metric should exist")
		})
	})

	Context("Writes Total Metric", func() {
		It("should increment writes total with table and status labels", func() {
			metrics.WritesTotal.WithLabelValues(TableSessionEvents, StatusSuccess).Inc()

			families, err := registry.Gather()
			Expect(err).ToNot(HaveOccurred())

			var found bool
			for _, family := range families {
				if family.GetName() == "ledger_writes_total" {
					found = true
					Expect(family.GetMetric()).To(HaveLen(1), "Should have 1 label combination")
					metric := family.GetMetric()[0]
					Expect(metric.GetCounter().GetValue()).To(BeNumerically("==", 1))

					labels := metric.GetLabel()
					Expect(labels).To(HaveLen(2), "Should have 2 labels: table, status")

					labelMap := make(map[string]string)
					for _, label := range labels {
						labelMap[label.GetName()] = label.GetValue()
					}
					Expect(labelMap["table"]).To(Equal(TableSessionEvents))
					Expect(labelMap["status"]).To(Equal(StatusSuccess))
					break
				}
			}
			Expect(found).To(BeTrue(), "writes_total metric should exist in registry")
		})

		It("should support different statuses", func() {
			metrics.WritesTotal.WithLabelValues(TableSessionEvents, StatusSuccess).Inc()
			metrics.WritesTotal.WithLabelValues(TableSessionEvents, StatusFailure).Inc()

			families, err := registry.Gather()
			Expect(err).ToNot(HaveOccurred())

			for _, family := range families {
				if family.GetName() == "ledger_writes_total" {
					Expect(family.GetMetric()).To(HaveLen(2), "Should have 2 label combinations (2 statuses)")
				}
			}
		})
	})

	Context("Write Lag Seconds Metric", func() {
		It("should record write lag observations", func() {
			metrics.WriteLagSeconds.WithLabelValues(TableSessionEvents).Observe(0.5)
			metrics.WriteLagSeconds.WithLabelValues(TableSessionEvents).Observe(1.2)
			metrics.WriteLagSeconds.WithLabelValues(TableSessionEvents).Observe(0.8)

			families, err := registry.Gather()
			Expect(err).ToNot(HaveOccurred())

			var found bool
			for _, family := range families {
				if family.GetName() == "ledger_write_lag_seconds" {
					found = true
					Expect(family.GetMetric()).To(HaveLen(1), "Should have 1 label combination")
					metric := family.GetMetric()[0]

					Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically("==", 3))

					labels := metric.GetLabel()
					Expect(labels).To(HaveLen(1), "Should have 1 label: table")
					Expect(labels[0].GetName()).To(Equal("table"))
					Expect(labels[0].GetValue()).To(Equal(TableSessionEvents))
					break
				}
			}
			Expect(found).To(BeTrue(), "write_lag_seconds metric should exist in registry")
		})
	})

	Context("Write Duration Metric", func() {
		It("should record write duration observations", func() {
			metrics.WriteDuration.WithLabelValues(TableSessionEvents).Observe(0.025)
			metrics.WriteDuration.WithLabelValues(TableSessionEvents).Observe(0.050)

			families, err := registry.Gather()
			Expect(err).ToNot(HaveOccurred())

			var found bool
			for _, family := range families {
				if family.GetName() == "ledger_write_duration_seconds" {
					found = true
					metric := family.GetMetric()[0]
					Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically("==", 2))
					break
				}
			}
			Expect(found).To(BeTrue(), "write_duration metric should exist")
		})
	})

	Context("Validation Failures Metric", func() {
		It("should increment validation failures with field and reason labels", func() {
			metrics.ValidationFailures.WithLabelValues("session_id", ValidationReasonRequired).Inc()

			families, err := registry.Gather()
			Expect(err).ToNot(HaveOccurred())

			var found bool
			for _, family := range families {
				if family.GetName() == "ledger_validation_failures_total" {
					found = true
					Expect(family.GetMetric()).To(HaveLen(1))
					metric := family.GetMetric()[0]
					Expect(metric.GetCounter().GetValue()).To(BeNumerically("==", 1))

					labels := metric.GetLabel()
					labelMap := make(map[string]string)
					for _, label := range labels {
						labelMap[label.GetName()] = label.GetValue()
					}
					Expect(labelMap["field"]).To(Equal("session_id"))
					Expect(labelMap["reason"]).To(Equal(ValidationReasonRequired))
					break
				}
			}
			Expect(found).To(BeTrue())
		})
	})
})
