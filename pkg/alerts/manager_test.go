/*
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

package alerts_test

import (
	"time"

	"github.com/google/uuid"

	"github.com/entangleops/qam/pkg/alerts"
	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/notify"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manager", func() {
	var (
		sink    *notify.InMemorySink
		manager *alerts.Manager
		now     time.Time
	)

	violation := func(agreementID string, metric v1.SLAMetric, severity v1.ViolationSeverity) v1.Violation {
		return v1.Violation{
			ID:          uuid.NewString(),
			AgreementID: agreementID,
			ExecutionID: "exec-1",
			Metric:      metric,
			Severity:    severity,
			Threshold:   0.05,
			Actual:      0.12,
			Deviation:   1.4,
			CreatedAt:   now,
		}
	}

	BeforeEach(func() {
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		sink = notify.NewInMemorySink()
		manager = alerts.NewManager(alerts.Config{}, sink, alerts.WithClock(func() time.Time { return now }))
	})

	It("should deliver an enqueued violation", func() {
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityMedium))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())
		Expect(manager.QueueDepth()).To(Equal(0))

		messages := sink.Messages()
		Expect(messages).To(HaveLen(1))
		Expect(messages[0].Severity).To(Equal(v1.SeverityMedium))
		Expect(messages[0].Subject).To(ContainSubstring("sla-1"))
	})

	It("should deliver exactly one alert for duplicates inside the cooldown", func() {
		for i := 0; i < 4; i++ {
			manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityMedium))
		}
		Expect(manager.ProcessQueue(ctx)).To(Succeed())
		Expect(sink.Messages()).To(HaveLen(1))
	})

	It("should not suppress violations differing in metric or severity", func() {
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityMedium))
		manager.Enqueue(violation("sla-1", v1.MetricFidelity, v1.SeverityMedium))
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityHigh))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())
		Expect(sink.Messages()).To(HaveLen(3))
	})

	It("should escalate the composite severity at three correlated alerts", func() {
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityLow))
		manager.Enqueue(violation("sla-1", v1.MetricFidelity, v1.SeverityLow))
		manager.Enqueue(violation("sla-1", v1.MetricSuccessProbability, v1.SeverityLow))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())

		messages := sink.Messages()
		Expect(messages).To(HaveLen(3))
		Expect(messages[0].Severity).To(Equal(v1.SeverityLow))
		Expect(messages[1].Severity).To(Equal(v1.SeverityLow))
		Expect(messages[2].Severity).To(Equal(v1.SeverityMedium))
	})

	It("should escalate twice at five correlated alerts", func() {
		metrics := []v1.SLAMetric{
			v1.MetricErrorRate, v1.MetricFidelity, v1.MetricSuccessProbability,
			v1.MetricQuantumVolume, v1.MetricGateErrorRate,
		}
		for _, metric := range metrics {
			manager.Enqueue(violation("sla-1", metric, v1.SeverityLow))
		}
		Expect(manager.ProcessQueue(ctx)).To(Succeed())

		messages := sink.Messages()
		Expect(messages).To(HaveLen(5))
		Expect(messages[4].Severity).To(Equal(v1.SeverityHigh))
	})

	It("should start a fresh correlation window per agreement", func() {
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityLow))
		manager.Enqueue(violation("sla-2", v1.MetricFidelity, v1.SeverityLow))
		manager.Enqueue(violation("sla-1", v1.MetricFidelity, v1.SeverityLow))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())

		for _, msg := range sink.Messages() {
			Expect(msg.Severity).To(Equal(v1.SeverityLow))
		}
	})

	It("should reset the correlation window once it elapses", func() {
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityLow))
		manager.Enqueue(violation("sla-1", v1.MetricFidelity, v1.SeverityLow))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())

		now = now.Add(2 * time.Minute)
		manager.Enqueue(violation("sla-1", v1.MetricSuccessProbability, v1.SeverityLow))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())

		messages := sink.Messages()
		Expect(messages).To(HaveLen(3))
		Expect(messages[2].Severity).To(Equal(v1.SeverityLow))
	})

	It("should route severities to their channels", func() {
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityCritical))
		manager.Enqueue(violation("sla-2", v1.MetricErrorRate, v1.SeverityHigh))
		manager.Enqueue(violation("sla-3", v1.MetricErrorRate, v1.SeverityMedium))
		manager.Enqueue(violation("sla-4", v1.MetricErrorRate, v1.SeverityLow))
		Expect(manager.ProcessQueue(ctx)).To(Succeed())

		messages := sink.Messages()
		Expect(messages[0].Channel).To(Equal(notify.ChannelTicket))
		Expect(messages[1].Channel).To(Equal(notify.ChannelEmail))
		Expect(messages[2].Channel).To(Equal(notify.ChannelChat))
		Expect(messages[3].Channel).To(Equal(notify.ChannelChat))
	})

	It("should requeue the violation when delivery fails", func() {
		sink.FailTimes = 1
		manager.Enqueue(violation("sla-1", v1.MetricErrorRate, v1.SeverityMedium))
		Expect(manager.ProcessQueue(ctx)).ToNot(Succeed())
		Expect(manager.QueueDepth()).To(Equal(1))

		Expect(manager.ProcessQueue(ctx)).To(Succeed())
		Expect(sink.Messages()).To(HaveLen(1))
	})

	It("should consume violation events off the stream", func() {
		stream := events.NewStream()
		stream.Subscribe(manager)
		v := violation("sla-1", v1.MetricErrorRate, v1.SeverityHigh)
		stream.Publish(ctx, events.Event{
			Kind:      events.KindViolationDetected,
			SubjectID: "dep-1",
			Violation: &v,
		})
		Expect(manager.QueueDepth()).To(Equal(1))
	})
})
