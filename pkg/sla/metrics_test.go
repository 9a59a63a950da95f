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

package sla_test

import (
	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/sla"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func execWithConfidences(kind v1.BackendKind, confidences ...float64) *v1.Execution {
	return &v1.Execution{
		ID:      "exec-1",
		Backend: v1.BackendMetadata{Kind: kind, GateErrorRate: 0.001},
		Results: &v1.ExecutionResults{
			Outcomes: []v1.MeasurementOutcome{
				{Bitstring: "0000", Count: 80, Probability: 0.8},
				{Bitstring: "0001", Count: 20, Probability: 0.2},
			},
			ShotConfidences: confidences,
			TotalShots:      len(confidences),
		},
	}
}

var _ = Describe("ComputeMetric", func() {
	It("should compute the error rate as the low-confidence shot fraction", func() {
		exec := execWithConfidences(v1.BackendQPU, 0.9, 0.9, 0.3, 0.4, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricErrorRate, Threshold: 0.25, Method: v1.MethodSampling,
			FallbackChain: []v1.BackendKind{v1.BackendQPU},
		}, exec, 4, 20)
		Expect(result.Value).To(BeNumerically("~", 0.2, 1e-9))
		Expect(result.Passed).To(BeTrue())
	})

	It("should fail the error rate when it exceeds the threshold", func() {
		exec := execWithConfidences(v1.BackendQPU, 0.3, 0.3, 0.9, 0.9)
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricErrorRate, Threshold: 0.25, Method: v1.MethodSampling,
		}, exec, 4, 20)
		Expect(result.Value).To(BeNumerically("~", 0.5, 1e-9))
		Expect(result.Passed).To(BeFalse())
	})

	It("should report classical fidelity as perfect", func() {
		exec := execWithConfidences(v1.BackendClassical, 0.9, 0.9)
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricFidelity, Threshold: 0.99, Method: v1.MethodProcessTomography,
		}, exec, 4, 20)
		Expect(result.Value).To(Equal(1.0))
		Expect(result.Passed).To(BeTrue())
		Expect(result.Confidence).To(Equal(0.95))
	})

	It("should discount quantum fidelity by the backend noise floor", func() {
		exec := execWithConfidences(v1.BackendEmulator, 0.9, 0.9, 0.9, 0.3)
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricFidelity, Threshold: 0.7, Method: v1.MethodProcessTomography,
		}, exec, 4, 20)
		// 1 - 0.25 error rate - (0.005 + 0.001) noise floor
		Expect(result.Value).To(BeNumerically("~", 0.744, 1e-9))
		Expect(result.Passed).To(BeTrue())
	})

	It("should compute success probability from the dominant outcome", func() {
		exec := execWithConfidences(v1.BackendEmulator, 0.9, 0.9)
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricSuccessProbability, Threshold: 0.75, Method: v1.MethodSampling,
		}, exec, 4, 20)
		Expect(result.Value).To(Equal(0.8))
		Expect(result.Passed).To(BeTrue())
	})

	It("should derive quantum volume from circuit dimensions and backend class", func() {
		exec := execWithConfidences(v1.BackendQPU, 0.9)
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricQuantumVolume, Threshold: 10, Method: v1.MethodRandomizedBenchmarking,
		}, exec, 16, 32)
		Expect(result.Value).To(BeNumerically("~", 12.8, 1e-9))
		Expect(result.Passed).To(BeTrue())
		Expect(result.Confidence).To(Equal(0.90))
	})

	It("should read gate error rate and coherence time from backend calibration", func() {
		exec := &v1.Execution{Backend: v1.BackendMetadata{Kind: v1.BackendQPU, GateErrorRate: 0.004, CoherenceTimeMicros: 120}}
		gate := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricGateErrorRate, Threshold: 0.005, Method: v1.MethodBackendCalibration,
		}, exec, 4, 20)
		Expect(gate.Value).To(Equal(0.004))
		Expect(gate.Passed).To(BeTrue())

		coherence := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricCoherenceTime, Threshold: 100, Method: v1.MethodBackendCalibration,
		}, exec, 4, 20)
		Expect(coherence.Value).To(Equal(120.0))
		Expect(coherence.Passed).To(BeTrue())
	})

	It("should scale sampling confidence with the sample count", func() {
		small := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricErrorRate, Threshold: 0.5, Method: v1.MethodSampling,
		}, execWithConfidences(v1.BackendQPU, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9), 4, 20)
		// 0.5 + log10(10)*0.1
		Expect(small.Confidence).To(BeNumerically("~", 0.6, 1e-9))

		huge := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricSuccessProbability, Threshold: 0.5, Method: v1.MethodSampling,
		}, &v1.Execution{
			Backend: v1.BackendMetadata{Kind: v1.BackendQPU},
			Results: &v1.ExecutionResults{
				Outcomes:   []v1.MeasurementOutcome{{Bitstring: "00", Count: 10000000, Probability: 1}},
				TotalShots: 10000000,
			},
		}, 4, 20)
		// capped at 0.99
		Expect(huge.Confidence).To(Equal(0.99))
	})

	It("should fail uncomputable metrics without raising", func() {
		exec := &v1.Execution{Backend: v1.BackendMetadata{Kind: v1.BackendQPU}}
		result := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricErrorRate, Threshold: 0.1, Method: v1.MethodSampling,
		}, exec, 4, 20)
		Expect(result.Passed).To(BeFalse())
		Expect(result.Confidence).To(Equal(0.3))
		Expect(result.Details).ToNot(BeEmpty())

		volume := sla.ComputeMetric(v1.SLARequirement{
			Metric: v1.MetricQuantumVolume, Threshold: 10, Method: v1.MethodRandomizedBenchmarking,
		}, exec, 0, 0)
		Expect(volume.Passed).To(BeFalse())
		Expect(volume.Confidence).To(Equal(0.3))
	})
})
