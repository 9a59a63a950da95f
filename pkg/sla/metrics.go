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

package sla

import (
	"fmt"
	"math"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// lowConfidenceCutoff is the per-shot confidence below which a measurement
// counts as erroneous.
const lowConfidenceCutoff = 0.5

// uncomputableConfidence marks results the engine could not compute; they
// fail their requirement without raising.
const uncomputableConfidence = 0.3

// confidenceFor returns the confidence attached to a metric result based
// on the measurement method.
func confidenceFor(method v1.MeasurementMethod, samples int) float64 {
	switch method {
	case v1.MethodSampling:
		if samples <= 0 {
			return uncomputableConfidence
		}
		return math.Min(0.99, 0.5+math.Log10(float64(samples))*0.1)
	case v1.MethodProcessTomography:
		return 0.95
	case v1.MethodRandomizedBenchmarking:
		return 0.90
	default:
		return 0.8
	}
}

// baselineNoise is the noise floor attributed to the backend when deriving
// fidelity from the observed error rate.
func baselineNoise(meta v1.BackendMetadata) float64 {
	switch meta.Kind {
	case v1.BackendClassical:
		return 0
	case v1.BackendEmulator:
		return 0.005 + meta.GateErrorRate
	default:
		return 0.02 + 10*meta.GateErrorRate
	}
}

// noiseFactor discounts quantum volume by backend class.
func noiseFactor(kind v1.BackendKind) float64 {
	switch kind {
	case v1.BackendClassical:
		return 1.0
	case v1.BackendEmulator:
		return 0.95
	default:
		return 0.8
	}
}

// errorRate is the fraction of shots whose confidence fell below the
// cutoff.
func errorRate(results *v1.ExecutionResults) (float64, bool) {
	if results == nil || len(results.ShotConfidences) == 0 {
		return 0, false
	}
	low := 0
	for _, c := range results.ShotConfidences {
		if c < lowConfidenceCutoff {
			low++
		}
	}
	return float64(low) / float64(len(results.ShotConfidences)), true
}

// ComputeMetric evaluates one requirement against an execution. Metric
// computation never raises: uncomputable metrics produce a failed result
// with confidence below 0.5.
func ComputeMetric(req v1.SLARequirement, exec *v1.Execution, qubits, depth int) v1.MetricResult {
	result := v1.MetricResult{
		Metric:    req.Metric,
		Method:    req.Method,
		Threshold: req.Threshold,
	}
	samples := 0
	if exec.Results != nil {
		samples = exec.Results.TotalShots
	}

	switch req.Metric {
	case v1.MetricErrorRate:
		rate, ok := errorRate(exec.Results)
		if !ok {
			return uncomputable(result, "no per-shot confidences reported")
		}
		result.Value = rate
	case v1.MetricFidelity:
		if exec.Backend.Kind == v1.BackendClassical {
			result.Value = 1
			break
		}
		rate, ok := errorRate(exec.Results)
		if !ok {
			return uncomputable(result, "no per-shot confidences reported")
		}
		result.Value = math.Max(0, 1-rate-baselineNoise(exec.Backend))
	case v1.MetricSuccessProbability:
		if exec.Results == nil || len(exec.Results.Outcomes) == 0 {
			return uncomputable(result, "no measurement outcomes reported")
		}
		best := 0.0
		for _, outcome := range exec.Results.Outcomes {
			if outcome.Probability > best {
				best = outcome.Probability
			}
		}
		result.Value = best
	case v1.MetricQuantumVolume:
		if qubits <= 0 || depth <= 0 {
			return uncomputable(result, "circuit dimensions unknown")
		}
		result.Value = float64(min(qubits, depth)) * noiseFactor(exec.Backend.Kind)
	case v1.MetricGateErrorRate:
		result.Value = exec.Backend.GateErrorRate
	case v1.MetricCoherenceTime:
		result.Value = exec.Backend.CoherenceTimeMicros
	default:
		return uncomputable(result, fmt.Sprintf("unknown metric %s", req.Metric))
	}

	if req.Metric.LowerIsBetter() {
		result.Passed = result.Value <= req.Threshold
	} else {
		result.Passed = result.Value >= req.Threshold
	}
	result.Confidence = confidenceFor(req.Method, samples)
	return result
}

func uncomputable(result v1.MetricResult, reason string) v1.MetricResult {
	result.Passed = false
	result.Confidence = uncomputableConfidence
	result.Details = reason
	return result
}
