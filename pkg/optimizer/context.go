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

package optimizer

import (
	"math"
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// normalization ceilings for the open-ended features
const (
	maxDepthFeature   = 1000.0
	maxQubitsFeature  = 100.0
	maxShotsLog10     = 6.0
	maxGateFeature    = 10000.0
	maxLatencyFeature = 60 * time.Second
	experienceScale   = 100.0
)

// ContextInputs carries the raw signals summarized into the learner
// feature vector.
type ContextInputs struct {
	CircuitDepth      int
	Qubits            int
	Shots             int
	OptimizationLevel int
	GateCount         int
	Backend           v1.BackendKind

	RecentAvgReward   float64
	RecentAvgLatency  time.Duration
	RecentSuccessRate float64
	ExplorationRate   float64
	// Observations is the learner's lifetime sample count
	Observations int

	At time.Time
}

// Vector maps the inputs onto the fixed-dimension feature vector, every
// feature in [0,1].
func (in ContextInputs) Vector() []float64 {
	shots := 0.0
	if in.Shots > 0 {
		shots = math.Log10(float64(in.Shots)) / maxShotsLog10
	}
	hour := float64(in.At.UTC().Hour()) + float64(in.At.UTC().Minute())/60
	return []float64{
		clamp01(float64(in.CircuitDepth) / maxDepthFeature),
		clamp01(float64(in.Qubits) / maxQubitsFeature),
		clamp01(shots),
		clamp01(float64(in.OptimizationLevel) / 3),
		clamp01(float64(in.GateCount) / maxGateFeature),
		backendIndex(in.Backend),
		clamp01(in.RecentAvgReward),
		clamp01(float64(in.RecentAvgLatency) / float64(maxLatencyFeature)),
		clamp01(in.RecentSuccessRate),
		clamp01(in.ExplorationRate),
		// experience saturates toward 1 as observations accumulate
		clamp01(1 - 1/(1+float64(in.Observations)/experienceScale)),
		(math.Sin(2*math.Pi*hour/24) + 1) / 2,
	}
}

func backendIndex(kind v1.BackendKind) float64 {
	switch kind {
	case v1.BackendClassical:
		return 0
	case v1.BackendEmulator:
		return 0.5
	case v1.BackendQPU:
		return 1
	default:
		return 0.5
	}
}
