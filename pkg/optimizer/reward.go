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
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// reward normalization ceilings
const (
	maxRewardLatency = 60 * time.Second
	maxRewardCost    = 100.0
)

// RewardInputs carries the raw per-execution outcomes folded into a
// normalized multi-objective reward.
type RewardInputs struct {
	Latency time.Duration
	Cost    float64
	// Quality, Reliability and Security are already normalized to [0,1]
	Quality     float64
	Reliability float64
	Security    float64
}

// Objectives normalizes the inputs into objective space.
func (in RewardInputs) Objectives() v1.RewardObjectives {
	return v1.RewardObjectives{
		Latency:     clamp01(1 - float64(in.Latency)/float64(maxRewardLatency)),
		Cost:        clamp01(1 - in.Cost/maxRewardCost),
		Quality:     clamp01(in.Quality),
		Reliability: clamp01(in.Reliability),
		Security:    clamp01(in.Security),
	}
}

// objectiveWeights returns priority-aware weights over (latency, cost,
// quality, reliability, security), normalized to sum 1. Critical work
// boosts reliability and security; low-priority work boosts cost.
func objectiveWeights(priority v1.PriorityClass) [5]float64 {
	var w [5]float64
	switch priority {
	case v1.PriorityCritical:
		w = [5]float64{0.15, 0.05, 0.20, 0.35, 0.25}
	case v1.PriorityHigh:
		w = [5]float64{0.25, 0.10, 0.25, 0.25, 0.15}
	case v1.PriorityLow:
		w = [5]float64{0.15, 0.40, 0.20, 0.15, 0.10}
	default:
		w = [5]float64{0.20, 0.20, 0.25, 0.20, 0.15}
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// Composite collapses the objectives into the scalar the learners train
// on, weighted by the deployment's priority class.
func Composite(objectives v1.RewardObjectives, priority v1.PriorityClass) float64 {
	w := objectiveWeights(priority)
	vec := objectives.Vector()
	var sum float64
	for i := range vec {
		sum += w[i] * vec[i]
	}
	return clamp01(sum)
}
