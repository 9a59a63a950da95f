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

// Package optimizer implements the per (template, tenant) contextual
// bandit that tunes execution parameters from observed rewards.
package optimizer

import (
	"fmt"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// ContextDimension is the fixed length of the learner feature vector.
const ContextDimension = 12

// Learner is one contextual-bandit policy over a fixed arm set.
type Learner interface {
	// SelectArm picks the arm to play for the given context vector
	SelectArm(ctx []float64) (int, error)
	// Update feeds the reward observed after playing arm with context
	Update(arm int, ctx []float64, reward float64) error
	// ArmCount is the size of the fixed action space
	ArmCount() int
	// Pulls returns per-arm observation counts
	Pulls() []int
}

// NewLearner constructs the learner the profile names. The profile must
// already carry defaults (see OptimizerProfile.WithDefaults).
func NewLearner(profile v1.OptimizerProfile, rng *RNG) (Learner, error) {
	switch profile.Algorithm {
	case v1.AlgorithmLinUCB:
		return NewLinUCB(profile.ArmCount, ContextDimension, profile.Alpha), nil
	case v1.AlgorithmThompson:
		return NewThompson(profile.ArmCount, ContextDimension, rng), nil
	case v1.AlgorithmEpsilonGreedy:
		return NewEpsilonGreedy(profile.ArmCount, profile.Epsilon, rng), nil
	case v1.AlgorithmUCB1:
		return NewUCB1(profile.ArmCount), nil
	default:
		return nil, fmt.Errorf("unsupported optimizer algorithm %q", profile.Algorithm)
	}
}

func validateContext(ctx []float64) error {
	if len(ctx) != ContextDimension {
		return fmt.Errorf("context vector has %d features, expected %d", len(ctx), ContextDimension)
	}
	return nil
}

func validateArm(arm, count int) error {
	if arm < 0 || arm >= count {
		return fmt.Errorf("arm %d out of range [0,%d)", arm, count)
	}
	return nil
}
