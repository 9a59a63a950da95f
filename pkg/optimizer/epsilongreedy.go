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

// EpsilonGreedy explores a uniform random arm with probability epsilon
// and exploits the best empirical mean otherwise. Context is ignored.
type EpsilonGreedy struct {
	epsilon float64
	rewards []float64
	pulls   []int
	rng     *RNG
}

func NewEpsilonGreedy(armCount int, epsilon float64, rng *RNG) *EpsilonGreedy {
	return &EpsilonGreedy{
		epsilon: epsilon,
		rewards: make([]float64, armCount),
		pulls:   make([]int, armCount),
		rng:     rng,
	}
}

func (e *EpsilonGreedy) ArmCount() int { return len(e.pulls) }

func (e *EpsilonGreedy) Pulls() []int {
	out := make([]int, len(e.pulls))
	copy(out, e.pulls)
	return out
}

func (e *EpsilonGreedy) SelectArm(ctx []float64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if e.rng.Float64() < e.epsilon {
		return e.rng.Intn(len(e.pulls)), nil
	}
	best, bestMean := 0, -1.0
	for i := range e.pulls {
		if e.pulls[i] == 0 {
			return i, nil
		}
		if mean := e.rewards[i] / float64(e.pulls[i]); mean > bestMean {
			best, bestMean = i, mean
		}
	}
	return best, nil
}

func (e *EpsilonGreedy) Update(arm int, ctx []float64, reward float64) error {
	if err := validateArm(arm, len(e.pulls)); err != nil {
		return err
	}
	if err := validateContext(ctx); err != nil {
		return err
	}
	e.rewards[arm] += clamp01(reward)
	e.pulls[arm]++
	return nil
}
