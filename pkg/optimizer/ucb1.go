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

import "math"

// UCB1 plays the arm maximizing mean + sqrt(2 ln t / n). Context is
// ignored; rewards clamp to [0,1] so the bound applies.
type UCB1 struct {
	rewards []float64
	pulls   []int
	total   int
}

func NewUCB1(armCount int) *UCB1 {
	return &UCB1{
		rewards: make([]float64, armCount),
		pulls:   make([]int, armCount),
	}
}

func (u *UCB1) ArmCount() int { return len(u.pulls) }

func (u *UCB1) Pulls() []int {
	out := make([]int, len(u.pulls))
	copy(out, u.pulls)
	return out
}

func (u *UCB1) SelectArm(ctx []float64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	best, bestScore := 0, -1.0
	for i := range u.pulls {
		if u.pulls[i] == 0 {
			return i, nil
		}
		mean := u.rewards[i] / float64(u.pulls[i])
		bonus := math.Sqrt(2 * math.Log(float64(u.total)) / float64(u.pulls[i]))
		if score := mean + bonus; score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, nil
}

func (u *UCB1) Update(arm int, ctx []float64, reward float64) error {
	if err := validateArm(arm, len(u.pulls)); err != nil {
		return err
	}
	if err := validateContext(ctx); err != nil {
		return err
	}
	u.rewards[arm] += clamp01(reward)
	u.pulls[arm]++
	u.total++
	return nil
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
