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
	"math/rand"
)

// RNG produces the random draws the learners need. Seedable so that arm
// selection and posterior sampling are reproducible in tests.
type RNG struct {
	src *rand.Rand
	// Box-Muller produces Gaussians in pairs; the unused draw is cached
	spare    float64
	hasSpare bool
}

func NewRNG(seed int64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform draw in [0,1).
func (r *RNG) Float64() float64 {
	return r.src.Float64()
}

// Intn returns a uniform draw in [0,n).
func (r *RNG) Intn(n int) int {
	return r.src.Intn(n)
}

// NormFloat64 returns a standard normal draw via the Box-Muller transform.
func (r *RNG) NormFloat64() float64 {
	if r.hasSpare {
		r.hasSpare = false
		return r.spare
	}
	var u1 float64
	for u1 == 0 {
		u1 = r.src.Float64()
	}
	u2 := r.src.Float64()
	mag := math.Sqrt(-2 * math.Log(u1))
	r.spare = mag * math.Sin(2*math.Pi*u2)
	r.hasSpare = true
	return mag * math.Cos(2*math.Pi*u2)
}
