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
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type thompsonArm struct {
	// precision is the posterior precision matrix, identity prior plus
	// the accumulated x xT outer products (observation variance 1)
	precision *mat.SymDense
	b         *mat.VecDense
	pulls     int
}

// Thompson is Thompson sampling over per-arm Bayesian linear regressions
// with a standard Gaussian prior. Each round samples coefficients from
// every arm's posterior and plays the argmax.
type Thompson struct {
	arms []*thompsonArm
	dim  int
	rng  *RNG
}

func NewThompson(armCount, dim int, rng *RNG) *Thompson {
	arms := make([]*thompsonArm, armCount)
	for i := range arms {
		p := mat.NewSymDense(dim, nil)
		for j := 0; j < dim; j++ {
			p.SetSym(j, j, 1)
		}
		arms[i] = &thompsonArm{precision: p, b: mat.NewVecDense(dim, nil)}
	}
	return &Thompson{arms: arms, dim: dim, rng: rng}
}

func (t *Thompson) ArmCount() int { return len(t.arms) }

func (t *Thompson) Pulls() []int {
	out := make([]int, len(t.arms))
	for i, a := range t.arms {
		out[i] = a.pulls
	}
	return out
}

// SelectArm samples coefficients from each posterior and plays the arm
// whose sample scores the context highest.
func (t *Thompson) SelectArm(ctx []float64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	x := mat.NewVecDense(t.dim, ctx)
	best, bestScore := 0, 0.0
	for i, arm := range t.arms {
		theta, err := arm.sample(t.dim, t.rng)
		if err != nil {
			return 0, fmt.Errorf("sampling posterior for arm %d, %w", i, err)
		}
		score := mat.Dot(theta, x)
		if i == 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, nil
}

// Update folds one observation into the played arm's posterior.
func (t *Thompson) Update(arm int, ctx []float64, reward float64) error {
	if err := validateArm(arm, len(t.arms)); err != nil {
		return err
	}
	if err := validateContext(ctx); err != nil {
		return err
	}
	a := t.arms[arm]
	x := mat.NewVecDense(t.dim, ctx)
	a.precision.SymRankOne(a.precision, 1, x)
	a.b.AddScaledVec(a.b, reward, x)
	a.pulls++
	return nil
}

// sample draws theta ~ N(mu, Sigma) where Sigma is the posterior
// covariance, via mu + L z with Sigma = L LT.
func (a *thompsonArm) sample(dim int, rng *RNG) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(a.precision) {
		for j := 0; j < dim; j++ {
			a.precision.SetSym(j, j, a.precision.At(j, j)+ridgeEpsilon)
		}
		if !chol.Factorize(a.precision) {
			return nil, fmt.Errorf("posterior precision is not positive definite")
		}
	}
	mu := mat.NewVecDense(dim, nil)
	if err := chol.SolveVecTo(mu, a.b); err != nil {
		return nil, fmt.Errorf("solving for posterior mean, %w", err)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("inverting posterior precision, %w", err)
	}
	var covChol mat.Cholesky
	if !covChol.Factorize(&cov) {
		for j := 0; j < dim; j++ {
			cov.SetSym(j, j, cov.At(j, j)+ridgeEpsilon)
		}
		if !covChol.Factorize(&cov) {
			return nil, fmt.Errorf("posterior covariance is not positive definite")
		}
	}
	var l mat.TriDense
	covChol.LTo(&l)
	z := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		z.SetVec(i, rng.NormFloat64())
	}
	theta := mat.NewVecDense(dim, nil)
	theta.MulVec(&l, z)
	theta.AddVec(theta, mu)
	return theta, nil
}
