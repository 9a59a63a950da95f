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
	"math"

	"gonum.org/v1/gonum/mat"
)

// ridgeEpsilon restores positive definiteness if floating point drift
// ever degrades a design matrix.
const ridgeEpsilon = 1e-9

type linUCBArm struct {
	// A accumulates x xT on top of the identity prior, so it stays
	// symmetric positive definite
	A     *mat.SymDense
	b     *mat.VecDense
	pulls int
}

// LinUCB is the disjoint linear UCB policy: per-arm ridge regression with
// an upper confidence bonus scaled by alpha.
type LinUCB struct {
	arms  []*linUCBArm
	dim   int
	alpha float64
}

func NewLinUCB(armCount, dim int, alpha float64) *LinUCB {
	arms := make([]*linUCBArm, armCount)
	for i := range arms {
		A := mat.NewSymDense(dim, nil)
		for j := 0; j < dim; j++ {
			A.SetSym(j, j, 1)
		}
		arms[i] = &linUCBArm{A: A, b: mat.NewVecDense(dim, nil)}
	}
	return &LinUCB{arms: arms, dim: dim, alpha: alpha}
}

func (l *LinUCB) ArmCount() int { return len(l.arms) }

func (l *LinUCB) Pulls() []int {
	out := make([]int, len(l.arms))
	for i, a := range l.arms {
		out[i] = a.pulls
	}
	return out
}

// SelectArm returns argmax over arms of thetaT x + alpha sqrt(xT A-1 x).
func (l *LinUCB) SelectArm(ctx []float64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	x := mat.NewVecDense(l.dim, ctx)
	best, bestScore := 0, 0.0
	for i, arm := range l.arms {
		theta, inv, err := arm.solve(l.dim)
		if err != nil {
			return 0, fmt.Errorf("scoring arm %d, %w", i, err)
		}
		var Ax mat.VecDense
		Ax.MulVec(inv, x)
		score := mat.Dot(theta, x) + l.alpha*sqrtNonNeg(mat.Dot(x, &Ax))
		if i == 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, nil
}

// Update applies A += x xT, b += r x for the played arm.
func (l *LinUCB) Update(arm int, ctx []float64, reward float64) error {
	if err := validateArm(arm, len(l.arms)); err != nil {
		return err
	}
	if err := validateContext(ctx); err != nil {
		return err
	}
	a := l.arms[arm]
	x := mat.NewVecDense(l.dim, ctx)
	a.A.SymRankOne(a.A, 1, x)
	a.b.AddScaledVec(a.b, reward, x)
	a.pulls++
	return nil
}

// Theta exposes the current coefficient estimate for an arm, used by the
// adaptation layer's update-confidence term.
func (l *LinUCB) Theta(arm int) ([]float64, error) {
	if err := validateArm(arm, len(l.arms)); err != nil {
		return nil, err
	}
	theta, _, err := l.arms[arm].solve(l.dim)
	if err != nil {
		return nil, err
	}
	out := make([]float64, l.dim)
	for i := range out {
		out[i] = theta.AtVec(i)
	}
	return out, nil
}

// solve factorizes A and returns theta = A-1 b and A-1.
func (a *linUCBArm) solve(dim int) (*mat.VecDense, *mat.SymDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(a.A) {
		// drifted off positive definite, re-regularize and retry
		for j := 0; j < dim; j++ {
			a.A.SetSym(j, j, a.A.At(j, j)+ridgeEpsilon)
		}
		if !chol.Factorize(a.A) {
			return nil, nil, fmt.Errorf("design matrix is not positive definite")
		}
	}
	theta := mat.NewVecDense(dim, nil)
	if err := chol.SolveVecTo(theta, a.b); err != nil {
		return nil, nil, fmt.Errorf("solving for coefficients, %w", err)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, nil, fmt.Errorf("inverting design matrix, %w", err)
	}
	return theta, &inv, nil
}

func sqrtNonNeg(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
