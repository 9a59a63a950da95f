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

package v1

import (
	"time"
)

// OptimizerAlgorithm selects the learner implementation for a template.
type OptimizerAlgorithm string

const (
	AlgorithmLinUCB        OptimizerAlgorithm = "LINUCB"
	AlgorithmThompson      OptimizerAlgorithm = "THOMPSON"
	AlgorithmEpsilonGreedy OptimizerAlgorithm = "EPSILON_GREEDY"
	AlgorithmUCB1          OptimizerAlgorithm = "UCB1"
)

// OptimizerProfile tunes the per-template adaptive learner. Zero values are
// replaced by the defaults below at learner construction.
type OptimizerProfile struct {
	Algorithm OptimizerAlgorithm `json:"algorithm,omitempty"`
	// ArmCount is the fixed size of the discrete action space, clamped
	// to [2, 1000]
	ArmCount int `json:"armCount,omitempty"`
	// Alpha is the LinUCB confidence coefficient
	Alpha float64 `json:"alpha,omitempty"`
	// Epsilon is the exploration rate for EPSILON_GREEDY
	Epsilon float64 `json:"epsilon,omitempty"`

	MaxParameterChange   float64       `json:"maxParameterChange,omitempty"`
	LearningRate         float64       `json:"learningRate,omitempty"`
	ConvergenceWindow    int           `json:"convergenceWindow,omitempty"`
	MinSamples           int           `json:"minSamples,omitempty"`
	ImprovementThreshold float64       `json:"improvementThreshold,omitempty"`
	Cooldown             time.Duration `json:"cooldown,omitempty"`

	// RollbackConsecutive is the number of consecutive sub-baseline
	// rewards that force a rollback
	RollbackConsecutive int           `json:"rollbackConsecutive,omitempty"`
	RollbackTolerance   float64       `json:"rollbackTolerance,omitempty"`
	RollbackWindow      time.Duration `json:"rollbackWindow,omitempty"`
}

const (
	DefaultArmCount             = 10
	DefaultAlpha                = 0.25
	DefaultEpsilon              = 0.1
	DefaultMaxParameterChange   = 0.3
	DefaultLearningRate         = 0.05
	DefaultConvergenceWindow    = 20
	DefaultMinSamples           = 10
	DefaultImprovementThreshold = 0.02
	DefaultCooldown             = 5 * time.Minute
	DefaultRollbackConsecutive  = 3
	DefaultRollbackTolerance    = 0.05
	DefaultRollbackWindow       = 30 * time.Minute

	MinArmCount = 2
	MaxArmCount = 1000
)

// WithFallback returns the profile with every zero field replaced by the
// corresponding field of fallback. Template profiles override the
// operator-level defaults this way before WithDefaults fills the rest.
func (p OptimizerProfile) WithFallback(fallback OptimizerProfile) OptimizerProfile {
	if p.Algorithm == "" {
		p.Algorithm = fallback.Algorithm
	}
	if p.ArmCount == 0 {
		p.ArmCount = fallback.ArmCount
	}
	if p.Alpha == 0 {
		p.Alpha = fallback.Alpha
	}
	if p.Epsilon == 0 {
		p.Epsilon = fallback.Epsilon
	}
	if p.MaxParameterChange == 0 {
		p.MaxParameterChange = fallback.MaxParameterChange
	}
	if p.LearningRate == 0 {
		p.LearningRate = fallback.LearningRate
	}
	if p.ConvergenceWindow == 0 {
		p.ConvergenceWindow = fallback.ConvergenceWindow
	}
	if p.MinSamples == 0 {
		p.MinSamples = fallback.MinSamples
	}
	if p.ImprovementThreshold == 0 {
		p.ImprovementThreshold = fallback.ImprovementThreshold
	}
	if p.Cooldown == 0 {
		p.Cooldown = fallback.Cooldown
	}
	if p.RollbackConsecutive == 0 {
		p.RollbackConsecutive = fallback.RollbackConsecutive
	}
	if p.RollbackTolerance == 0 {
		p.RollbackTolerance = fallback.RollbackTolerance
	}
	if p.RollbackWindow == 0 {
		p.RollbackWindow = fallback.RollbackWindow
	}
	return p
}

// WithDefaults returns the profile with every zero field replaced by its
// default and ArmCount clamped to the supported range.
func (p OptimizerProfile) WithDefaults() OptimizerProfile {
	if p.Algorithm == "" {
		p.Algorithm = AlgorithmLinUCB
	}
	if p.ArmCount == 0 {
		p.ArmCount = DefaultArmCount
	}
	if p.ArmCount < MinArmCount {
		p.ArmCount = MinArmCount
	}
	if p.ArmCount > MaxArmCount {
		p.ArmCount = MaxArmCount
	}
	if p.Alpha == 0 {
		p.Alpha = DefaultAlpha
	}
	if p.Epsilon == 0 {
		p.Epsilon = DefaultEpsilon
	}
	if p.MaxParameterChange == 0 {
		p.MaxParameterChange = DefaultMaxParameterChange
	}
	if p.LearningRate == 0 {
		p.LearningRate = DefaultLearningRate
	}
	if p.ConvergenceWindow == 0 {
		p.ConvergenceWindow = DefaultConvergenceWindow
	}
	if p.MinSamples == 0 {
		p.MinSamples = DefaultMinSamples
	}
	if p.ImprovementThreshold == 0 {
		p.ImprovementThreshold = DefaultImprovementThreshold
	}
	if p.Cooldown == 0 {
		p.Cooldown = DefaultCooldown
	}
	if p.RollbackConsecutive == 0 {
		p.RollbackConsecutive = DefaultRollbackConsecutive
	}
	if p.RollbackTolerance == 0 {
		p.RollbackTolerance = DefaultRollbackTolerance
	}
	if p.RollbackWindow == 0 {
		p.RollbackWindow = DefaultRollbackWindow
	}
	return p
}

// RewardObjectives is one multi-objective reward observation, every
// component normalized to [0,1].
type RewardObjectives struct {
	Latency     float64 `json:"latency"`
	Cost        float64 `json:"cost"`
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
	Security    float64 `json:"security"`
}

// Vector returns the objectives in canonical order.
func (r RewardObjectives) Vector() [5]float64 {
	return [5]float64{r.Latency, r.Cost, r.Quality, r.Reliability, r.Security}
}

// Dominates reports whether r is >= other in every objective and strictly
// greater in at least one.
func (r RewardObjectives) Dominates(other RewardObjectives) bool {
	a, b := r.Vector(), other.Vector()
	strict := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			strict = true
		}
	}
	return strict
}

// PerformancePoint is one reward observation placed in objective space.
type PerformancePoint struct {
	At         time.Time        `json:"at"`
	Context    []float64        `json:"context"`
	Objectives RewardObjectives `json:"objectives"`
	Composite  float64          `json:"composite"`
	// ParetoRank is the count of points in the window dominating this one
	ParetoRank int `json:"paretoRank"`
}

type AdaptationEventType string

const (
	AdaptationApplied    AdaptationEventType = "PARAMETERS_ADAPTED"
	AdaptationSuppressed AdaptationEventType = "ADAPTATION_SUPPRESSED"
	RollbackArmed        AdaptationEventType = "ROLLBACK_ARMED"
	RollbackExecuted     AdaptationEventType = "ROLLBACK_EXECUTED"
)

// AdaptationEvent records one decision by the adaptation layer.
type AdaptationEvent struct {
	Type       AdaptationEventType       `json:"type"`
	TemplateID string                    `json:"templateId"`
	TenantID   string                    `json:"tenantId"`
	Previous   map[string]ParameterValue `json:"previous,omitempty"`
	Proposed   map[string]ParameterValue `json:"proposed,omitempty"`
	// Risk aggregates relative change magnitude and update confidence
	Risk   float64   `json:"risk,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}
