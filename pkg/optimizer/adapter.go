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
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/operator/logging"
	"github.com/entangleops/qam/pkg/utils/pretty"
)

// riskArmThreshold is the risk score above which a proposed adaptation
// arms automatic rollback.
const riskArmThreshold = 0.5

// Optimizer owns the learner, reward history and adaptation state for
// one (template, tenant) pair. It is mutated only under its own lock;
// readers receive copies.
type Optimizer struct {
	mu sync.Mutex

	templateID string
	tenantID   string
	profile    v1.OptimizerProfile
	schema     v1.ParameterSchema

	learner Learner
	rng     *RNG
	pareto  *ParetoWindow

	// rolling composite rewards, newest last, capped at ConvergenceWindow
	recent       []float64
	observations int
	successes    int
	latencySum   time.Duration

	parameters map[string]v1.ParameterValue
	// rollback state captured when an adaptation arms it
	previous       map[string]v1.ParameterValue
	baseline       float64
	armed          bool
	armedAt        time.Time
	belowBaseline  int
	lastDirection  map[string]float64
	lastAdaptation time.Time

	stream *events.Stream
	clock  func() time.Time
}

type OptimizerOption func(*Optimizer)

func WithClock(clock func() time.Time) OptimizerOption {
	return func(o *Optimizer) { o.clock = clock }
}

func WithSeed(seed int64) OptimizerOption {
	return func(o *Optimizer) { o.rng = NewRNG(seed) }
}

func New(templateID, tenantID string, profile v1.OptimizerProfile, schema v1.ParameterSchema, parameters map[string]v1.ParameterValue, stream *events.Stream, opts ...OptimizerOption) (*Optimizer, error) {
	profile = profile.WithDefaults()
	o := &Optimizer{
		templateID:    templateID,
		tenantID:      tenantID,
		profile:       profile,
		schema:        schema,
		rng:           NewRNG(time.Now().UnixNano()),
		pareto:        NewParetoWindow(DefaultParetoWindow),
		parameters:    copyParameters(parameters),
		lastDirection: map[string]float64{},
		stream:        stream,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	learner, err := NewLearner(profile, o.rng)
	if err != nil {
		return nil, fmt.Errorf("constructing learner for template %s, %w", templateID, err)
	}
	o.learner = learner
	return o, nil
}

// SelectArm picks the arm to play for the upcoming execution.
func (o *Optimizer) SelectArm(inputs ContextInputs) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inputs = o.enrich(inputs)
	return o.learner.SelectArm(inputs.Vector())
}

// Observe feeds one completed execution back into the learner and the
// Pareto window, then evaluates the rollback triggers.
func (o *Optimizer) Observe(ctx context.Context, arm int, inputs ContextInputs, reward RewardInputs, priority v1.PriorityClass, succeeded bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	inputs = o.enrich(inputs)
	objectives := reward.Objectives()
	composite := Composite(objectives, priority)
	vector := inputs.Vector()
	if err := o.learner.Update(arm, vector, composite); err != nil {
		return fmt.Errorf("updating learner for template %s, %w", o.templateID, err)
	}

	o.observations++
	if succeeded {
		o.successes++
	}
	o.latencySum += reward.Latency
	o.recent = append(o.recent, composite)
	if len(o.recent) > o.profile.ConvergenceWindow {
		o.recent = o.recent[len(o.recent)-o.profile.ConvergenceWindow:]
	}
	o.pareto.Add(v1.PerformancePoint{
		At:         inputs.At,
		Context:    vector,
		Objectives: objectives,
		Composite:  composite,
	})

	rewardObserved.Observe(composite)
	o.checkRewardRollback(ctx, composite)
	return nil
}

// ObserveViolation rolls back an armed adaptation when a critical
// violation lands inside the rollback window.
func (o *Optimizer) ObserveViolation(ctx context.Context, severity v1.ViolationSeverity, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.armed || severity != v1.SeverityCritical {
		return
	}
	if at.Sub(o.armedAt) <= o.profile.RollbackWindow {
		o.rollback(ctx, "critical violation within rollback window")
	}
}

// Parameters returns a copy of the current parameter assignment.
func (o *Optimizer) Parameters() map[string]v1.ParameterValue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyParameters(o.parameters)
}

// Profile returns the effective profile after fallback and defaulting.
func (o *Optimizer) Profile() v1.OptimizerProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.profile
}

// Observations returns the lifetime sample count.
func (o *Optimizer) Observations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observations
}

// Pareto returns the current front summary.
func (o *Optimizer) Pareto() (front []v1.PerformancePoint, hypervolume, spread float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pareto.Front(), o.pareto.Hypervolume(), o.pareto.Spread()
}

// MaybeAdapt proposes a bounded parameter update when the gating
// conditions hold, applies it atomically and returns the adaptation
// event, or nil when gating suppressed the change.
func (o *Optimizer) MaybeAdapt(ctx context.Context) (*v1.AdaptationEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock()
	if o.observations < o.profile.MinSamples {
		return nil, nil
	}
	if !o.lastAdaptation.IsZero() && now.Sub(o.lastAdaptation) < o.profile.Cooldown {
		return nil, nil
	}
	improvement := o.recentImprovement()
	if improvement < o.profile.ImprovementThreshold {
		return nil, nil
	}

	proposed, magnitude := o.propose()
	if len(proposed) == 0 {
		return nil, nil
	}

	// update confidence grows with samples relative to the window
	confidence := clamp01(float64(o.observations) / float64(o.profile.MinSamples*5))
	risk := clamp01(magnitude*0.7 + (1-confidence)*0.3)

	previous := copyParameters(o.parameters)
	for name, value := range proposed {
		o.parameters[name] = value
	}
	o.lastAdaptation = now
	evt := &v1.AdaptationEvent{
		Type:       v1.AdaptationApplied,
		TemplateID: o.templateID,
		TenantID:   o.tenantID,
		Previous:   previous,
		Proposed:   copyParameters(o.parameters),
		Risk:       risk,
		Reason:     fmt.Sprintf("recent improvement %.3f over window of %d", improvement, len(o.recent)),
		At:         now,
	}
	adaptationsApplied.Inc()
	logging.FromContext(ctx).With(
		"template", o.templateID,
		"tenant", o.tenantID,
	).Infof("applied adaptation %s (risk %.2f)", pretty.Map(proposed, 4), risk)
	o.publish(ctx, *evt)

	if risk >= riskArmThreshold {
		o.previous = previous
		o.baseline = o.recentMean()
		o.armed = true
		o.armedAt = now
		o.belowBaseline = 0
		o.publish(ctx, v1.AdaptationEvent{
			Type:       v1.RollbackArmed,
			TemplateID: o.templateID,
			TenantID:   o.tenantID,
			Risk:       risk,
			Reason:     fmt.Sprintf("risk %.2f at or above %.2f", risk, riskArmThreshold),
			At:         now,
		})
	}
	return evt, nil
}

// propose perturbs each bounded numeric parameter by the learning rate,
// bounded to the relative change cap and clipped to schema min/max.
// Returns the changed values and the mean relative magnitude.
func (o *Optimizer) propose() (map[string]v1.ParameterValue, float64) {
	proposed := map[string]v1.ParameterValue{}
	var magnitude float64
	for name, spec := range o.schema.Parameters {
		if spec.Min == nil || spec.Max == nil {
			continue
		}
		if spec.Type != v1.ParameterTypeInteger && spec.Type != v1.ParameterTypeFloat {
			continue
		}
		current, ok := o.parameters[name]
		if !ok {
			continue
		}
		value, ok := current.AsFloat()
		if !ok {
			continue
		}
		direction, ok := o.lastDirection[name]
		if !ok {
			direction = 1
		}
		span := *spec.Max - *spec.Min
		delta := direction * o.profile.LearningRate * span
		limit := o.profile.MaxParameterChange * math.Max(math.Abs(value), span*o.profile.LearningRate)
		if math.Abs(delta) > limit {
			delta = math.Copysign(limit, delta)
		}
		next := value + delta
		if next > *spec.Max {
			next = *spec.Max
			direction = -1
		}
		if next < *spec.Min {
			next = *spec.Min
			direction = 1
		}
		o.lastDirection[name] = direction
		if next == value {
			continue
		}
		if spec.Type == v1.ParameterTypeInteger {
			rounded := int64(math.Round(next))
			if rounded == current.Int {
				continue
			}
			proposed[name] = v1.IntValue(rounded)
		} else {
			proposed[name] = v1.FloatValue(next)
		}
		if value != 0 {
			magnitude += math.Abs(next-value) / math.Abs(value)
		} else if span != 0 {
			magnitude += math.Abs(next-value) / span
		}
	}
	if len(proposed) > 0 {
		magnitude /= float64(len(proposed))
	}
	return proposed, clamp01(magnitude)
}

// checkRewardRollback counts consecutive sub-baseline rewards and rolls
// back when the run reaches the configured length.
func (o *Optimizer) checkRewardRollback(ctx context.Context, composite float64) {
	if !o.armed {
		return
	}
	if o.clock().Sub(o.armedAt) > o.profile.RollbackWindow {
		// window elapsed without triggering, adaptation sticks
		o.armed = false
		o.previous = nil
		return
	}
	if composite < o.baseline-o.profile.RollbackTolerance {
		o.belowBaseline++
	} else {
		o.belowBaseline = 0
	}
	if o.belowBaseline >= o.profile.RollbackConsecutive {
		o.rollback(ctx, fmt.Sprintf("%d consecutive rewards below baseline %.3f", o.belowBaseline, o.baseline))
	}
}

// rollback restores the pre-adaptation parameters. Callers hold the lock.
func (o *Optimizer) rollback(ctx context.Context, reason string) {
	restored := copyParameters(o.previous)
	current := copyParameters(o.parameters)
	o.parameters = restored
	o.armed = false
	o.previous = nil
	o.belowBaseline = 0
	rollbacksExecuted.Inc()
	logging.FromContext(ctx).With(
		"template", o.templateID,
		"tenant", o.tenantID,
	).Warnf("rolling back adaptation: %s", reason)
	o.publish(ctx, v1.AdaptationEvent{
		Type:       v1.RollbackExecuted,
		TemplateID: o.templateID,
		TenantID:   o.tenantID,
		Previous:   current,
		Proposed:   copyParameters(restored),
		Reason:     reason,
		At:         o.clock(),
	})
}

// recentImprovement compares the newer half of the reward window to the
// older half.
func (o *Optimizer) recentImprovement() float64 {
	if len(o.recent) < 4 {
		return 0
	}
	half := len(o.recent) / 2
	older := meanOf(o.recent[:half])
	newer := meanOf(o.recent[half:])
	return newer - older
}

func (o *Optimizer) recentMean() float64 {
	return meanOf(o.recent)
}

// enrich fills the history-derived features the caller cannot know.
func (o *Optimizer) enrich(inputs ContextInputs) ContextInputs {
	inputs.Observations = o.observations
	inputs.RecentAvgReward = o.recentMean()
	if o.observations > 0 {
		inputs.RecentSuccessRate = float64(o.successes) / float64(o.observations)
		inputs.RecentAvgLatency = o.latencySum / time.Duration(o.observations)
	}
	inputs.ExplorationRate = o.profile.Epsilon
	if inputs.At.IsZero() {
		inputs.At = o.clock()
	}
	return inputs
}

func (o *Optimizer) publish(ctx context.Context, evt v1.AdaptationEvent) {
	if o.stream == nil {
		return
	}
	o.stream.Publish(ctx, events.Event{
		Kind:       events.KindAdaptation,
		SubjectID:  o.templateID + "/" + o.tenantID,
		Actor:      "optimizer",
		At:         evt.At,
		Adaptation: &evt,
	})
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func copyParameters(in map[string]v1.ParameterValue) map[string]v1.ParameterValue {
	out := make(map[string]v1.ParameterValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
