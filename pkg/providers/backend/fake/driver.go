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

// Package fake provides deterministic in-memory backend drivers for tests
// and for running the control plane without real hardware.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/providers/backend"
)

// Behavior tunes a fake driver's simulated characteristics.
type Behavior struct {
	Metadata v1.BackendMetadata
	// BaseErrorRate drives the fraction of low-confidence shots
	BaseErrorRate float64
	// PollsUntilDone is how many polls report RUNNING before DONE
	PollsUntilDone int
	// FailSubmits makes the next N submits fail with ErrBackendUnavailable
	FailSubmits int
	// FailRuns makes the next N runs end in a FAILED poll
	FailRuns int
}

type job struct {
	circuit  backend.Circuit
	shots    int
	opts     backend.SubmitOptions
	polls    int
	fail     bool
	rng      *rand.Rand
	canceled bool
}

// Driver is a deterministic fake. With a fixed seed on SubmitOptions the
// generated measurements are reproducible.
type Driver struct {
	mu       sync.Mutex
	behavior Behavior
	jobs     map[backend.Handle]*job
}

func NewDriver(behavior Behavior) *Driver {
	if behavior.Metadata.Provider == "" {
		behavior.Metadata.Provider = "fake"
	}
	return &Driver{
		behavior: behavior,
		jobs:     map[backend.Handle]*job{},
	}
}

// NewClassical returns a noiseless classical-simulator driver.
func NewClassical() *Driver {
	return NewDriver(Behavior{
		Metadata: v1.BackendMetadata{
			Kind:            v1.BackendClassical,
			Provider:        "fake",
			Availability:    0.99,
			CostPerShot:     0.00001,
			ExpectedLatency: 50 * time.Millisecond,
		},
	})
}

// NewEmulator returns an emulator driver with light noise.
func NewEmulator() *Driver {
	return NewDriver(Behavior{
		Metadata: v1.BackendMetadata{
			Kind:                v1.BackendEmulator,
			Provider:            "fake",
			Availability:        0.97,
			CostPerShot:         0.0001,
			ExpectedLatency:     200 * time.Millisecond,
			CoherenceTimeMicros: 150,
			GateErrorRate:       0.001,
		},
		BaseErrorRate: 0.01,
	})
}

// NewQPU returns a QPU driver with hardware-grade noise and cost.
func NewQPU() *Driver {
	return NewDriver(Behavior{
		Metadata: v1.BackendMetadata{
			Kind:                v1.BackendQPU,
			Provider:            "fake",
			Region:              "us-east-1",
			Availability:        0.9,
			CostPerShot:         0.01,
			ExpectedLatency:     5 * time.Second,
			CoherenceTimeMicros: 100,
			GateErrorRate:       0.005,
		},
		BaseErrorRate: 0.05,
	})
}

func (d *Driver) Describe() v1.BackendMetadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.behavior.Metadata
}

// SetAvailability adjusts the reported availability, used by tests to
// knock a backend out of selection.
func (d *Driver) SetAvailability(availability float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.behavior.Metadata.Availability = availability
}

// FailNextSubmits arms submit failures.
func (d *Driver) FailNextSubmits(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.behavior.FailSubmits = n
}

// FailNextRuns arms run failures.
func (d *Driver) FailNextRuns(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.behavior.FailRuns = n
}

func (d *Driver) Submit(_ context.Context, circuit backend.Circuit, shots int, opts backend.SubmitOptions) (backend.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.behavior.FailSubmits > 0 {
		d.behavior.FailSubmits--
		return "", fmt.Errorf("submitting to %s, %w", d.behavior.Metadata.Kind, backend.ErrBackendUnavailable)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	handle := backend.Handle(uuid.NewString())
	j := &job{
		circuit: circuit,
		shots:   shots,
		opts:    opts,
		rng:     rand.New(rand.NewSource(seed)),
	}
	if d.behavior.FailRuns > 0 {
		d.behavior.FailRuns--
		j.fail = true
	}
	d.jobs[handle] = j
	return handle, nil
}

func (d *Driver) Poll(_ context.Context, handle backend.Handle) (backend.PollResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[handle]
	if !ok {
		return backend.PollResult{}, fmt.Errorf("polling unknown handle %s, %w", handle, backend.ErrBackendMalformedResult)
	}
	if j.canceled {
		return backend.PollResult{Status: backend.PollFailed, Reason: "cancelled"}, nil
	}
	if j.polls < d.behavior.PollsUntilDone {
		j.polls++
		return backend.PollResult{Status: backend.PollRunning}, nil
	}
	if j.fail {
		return backend.PollResult{Status: backend.PollFailed, Reason: "simulated hardware fault"}, nil
	}
	return backend.PollResult{Status: backend.PollDone, Results: d.measure(j)}, nil
}

func (d *Driver) Cancel(_ context.Context, handle backend.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if j, ok := d.jobs[handle]; ok {
		j.canceled = true
	}
	return nil
}

// measure synthesizes measurement counts concentrated on the all-zeros
// bitstring with noise spreading mass to neighbors, plus per-shot
// confidences derived from the base error rate.
func (d *Driver) measure(j *job) *v1.ExecutionResults {
	width := j.circuit.Qubits
	if width <= 0 {
		width = 4
	}
	if width > 16 {
		width = 16
	}
	errorRate := d.behavior.BaseErrorRate
	if j.opts.ErrorMitigation {
		errorRate /= 2
	}

	counts := map[string]int{}
	confidences := make([]float64, j.shots)
	dominant := fmt.Sprintf("%0*b", width, 0)
	for i := 0; i < j.shots; i++ {
		if j.rng.Float64() < errorRate {
			flipped := 1 + j.rng.Intn((1<<uint(min(width, 10)))-1)
			counts[fmt.Sprintf("%0*b", width, flipped)]++
			confidences[i] = 0.2 + 0.25*j.rng.Float64()
		} else {
			counts[dominant]++
			confidences[i] = 0.8 + 0.19*j.rng.Float64()
		}
	}
	outcomes := make([]v1.MeasurementOutcome, 0, len(counts))
	for bitstring, count := range counts {
		outcomes = append(outcomes, v1.MeasurementOutcome{
			Bitstring:   bitstring,
			Count:       count,
			Probability: float64(count) / float64(j.shots),
		})
	}
	return &v1.ExecutionResults{
		Outcomes:        outcomes,
		ShotConfidences: confidences,
		TotalShots:      j.shots,
	}
}
