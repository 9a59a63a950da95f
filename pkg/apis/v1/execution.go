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

// BackendKind is the coarse class of execution target.
type BackendKind string

const (
	BackendClassical BackendKind = "CLASSICAL"
	BackendEmulator  BackendKind = "EMULATOR"
	BackendQPU       BackendKind = "QPU"
)

// BackendMetadata is the driver's self-description, consumed by the
// selector and recorded on every execution.
type BackendMetadata struct {
	Kind     BackendKind `json:"kind"`
	Provider string      `json:"provider"`
	Region   string      `json:"region,omitempty"`
	// Availability is the driver's current availability fraction in [0,1]
	Availability float64 `json:"availability"`
	CostPerShot  float64 `json:"costPerShot"`
	// ExpectedLatency is the driver's current queue+run latency estimate
	ExpectedLatency     time.Duration `json:"expectedLatency"`
	CoherenceTimeMicros float64       `json:"coherenceTimeUs"`
	GateErrorRate       float64       `json:"gateErrorRate"`
}

type ExecutionStatus string

const (
	ExecutionStatusQueued         ExecutionStatus = "QUEUED"
	ExecutionStatusValidating     ExecutionStatus = "VALIDATING"
	ExecutionStatusAllocating     ExecutionStatus = "ALLOCATING"
	ExecutionStatusExecuting      ExecutionStatus = "EXECUTING"
	ExecutionStatusPostProcessing ExecutionStatus = "POST_PROCESSING"
	ExecutionStatusCompleted      ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed         ExecutionStatus = "FAILED"
	ExecutionStatusCancelled      ExecutionStatus = "CANCELLED"
	ExecutionStatusTimeout        ExecutionStatus = "TIMEOUT"
)

// Terminal states are absorbing; a terminal execution never changes status.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	}
	return false
}

type ExecutionConfig struct {
	Shots             int  `json:"shots"`
	OptimizationLevel int  `json:"optimizationLevel"`
	ErrorMitigation   bool `json:"errorMitigation"`
	// Seed makes fake-backend runs reproducible; zero means unseeded
	Seed int64 `json:"seed,omitempty"`
}

// MeasurementOutcome is one observed bitstring with its frequency.
type MeasurementOutcome struct {
	Bitstring   string  `json:"bitstring"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

// ExecutionResults carries the raw measurement data returned by the driver.
type ExecutionResults struct {
	Outcomes []MeasurementOutcome `json:"outcomes"`
	// ShotConfidences holds the driver-reported per-shot confidence in
	// [0,1]; ERROR_RATE is the fraction below 0.5
	ShotConfidences []float64 `json:"shotConfidences,omitempty"`
	TotalShots      int       `json:"totalShots"`
}

type ExecutionPerf struct {
	QueueTime time.Duration `json:"queueTime"`
	RunTime   time.Duration `json:"runTime"`
	TotalTime time.Duration `json:"totalTime"`
}

type ExecutionCost struct {
	Total    float64 `json:"total"`
	PerShot  float64 `json:"perShot"`
	Currency string  `json:"currency"`
}

// Execution is a single run of a deployment against a backend.
type Execution struct {
	ID           string          `json:"id"`
	DeploymentID string          `json:"deploymentId"`
	Backend      BackendMetadata `json:"backendSelected"`
	Config       ExecutionConfig `json:"config"`
	Status       ExecutionStatus `json:"status"`

	Results *ExecutionResults `json:"results,omitempty"`
	// Correctness is filled in by the SLA validator after completion
	Correctness   *ValidationReport `json:"correctness,omitempty"`
	Perf          ExecutionPerf     `json:"perf"`
	Cost          ExecutionCost     `json:"cost"`
	FailureReason string            `json:"failureReason,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}
