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

// Package backend defines the driver contract for execution targets and
// the selector that picks one from a preference list.
package backend

import (
	"context"
	"errors"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

var (
	ErrBackendUnavailable     = errors.New("backend unavailable")
	ErrBackendTimeout         = errors.New("backend timeout")
	ErrBackendMalformedResult = errors.New("backend returned malformed result")
)

// Circuit is the abstract program handed to a driver. Drivers do not see
// templates; the supervisor lowers a deployment into a circuit.
type Circuit struct {
	TemplateID string
	Qubits     int
	Depth      int
	GateCount  int
	Parameters map[string]v1.ParameterValue
}

// SubmitOptions carries per-execution tuning.
type SubmitOptions struct {
	OptimizationLevel int
	ErrorMitigation   bool
	Seed              int64
}

// Handle identifies a submitted execution on a driver.
type Handle string

// PollStatus is the driver-side view of a submitted execution.
type PollStatus string

const (
	PollQueued  PollStatus = "QUEUED"
	PollRunning PollStatus = "RUNNING"
	PollDone    PollStatus = "DONE"
	PollFailed  PollStatus = "FAILED"
)

// PollResult is the driver's answer to one poll.
type PollResult struct {
	Status PollStatus
	// Results is set once Status is DONE; drivers may attach partial
	// results while RUNNING
	Results *v1.ExecutionResults
	Reason  string
}

// Driver is the backend execution contract. The selector consumes Describe
// only; the execution runner uses the full interface.
type Driver interface {
	Submit(ctx context.Context, circuit Circuit, shots int, opts SubmitOptions) (Handle, error)
	Poll(ctx context.Context, handle Handle) (PollResult, error)
	Cancel(ctx context.Context, handle Handle) error
	Describe() v1.BackendMetadata
}
