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

	"github.com/samber/lo"
)

// DeploymentState is the lifecycle state of a deployment. Transitions are
// restricted to ValidDeploymentTransitions.
type DeploymentState string

const (
	DeploymentStatePending                 DeploymentState = "PENDING"
	DeploymentStateConfiguring             DeploymentState = "CONFIGURING"
	DeploymentStateValidatingExportControl DeploymentState = "VALIDATING_EXPORT_CONTROL"
	DeploymentStateAllocatingResources     DeploymentState = "ALLOCATING_RESOURCES"
	DeploymentStateDeployed                DeploymentState = "DEPLOYED"
	DeploymentStateExecuting               DeploymentState = "EXECUTING"
	DeploymentStateSuspended               DeploymentState = "SUSPENDED"
	DeploymentStateCompleted               DeploymentState = "COMPLETED"
	DeploymentStateFailed                  DeploymentState = "FAILED"
	DeploymentStateArchived                DeploymentState = "ARCHIVED"
)

// ValidDeploymentTransitions encodes the legal state machine. A transition
// absent from this map is rejected by the supervisor.
var ValidDeploymentTransitions = map[DeploymentState][]DeploymentState{
	DeploymentStatePending:                 {DeploymentStateConfiguring, DeploymentStateFailed},
	DeploymentStateConfiguring:             {DeploymentStateValidatingExportControl, DeploymentStateFailed},
	DeploymentStateValidatingExportControl: {DeploymentStateAllocatingResources, DeploymentStateFailed},
	DeploymentStateAllocatingResources:     {DeploymentStateDeployed, DeploymentStateFailed},
	DeploymentStateDeployed:                {DeploymentStateExecuting, DeploymentStateSuspended, DeploymentStateCompleted, DeploymentStateFailed},
	DeploymentStateExecuting:               {DeploymentStateDeployed, DeploymentStateCompleted, DeploymentStateFailed},
	DeploymentStateSuspended:               {DeploymentStateDeployed, DeploymentStateArchived},
	DeploymentStateCompleted:               {DeploymentStateArchived},
	DeploymentStateFailed:                  {DeploymentStateArchived},
	DeploymentStateArchived:                {},
}

// CanTransition reports whether the move from s to target is legal.
func (s DeploymentState) CanTransition(target DeploymentState) bool {
	return lo.Contains(ValidDeploymentTransitions[s], target)
}

// Terminal reports whether the state releases the deployment's reservation.
func (s DeploymentState) Terminal() bool {
	return s == DeploymentStateCompleted || s == DeploymentStateFailed || s == DeploymentStateArchived
}

// PriorityClass orders tenants when reservations contend on the same
// enqueue timestamp.
type PriorityClass string

const (
	PriorityCritical PriorityClass = "CRITICAL"
	PriorityHigh     PriorityClass = "HIGH"
	PriorityStandard PriorityClass = "STANDARD"
	PriorityLow      PriorityClass = "LOW"
)

func (p PriorityClass) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityStandard:
		return 1
	default:
		return 0
	}
}

// DeploymentConfig is the declarative per-tenant configuration supplied at
// deploy time.
type DeploymentConfig struct {
	Parameters map[string]ParameterValue `json:"parameters"`
	// BackendPreferences orders the backend kinds the tenant prefers;
	// selection falls back through the SLA requirement's fallback chain
	BackendPreferences []BackendKind `json:"backendPreferences,omitempty"`
	// AllowConcurrent permits more than one active execution
	AllowConcurrent bool          `json:"allowConcurrent,omitempty"`
	Priority        PriorityClass `json:"priority,omitempty"`
}

// Reservation is an atomic hold on the shared resource pools, tied to a
// deployment id and released on terminal states.
type Reservation struct {
	SubjectID  string    `json:"subjectId"`
	Resources  Resources `json:"resources"`
	Reserved   bool      `json:"reserved"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	GrantedAt  time.Time `json:"grantedAt,omitempty"`
}

type DeploymentMetrics struct {
	TotalExecutions     int           `json:"totalExecutions"`
	SucceededExecutions int           `json:"succeededExecutions"`
	FailedExecutions    int           `json:"failedExecutions"`
	TotalCost           float64       `json:"totalCost"`
	AvgExecutionTime    time.Duration `json:"avgExecutionTime"`
	LastExecutionAt     time.Time     `json:"lastExecutionAt,omitempty"`
}

// Deployment is a per-tenant instantiation of a template. Executions are
// child records owned by the deployment and referenced by id.
type Deployment struct {
	ID         string           `json:"id"`
	TemplateID string           `json:"templateId"`
	TenantID   string           `json:"tenantId"`
	Config     DeploymentConfig `json:"config"`
	SLA        SLAAgreement     `json:"slaAgreement"`
	// Reservation is nil until ALLOCATING_RESOURCES succeeds
	Reservation *Reservation `json:"reservation,omitempty"`
	// ApprovalID references the policy approval when the template
	// requires one; deployments never hold the approval itself
	ApprovalID string `json:"approvalId,omitempty"`

	State         DeploymentState   `json:"state"`
	ExecutionIDs  []string          `json:"executionIds,omitempty"`
	Metrics       DeploymentMetrics `json:"metrics"`
	FailureReason string            `json:"failureReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
