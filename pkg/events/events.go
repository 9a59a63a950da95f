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

// Package events provides the single typed event stream every lifecycle
// transition flows through. Subscribers declare the kinds they handle;
// per-subject ordering is preserved, across subjects there is none.
package events

import (
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

type Kind string

const (
	KindDeploymentTransitioned Kind = "DeploymentTransitioned"
	KindApprovalTransitioned   Kind = "ApprovalTransitioned"
	KindExecutionTransitioned  Kind = "ExecutionTransitioned"
	KindViolationDetected      Kind = "ViolationDetected"
	KindAdaptation             Kind = "Adaptation"
	KindReservationChanged     Kind = "ReservationChanged"
)

// Event is a tagged variant: Kind selects which payload pointer is non-nil.
type Event struct {
	Kind      Kind      `json:"kind"`
	SubjectID string    `json:"subjectId"`
	Actor     string    `json:"actor"`
	At        time.Time `json:"at"`

	Deployment  *DeploymentTransition `json:"deployment,omitempty"`
	Approval    *ApprovalTransition   `json:"approval,omitempty"`
	Execution   *ExecutionTransition  `json:"execution,omitempty"`
	Violation   *v1.Violation         `json:"violation,omitempty"`
	Adaptation  *v1.AdaptationEvent   `json:"adaptation,omitempty"`
	Reservation *ReservationChange    `json:"reservation,omitempty"`
}

type DeploymentTransition struct {
	TemplateID string             `json:"templateId"`
	TenantID   string             `json:"tenantId"`
	From       v1.DeploymentState `json:"from"`
	To         v1.DeploymentState `json:"to"`
	Reason     string             `json:"reason,omitempty"`
}

type ApprovalTransition struct {
	DeploymentID string            `json:"deploymentId"`
	From         v1.ApprovalStatus `json:"from"`
	To           v1.ApprovalStatus `json:"to"`
	Stage        int               `json:"stage"`
	Reason       string            `json:"reason,omitempty"`
}

type ExecutionTransition struct {
	DeploymentID string             `json:"deploymentId"`
	From         v1.ExecutionStatus `json:"from"`
	To           v1.ExecutionStatus `json:"to"`
	Backend      v1.BackendKind     `json:"backend,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}

type ReservationChange struct {
	Resources v1.Resources `json:"resources"`
	Reserved  bool         `json:"reserved"`
}
