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

package audit

import (
	"context"
	"fmt"

	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/operator/logging"
)

// Recorder subscribes to the event stream and appends a receipt for every
// state-changing event it sees.
type Recorder struct {
	log *Log
}

func NewRecorder(log *Log) *Recorder {
	return &Recorder{log: log}
}

func (r *Recorder) Name() string { return "audit" }

func (r *Recorder) Handles() []events.Kind {
	return []events.Kind{
		events.KindDeploymentTransitioned,
		events.KindApprovalTransitioned,
		events.KindExecutionTransitioned,
		events.KindViolationDetected,
		events.KindAdaptation,
		events.KindReservationChanged,
	}
}

func (r *Recorder) Handle(ctx context.Context, evt events.Event) {
	details := map[string]string{}
	switch evt.Kind {
	case events.KindDeploymentTransitioned:
		details["from"] = string(evt.Deployment.From)
		details["to"] = string(evt.Deployment.To)
		details["templateId"] = evt.Deployment.TemplateID
		details["tenantId"] = evt.Deployment.TenantID
		if evt.Deployment.Reason != "" {
			details["reason"] = evt.Deployment.Reason
		}
	case events.KindApprovalTransitioned:
		details["from"] = string(evt.Approval.From)
		details["to"] = string(evt.Approval.To)
		details["stage"] = fmt.Sprint(evt.Approval.Stage)
		if evt.Approval.Reason != "" {
			details["reason"] = evt.Approval.Reason
		}
	case events.KindExecutionTransitioned:
		details["from"] = string(evt.Execution.From)
		details["to"] = string(evt.Execution.To)
		if evt.Execution.Backend != "" {
			details["backend"] = string(evt.Execution.Backend)
		}
		if evt.Execution.Reason != "" {
			details["reason"] = evt.Execution.Reason
		}
	case events.KindViolationDetected:
		details["metric"] = string(evt.Violation.Metric)
		details["severity"] = string(evt.Violation.Severity)
		details["threshold"] = fmt.Sprintf("%g", evt.Violation.Threshold)
		details["actual"] = fmt.Sprintf("%g", evt.Violation.Actual)
	case events.KindAdaptation:
		details["type"] = string(evt.Adaptation.Type)
		if evt.Adaptation.Reason != "" {
			details["reason"] = evt.Adaptation.Reason
		}
	case events.KindReservationChanged:
		details["reserved"] = fmt.Sprint(evt.Reservation.Reserved)
		details["quantumMinutes"] = fmt.Sprintf("%g", evt.Reservation.Resources.QuantumMinutes)
	}
	if _, err := r.log.Append(ctx, evt.SubjectID, string(evt.Kind), evt.Actor, details); err != nil {
		logging.FromContext(ctx).With("subject", evt.SubjectID).Errorf("recording receipt, %s", err)
	}
}
