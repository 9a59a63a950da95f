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

package sla

import (
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

const remediationStepTimeout = 10 * time.Minute

// remediationSequences is the deterministic action ordering per violated
// metric.
var remediationSequences = map[v1.SLAMetric][]v1.RemediationAction{
	v1.MetricErrorRate:          {v1.ActionBackendSwitch, v1.ActionErrorMitigation, v1.ActionCircuitSimplification},
	v1.MetricFidelity:           {v1.ActionErrorMitigation, v1.ActionBackendSwitch, v1.ActionRecalibration},
	v1.MetricSuccessProbability: {v1.ActionShotIncrease, v1.ActionParameterReset, v1.ActionBackendSwitch},
	v1.MetricQuantumVolume:      {v1.ActionBackendSwitch, v1.ActionCircuitSimplification},
	v1.MetricGateErrorRate:      {v1.ActionRecalibration, v1.ActionBackendSwitch},
	v1.MetricCoherenceTime:      {v1.ActionBackendSwitch, v1.ActionRecalibration},
}

var remediationDescriptions = map[v1.RemediationAction]string{
	v1.ActionBackendSwitch:         "switch to the next backend in the fallback chain",
	v1.ActionErrorMitigation:       "enable error mitigation on subsequent executions",
	v1.ActionCircuitSimplification: "reduce circuit depth via transpiler optimization",
	v1.ActionShotIncrease:          "increase shot count to tighten sampling error",
	v1.ActionRecalibration:         "request backend recalibration from the provider",
	v1.ActionParameterReset:        "reset adapted parameters to template defaults",
}

// PlanFor returns the deterministic remediation plan for the metric. Every
// plan arms the same rollback triggers.
func PlanFor(metric v1.SLAMetric) *v1.RemediationPlan {
	actions, ok := remediationSequences[metric]
	if !ok {
		actions = []v1.RemediationAction{v1.ActionBackendSwitch}
	}
	plan := &v1.RemediationPlan{
		Rollback: []v1.RollbackTrigger{
			v1.TriggerRemediationFailed,
			v1.TriggerScoreRegressed,
			v1.TriggerTimeout,
		},
	}
	for _, action := range actions {
		plan.Steps = append(plan.Steps, v1.RemediationStep{
			Action:      action,
			Description: remediationDescriptions[action],
			Timeout:     remediationStepTimeout,
		})
	}
	return plan
}
