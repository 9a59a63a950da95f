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

// Package sla implements the correctness SLA engine: per-execution metric
// validation, violation detection, compliance scoring and remediation
// planning.
package sla

import (
	"math"
	"time"

	"github.com/google/uuid"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

const passingScore = 0.7

// Validate computes every requirement of the agreement against the
// execution and grades the overall result. qubits and depth come from the
// template's resource estimate.
func Validate(exec *v1.Execution, agreement *v1.SLAAgreement, qubits, depth int, now time.Time) v1.ValidationReport {
	report := v1.ValidationReport{
		ExecutionID: exec.ID,
		AgreementID: agreement.ID,
		ValidatedAt: now,
	}
	if len(agreement.Requirements) == 0 {
		report.Score = 1
		report.Grade = GradeFor(1)
		report.Passed = true
		return report
	}
	passed := 0
	for _, req := range agreement.Requirements {
		result := ComputeMetric(req, exec, qubits, depth)
		report.Results = append(report.Results, result)
		if result.Passed {
			passed++
		}
	}
	report.Score = float64(passed) / float64(len(agreement.Requirements))
	report.Grade = GradeFor(report.Score)
	report.Passed = report.Score >= passingScore
	return report
}

// GradeFor maps a score to the overall grade.
func GradeFor(score float64) v1.SLAGrade {
	switch {
	case score >= 0.95:
		return v1.GradeExcellent
	case score >= 0.85:
		return v1.GradeGood
	case score >= 0.7:
		return v1.GradeSatisfactory
	case score >= 0.5:
		return v1.GradePoor
	default:
		return v1.GradeFailed
	}
}

// SeverityFor derives the violation severity from the deviation ratio
// |value-threshold|/threshold.
func SeverityFor(deviation float64) v1.ViolationSeverity {
	switch {
	case deviation >= 0.5:
		return v1.SeverityCritical
	case deviation >= 0.2:
		return v1.SeverityHigh
	case deviation >= 0.1:
		return v1.SeverityMedium
	default:
		return v1.SeverityLow
	}
}

// IdentifyViolations is a pure function over a validation report: every
// failed metric result becomes a violation with severity from its
// deviation ratio and a deterministic remediation plan attached.
func IdentifyViolations(report v1.ValidationReport, now time.Time) []v1.Violation {
	var violations []v1.Violation
	for _, result := range report.Results {
		if result.Passed {
			continue
		}
		deviation := 0.0
		if result.Threshold != 0 {
			deviation = math.Abs(result.Value-result.Threshold) / math.Abs(result.Threshold)
		}
		violations = append(violations, v1.Violation{
			ID:          uuid.NewString(),
			AgreementID: report.AgreementID,
			ExecutionID: report.ExecutionID,
			Metric:      result.Metric,
			Severity:    SeverityFor(deviation),
			Threshold:   result.Threshold,
			Actual:      result.Value,
			Deviation:   deviation,
			Remediation: PlanFor(result.Metric),
			CreatedAt:   now,
		})
	}
	return violations
}
