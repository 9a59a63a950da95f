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

// SLAMetric enumerates the correctness metrics the engine can compute.
type SLAMetric string

const (
	MetricErrorRate          SLAMetric = "ERROR_RATE"
	MetricFidelity           SLAMetric = "FIDELITY"
	MetricSuccessProbability SLAMetric = "SUCCESS_PROBABILITY"
	MetricQuantumVolume      SLAMetric = "QUANTUM_VOLUME"
	MetricGateErrorRate      SLAMetric = "GATE_ERROR_RATE"
	MetricCoherenceTime      SLAMetric = "COHERENCE_TIME"
)

// LowerIsBetter reports whether a smaller observed value is the compliant
// direction for the metric.
func (m SLAMetric) LowerIsBetter() bool {
	return m == MetricErrorRate || m == MetricGateErrorRate
}

// MeasurementMethod selects how a metric value is derived and sets the
// confidence attached to the result.
type MeasurementMethod string

const (
	MethodSampling               MeasurementMethod = "SAMPLING"
	MethodProcessTomography      MeasurementMethod = "PROCESS_TOMOGRAPHY"
	MethodRandomizedBenchmarking MeasurementMethod = "RANDOMIZED_BENCHMARKING"
	MethodBackendCalibration     MeasurementMethod = "BACKEND_CALIBRATION"
)

// SLARequirement is one metric threshold the agreement enforces, together
// with the ordered backend kinds execution may fall back through.
type SLARequirement struct {
	Metric    SLAMetric         `json:"metric"`
	Threshold float64           `json:"threshold"`
	Method    MeasurementMethod `json:"method"`
	// FallbackChain is the ordered list of backend kinds permitted for
	// this requirement; it must be non-empty
	FallbackChain []BackendKind `json:"fallbackChain"`
}

type PerformanceTargets struct {
	MaxExecutionTime time.Duration `json:"maxExecutionTime"`
	MaxQueueTime     time.Duration `json:"maxQueueTime"`
	// Availability is the promised backend availability fraction
	Availability float64       `json:"availability"`
	ResponseTime time.Duration `json:"responseTime"`
}

type MonitoringSpec struct {
	Frequency time.Duration `json:"frequency"`
	Metrics   []SLAMetric   `json:"metrics"`
}

type ComplianceStatus string

const (
	ComplianceStatusCompliant ComplianceStatus = "COMPLIANT"
	ComplianceStatusAtRisk    ComplianceStatus = "AT_RISK"
	ComplianceStatusViolated  ComplianceStatus = "VIOLATED"
)

// SLACredit is a service credit accrued when a critical violation occurs.
type SLACredit struct {
	ID          string    `json:"id"`
	ViolationID string    `json:"violationId"`
	Percent     float64   `json:"percent"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// Compliance tracks the rolling health of an agreement. Score stays in
// [0,1]; violations only lower it, repair restores it over the window.
type Compliance struct {
	Score        float64          `json:"score"`
	Status       ComplianceStatus `json:"status"`
	ViolationIDs []string         `json:"violationIds,omitempty"`
	Credits      []SLACredit      `json:"credits,omitempty"`
	EvaluatedAt  time.Time        `json:"evaluatedAt"`
}

type SLAAgreement struct {
	ID           string             `json:"id"`
	TemplateID   string             `json:"templateId"`
	TenantID     string             `json:"tenantId"`
	Requirements []SLARequirement   `json:"requirements"`
	Performance  PerformanceTargets `json:"performance"`
	Monitoring   MonitoringSpec     `json:"monitoring"`
	Compliance   Compliance         `json:"compliance"`
	ValidUntil   time.Time          `json:"validUntil"`
}

type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "LOW"
	SeverityMedium   ViolationSeverity = "MEDIUM"
	SeverityHigh     ViolationSeverity = "HIGH"
	SeverityCritical ViolationSeverity = "CRITICAL"
)

// Rank orders severities for escalation comparisons.
func (s ViolationSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

type RemediationAction string

const (
	ActionBackendSwitch         RemediationAction = "BACKEND_SWITCH"
	ActionErrorMitigation       RemediationAction = "ERROR_MITIGATION"
	ActionCircuitSimplification RemediationAction = "CIRCUIT_SIMPLIFICATION"
	ActionShotIncrease          RemediationAction = "SHOT_INCREASE"
	ActionRecalibration         RemediationAction = "RECALIBRATION"
	ActionParameterReset        RemediationAction = "PARAMETER_RESET"
)

type RollbackTrigger string

const (
	TriggerRemediationFailed RollbackTrigger = "remediation_failed"
	TriggerScoreRegressed    RollbackTrigger = "score_regressed"
	TriggerTimeout           RollbackTrigger = "timeout"
)

type RemediationStep struct {
	Action      RemediationAction `json:"action"`
	Description string            `json:"description,omitempty"`
	Timeout     time.Duration     `json:"timeout"`
}

type RemediationPlan struct {
	Steps    []RemediationStep `json:"steps"`
	Rollback []RollbackTrigger `json:"rollback"`
}

// Violation is a metric result failing its threshold. Owned by the SLA
// engine, keyed by (agreement, metric).
type Violation struct {
	ID          string            `json:"id"`
	AgreementID string            `json:"agreementId"`
	ExecutionID string            `json:"executionId"`
	Metric      SLAMetric         `json:"metric"`
	Severity    ViolationSeverity `json:"severity"`
	Threshold   float64           `json:"threshold"`
	Actual      float64           `json:"actual"`
	// Deviation is |actual-threshold|/threshold, the severity driver
	Deviation   float64          `json:"deviation"`
	Remediation *RemediationPlan `json:"remediation,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	ResolvedAt  *time.Time       `json:"resolvedAt,omitempty"`
}

// MetricResult is the outcome of computing one requirement for one
// execution.
type MetricResult struct {
	Metric     SLAMetric         `json:"metric"`
	Method     MeasurementMethod `json:"method"`
	Value      float64           `json:"value"`
	Threshold  float64           `json:"threshold"`
	Passed     bool              `json:"passed"`
	Confidence float64           `json:"confidence"`
	Details    string            `json:"details,omitempty"`
}

type SLAGrade string

const (
	GradeExcellent    SLAGrade = "EXCELLENT"
	GradeGood         SLAGrade = "GOOD"
	GradeSatisfactory SLAGrade = "SATISFACTORY"
	GradePoor         SLAGrade = "POOR"
	GradeFailed       SLAGrade = "FAILED"
)

// ValidationReport is the full result of validating one execution against
// its agreement.
type ValidationReport struct {
	ExecutionID string         `json:"executionId"`
	AgreementID string         `json:"agreementId"`
	Results     []MetricResult `json:"results"`
	// Score is passed/total over the requirements
	Score       float64   `json:"score"`
	Grade       SLAGrade  `json:"grade"`
	Passed      bool      `json:"passed"`
	ValidatedAt time.Time `json:"validatedAt"`
}
