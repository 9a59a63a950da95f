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

// TemplateStatus is the publication state of a template in the registry.
type TemplateStatus string

const (
	TemplateStatusAvailable    TemplateStatus = "AVAILABLE"
	TemplateStatusExperimental TemplateStatus = "EXPERIMENTAL"
	TemplateStatusRestricted   TemplateStatus = "RESTRICTED"
	TemplateStatusDeprecated   TemplateStatus = "DEPRECATED"
	TemplateStatusMaintenance  TemplateStatus = "MAINTENANCE"
)

type TemplateCategory string

const (
	CategoryOptimization    TemplateCategory = "OPTIMIZATION"
	CategorySimulation      TemplateCategory = "SIMULATION"
	CategoryCryptography    TemplateCategory = "CRYPTOGRAPHY"
	CategoryMachineLearning TemplateCategory = "MACHINE_LEARNING"
	CategoryFinance         TemplateCategory = "FINANCE"
	CategoryChemistry       TemplateCategory = "CHEMISTRY"
)

// AlgorithmFamily identifies the broad class of a quantum algorithm. The
// family selects which variant payload on Algorithm is populated.
type AlgorithmFamily string

const (
	FamilyVariational         AlgorithmFamily = "VARIATIONAL"
	FamilySearch              AlgorithmFamily = "SEARCH"
	FamilyFactoring           AlgorithmFamily = "FACTORING"
	FamilySampling            AlgorithmFamily = "SAMPLING"
	FamilyAmplitudeEstimation AlgorithmFamily = "AMPLITUDE_ESTIMATION"
)

// Algorithm is a tagged variant over algorithm families. Shared fields live
// on the outer struct; exactly one family payload is non-nil.
type Algorithm struct {
	// Name of the concrete algorithm, e.g. "QAOA", "grover", "shor"
	Name   string          `json:"name"`
	Family AlgorithmFamily `json:"family"`
	// Variational holds ansatz configuration for VARIATIONAL algorithms
	Variational *VariationalSpec `json:"variational,omitempty"`
	// Search holds oracle configuration for SEARCH algorithms
	Search *SearchSpec `json:"search,omitempty"`
	// Factoring holds modulus configuration for FACTORING algorithms
	Factoring *FactoringSpec `json:"factoring,omitempty"`
	// Sampling holds distribution configuration for SAMPLING and
	// AMPLITUDE_ESTIMATION algorithms
	Sampling *SamplingSpec `json:"sampling,omitempty"`
}

type VariationalSpec struct {
	Ansatz    string `json:"ansatz"`
	Layers    int    `json:"layers"`
	Optimizer string `json:"optimizer,omitempty"`
}

type SearchSpec struct {
	OracleDepth int `json:"oracleDepth"`
	Iterations  int `json:"iterations"`
}

type FactoringSpec struct {
	ModulusBits int `json:"modulusBits"`
}

type SamplingSpec struct {
	Distribution string `json:"distribution"`
	Samples      int    `json:"samples"`
}

// ParameterType enumerates the value kinds a template parameter may take.
type ParameterType string

const (
	ParameterTypeInteger ParameterType = "INTEGER"
	ParameterTypeFloat   ParameterType = "FLOAT"
	ParameterTypeString  ParameterType = "STRING"
	ParameterTypeBoolean ParameterType = "BOOLEAN"
)

// ParameterSpec describes a single template parameter: its type, whether the
// caller must supply it, and the validation constraints applied at
// deployment time.
type ParameterSpec struct {
	Type     ParameterType `json:"type"`
	Required bool          `json:"required"`
	// Default is applied when an optional parameter is omitted
	Default *ParameterValue `json:"default,omitempty"`
	// Min and Max bound INTEGER and FLOAT parameters inclusively
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
	// AllowedValues restricts STRING parameters to an enumeration
	AllowedValues []string `json:"allowedValues,omitempty"`
	// Pattern is a regular expression STRING parameters must match
	Pattern     string `json:"pattern,omitempty"`
	Description string `json:"description,omitempty"`
}

// ParameterSchema maps parameter names to their specs. Every parameter
// referenced at execution time must appear here.
type ParameterSchema struct {
	Parameters map[string]ParameterSpec `json:"parameters"`
}

// Resources is the atomic unit of the reservation ledger.
type Resources struct {
	QuantumMinutes float64 `json:"quantumMinutes"`
	ClassicalCPU   float64 `json:"classicalCpu"`
	MemoryGB       float64 `json:"memGb"`
	StorageGB      float64 `json:"storGb"`
}

// Add returns the element-wise sum of two resource vectors.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		QuantumMinutes: r.QuantumMinutes + other.QuantumMinutes,
		ClassicalCPU:   r.ClassicalCPU + other.ClassicalCPU,
		MemoryGB:       r.MemoryGB + other.MemoryGB,
		StorageGB:      r.StorageGB + other.StorageGB,
	}
}

// Fits reports whether r added to used stays within limit on every axis.
func (r Resources) Fits(used, limit Resources) bool {
	return used.QuantumMinutes+r.QuantumMinutes <= limit.QuantumMinutes &&
		used.ClassicalCPU+r.ClassicalCPU <= limit.ClassicalCPU &&
		used.MemoryGB+r.MemoryGB <= limit.MemoryGB &&
		used.StorageGB+r.StorageGB <= limit.StorageGB
}

// ResourceEstimate is the template author's declared cost of one deployment.
type ResourceEstimate struct {
	Resources `json:",inline"`
	Qubits    int `json:"qubits"`
	Depth     int `json:"depth"`
	GateCount int `json:"gateCount"`
}

// Template is an immutable, versioned quantum-algorithm package. Once
// registered a template never changes; a new version is a new id.
type Template struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	Description string           `json:"description,omitempty"`
	Category    TemplateCategory `json:"category"`
	Status      TemplateStatus   `json:"status"`
	Algorithms  []Algorithm      `json:"algorithms"`

	ParameterSchema ParameterSchema `json:"parameterSchema"`
	// ExportClassification is the author-declared level; the policy gate
	// computes its own and takes the stricter of the two
	ExportClassification ExportControlLevel `json:"exportClassification"`
	SLARequirements      []SLARequirement   `json:"slaRequirements"`
	ResourceEstimate     ResourceEstimate   `json:"resourceEstimate"`
	// OptimizerProfile tunes the adaptive learner for this template
	OptimizerProfile OptimizerProfile `json:"optimizerProfile"`

	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	// Extras is opaque pass-through metadata; the control plane never
	// reads it
	Extras map[string]string `json:"extras,omitempty"`
}

// RequiresApproval reports whether deployments of this template must hold an
// approved policy decision before executing.
func (t *Template) RequiresApproval() bool {
	return t.ExportClassification != ExportControlLevelUnrestricted
}
