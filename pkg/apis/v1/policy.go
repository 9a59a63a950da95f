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

// ExportControlLevel is the classification assigned to an algorithm by the
// policy gate, strictest last.
type ExportControlLevel string

const (
	ExportControlLevelUnrestricted   ExportControlLevel = "UNRESTRICTED"
	ExportControlLevelDualUse        ExportControlLevel = "DUAL_USE"
	ExportControlLevelRestricted     ExportControlLevel = "RESTRICTED"
	ExportControlLevelITARControlled ExportControlLevel = "ITAR_CONTROLLED"
	ExportControlLevelEARControlled  ExportControlLevel = "EAR_CONTROLLED"
	ExportControlLevelClassified     ExportControlLevel = "CLASSIFIED"
)

// Rank orders levels by strictness; higher is stricter.
func (l ExportControlLevel) Rank() int {
	switch l {
	case ExportControlLevelClassified:
		return 5
	case ExportControlLevelITARControlled:
		return 4
	case ExportControlLevelEARControlled:
		return 3
	case ExportControlLevelRestricted:
		return 2
	case ExportControlLevelDualUse:
		return 1
	default:
		return 0
	}
}

// Stricter returns the stricter of two levels.
func (l ExportControlLevel) Stricter(other ExportControlLevel) ExportControlLevel {
	if other.Rank() > l.Rank() {
		return other
	}
	return l
}

type ActorType string

const (
	ActorTypeIndividual   ActorType = "INDIVIDUAL"
	ActorTypeOrganization ActorType = "ORGANIZATION"
	ActorTypeGovernment   ActorType = "GOVERNMENT"
)

// License is an export license held by an actor.
type License struct {
	Type string `json:"type"`
	// Destinations lists the jurisdictions the license covers; empty
	// means all
	Destinations []string  `json:"destinations,omitempty"`
	ValidUntil   time.Time `json:"validUntil"`
}

// Covers reports whether the license is valid for the destination at now.
func (l License) Covers(destination string, now time.Time) bool {
	if now.After(l.ValidUntil) {
		return false
	}
	return len(l.Destinations) == 0 || lo.Contains(l.Destinations, destination)
}

// Actor is the party requesting a deployment.
type Actor struct {
	ID           string    `json:"id"`
	Type         ActorType `json:"type"`
	Jurisdiction string    `json:"jurisdiction"`
	Licenses     []License `json:"licenses,omitempty"`
	// Documentation lists compliance documents the actor holds, matched
	// against exemption requirements
	Documentation []string `json:"documentation,omitempty"`
}

type ScreeningStatus string

const (
	ScreeningClear          ScreeningStatus = "CLEAR"
	ScreeningPotentialMatch ScreeningStatus = "POTENTIAL_MATCH"
	ScreeningConfirmedMatch ScreeningStatus = "CONFIRMED_MATCH"
	ScreeningBlocked        ScreeningStatus = "BLOCKED"
)

type ScreeningResult struct {
	Status  ScreeningStatus `json:"status"`
	Matches []string        `json:"matches,omitempty"`
}

// Classification is the deterministic output of the algorithm classifier.
type Classification struct {
	Level        ExportControlLevel `json:"level"`
	Category     string             `json:"category"`
	ControlCodes []string           `json:"controlCodes,omitempty"`
	Confidence   float64            `json:"confidence"`
}

type RestrictionType string

const (
	RestrictionGeographic  RestrictionType = "GEOGRAPHIC"
	RestrictionEntity      RestrictionType = "ENTITY"
	RestrictionEndUse      RestrictionType = "END_USE"
	RestrictionTechnology  RestrictionType = "TECHNOLOGY"
	RestrictionTimeLimited RestrictionType = "TIME_LIMITED"
	RestrictionConditional RestrictionType = "CONDITIONAL"
)

// Restriction is one rule entry applying to a control-list item.
type Restriction struct {
	Type        RestrictionType `json:"type"`
	Description string          `json:"description"`
	// EndUseKeywords trigger the restriction on a case-insensitive
	// keyword match in the declared end use; empty matches all
	EndUseKeywords []string   `json:"endUseKeywords,omitempty"`
	Expires        *time.Time `json:"expires,omitempty"`
	Conditions     []string   `json:"conditions,omitempty"`
}

// Exemption lifts a restriction when its criteria match the declared
// end use and the actor holds the required documentation.
type Exemption struct {
	ID       string   `json:"id"`
	Keywords []string `json:"keywords,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	// RequiredDocs must all appear in the actor's documentation
	RequiredDocs []string `json:"requiredDocs,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// ControlListItem is one controlled technology entry inside a jurisdiction
// rule.
type ControlListItem struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	// Levels are the classification levels this item applies to
	Levels           []ExportControlLevel `json:"levels"`
	Restrictions     []Restriction        `json:"restrictions,omitempty"`
	Exemptions       []Exemption          `json:"exemptions,omitempty"`
	RequiredLicenses []string             `json:"requiredLicenses,omitempty"`
}

// ExportControlRule is the full rule set for one destination jurisdiction.
type ExportControlRule struct {
	Jurisdiction        string            `json:"jurisdiction"`
	Items               []ControlListItem `json:"items"`
	EnforcementSeverity string            `json:"enforcementSeverity,omitempty"`
}

// PolicyDecision is the gate's answer for one
// (template, actor, destination, endUse) query.
type PolicyDecision struct {
	Approved bool               `json:"approved"`
	Level    ExportControlLevel `json:"level"`
	// RequiresManualApproval is set when the query passed all checks but
	// must go through the approval workflow
	RequiresManualApproval bool            `json:"requiresManualApproval"`
	Screening              ScreeningStatus `json:"screening"`
	Restrictions           []string        `json:"restrictions,omitempty"`
	RequiredApprovals      []ReviewerRole  `json:"requiredApprovals,omitempty"`
	ValidLicenses          []string        `json:"validLicenses,omitempty"`
	MissingLicenses        []string        `json:"missingLicenses,omitempty"`
	Reasoning              []string        `json:"reasoning,omitempty"`
}

type ApprovalStatus string

const (
	ApprovalStatusPending     ApprovalStatus = "PENDING"
	ApprovalStatusApproved    ApprovalStatus = "APPROVED"
	ApprovalStatusConditional ApprovalStatus = "CONDITIONAL"
	ApprovalStatusDenied      ApprovalStatus = "DENIED"
	ApprovalStatusExpired     ApprovalStatus = "EXPIRED"
	ApprovalStatusRevoked     ApprovalStatus = "REVOKED"
)

// Settled reports whether the status is one of the monotonic end states. A
// settled approval may only still move to EXPIRED or REVOKED.
func (s ApprovalStatus) Settled() bool {
	switch s {
	case ApprovalStatusApproved, ApprovalStatusConditional, ApprovalStatusDenied, ApprovalStatusExpired, ApprovalStatusRevoked:
		return true
	}
	return false
}

// Granted reports whether the approval currently authorizes execution.
func (s ApprovalStatus) Granted() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusConditional
}

type ReviewerRole string

const (
	ReviewerCompliance    ReviewerRole = "COMPLIANCE"
	ReviewerLegal         ReviewerRole = "LEGAL"
	ReviewerSecurity      ReviewerRole = "SECURITY"
	ReviewerExportOfficer ReviewerRole = "EXPORT_OFFICER"
)

// ReviewVote is one reviewer's recorded decision on an approval.
type ReviewVote struct {
	Reviewer ReviewerRole `json:"reviewer"`
	Approve  bool         `json:"approve"`
	Note     string       `json:"note,omitempty"`
	At       time.Time    `json:"at"`
}

// Approval is a manual-review request created by the policy gate. Owned by
// the approval workflow; deployments reference it by id.
type Approval struct {
	ID           string `json:"id"`
	DeploymentID string `json:"deploymentId"`
	TemplateID   string `json:"templateId"`
	ActorID      string `json:"actorId"`

	Status     ApprovalStatus `json:"status"`
	Conditions []string       `json:"conditions,omitempty"`
	// Reviewers are the roles that must all approve at the current stage
	Reviewers []ReviewerRole `json:"reviewers"`
	Votes     []ReviewVote   `json:"votes,omitempty"`
	// Stage counts escalations; 0 is the initial review stage
	Stage      int       `json:"stage"`
	ValidUntil time.Time `json:"validUntil"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
