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

// Package policy implements the export-control and sanctions gate. Every
// deployment passes through the five-step pipeline: classify, screen,
// jurisdiction check, license check, then auto-approve or hand off to the
// approval workflow. The pipeline short-circuits on the first denial.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/operator/logging"
)

var (
	ErrPolicyDenied     = errors.New("policy denied")
	ErrSanctionsBlocked = errors.New("sanctions blocked")
	ErrLicenseMissing   = errors.New("license missing")
)

// Keyword sets driving the auto-approval decision for DUAL_USE queries.
var (
	lowRiskEndUses  = []string{"research", "education", "academic", "commercial", "optimization"}
	highRiskEndUses = []string{"military", "defense", "weapon", "surveillance", "intelligence"}
)

// DefaultAllowedJurisdictions are the destinations eligible for
// auto-approval of DUAL_USE queries.
var DefaultAllowedJurisdictions = []string{"US", "CA", "GB", "DE", "FR", "JP", "AU"}

type Gate struct {
	classifier           ClassifyService
	screener             Screener
	licenses             LicenseService
	rules                *RuleStore
	allowedJurisdictions []string
}

func NewGate(classifier ClassifyService, screener Screener, licenses LicenseService, rules *RuleStore) *Gate {
	return &Gate{
		classifier:           classifier,
		screener:             screener,
		licenses:             licenses,
		rules:                rules,
		allowedJurisdictions: DefaultAllowedJurisdictions,
	}
}

// WithAllowedJurisdictions overrides the auto-approval destination list.
func (g *Gate) WithAllowedJurisdictions(jurisdictions []string) *Gate {
	g.allowedJurisdictions = jurisdictions
	return g
}

// Evaluate runs the policy pipeline. The returned decision is deterministic
// for fixed inputs and a fixed rule snapshot. A nil error with
// Approved=false means the gate denied; the Reasoning explains why.
func (g *Gate) Evaluate(ctx context.Context, t *v1.Template, actor v1.Actor, destination, endUse string) (v1.PolicyDecision, error) {
	destination = strings.ToUpper(destination)
	decision := v1.PolicyDecision{Screening: v1.ScreeningClear}

	// 1. classify
	classification, err := g.classifier.Classify(ctx, t)
	if err != nil {
		return decision, fmt.Errorf("classifying template %s, %w", t.ID, err)
	}
	decision.Level = classification.Level
	decision.Reasoning = append(decision.Reasoning,
		fmt.Sprintf("classified %s as %s (%s)", t.ID, classification.Level, classification.Category))

	if classification.Level == v1.ExportControlLevelClassified {
		decision.Reasoning = append(decision.Reasoning, "classified workloads are never exportable")
		return decision, nil
	}

	// 2. sanctions screen
	screening, err := g.screener.Screen(ctx, actor)
	if err != nil {
		return decision, fmt.Errorf("screening actor %s, %w", actor.ID, err)
	}
	decision.Screening = screening.Status
	if screening.Status == v1.ScreeningBlocked {
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("actor %s is blocked by sanctions screening: %s", actor.ID, strings.Join(screening.Matches, ", ")))
		return decision, nil
	}

	// 3. jurisdiction rules
	requiredLicenses := []string{}
	if rule, ok := g.rules.ForJurisdiction(destination); ok {
		for _, item := range matchingItems(rule, classification.Level) {
			requiredLicenses = append(requiredLicenses, item.RequiredLicenses...)
			for _, restriction := range item.Restrictions {
				if !restrictionTriggered(restriction, endUse) {
					continue
				}
				exempted := lo.SomeBy(item.Exemptions, func(ex v1.Exemption) bool {
					return exemptionApplies(ex, endUse, actor)
				})
				if exempted {
					decision.Reasoning = append(decision.Reasoning,
						fmt.Sprintf("restriction %s lifted by exemption", item.Code))
					continue
				}
				decision.Restrictions = append(decision.Restrictions, describeRestriction(item, restriction))
			}
		}
	}
	if len(decision.Restrictions) > 0 {
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("%d restriction(s) apply for destination %s", len(decision.Restrictions), destination))
		return decision, nil
	}

	// 4. license cross-reference
	for _, licenseType := range lo.Uniq(requiredLicenses) {
		has, lerr := g.licenses.HasLicense(ctx, actor, licenseType, destination, endUse)
		if lerr != nil {
			return decision, fmt.Errorf("checking license %s for actor %s, %w", licenseType, actor.ID, lerr)
		}
		if has {
			decision.ValidLicenses = append(decision.ValidLicenses, licenseType)
		} else {
			decision.MissingLicenses = append(decision.MissingLicenses, licenseType)
		}
	}
	if len(decision.MissingLicenses) > 0 {
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("missing license(s): %s", strings.Join(decision.MissingLicenses, ", ")))
		return decision, nil
	}

	// 5. auto-approve or manual review
	if g.autoApprovable(classification.Level, screening.Status, destination, endUse) {
		decision.Approved = true
		decision.Reasoning = append(decision.Reasoning, "auto-approved")
		logging.FromContext(ctx).With("template", t.ID, "actor", actor.ID, "level", decision.Level).
			Debugf("policy gate auto-approved")
		return decision, nil
	}
	decision.RequiresManualApproval = true
	decision.RequiredApprovals = ReviewersFor(classification.Level)
	decision.Reasoning = append(decision.Reasoning,
		fmt.Sprintf("manual review required by %v", decision.RequiredApprovals))
	return decision, nil
}

// autoApprovable implements the auto-approval rules: UNRESTRICTED always;
// DUAL_USE only with a low-risk end use, no high-risk keyword, a clear
// screening and an allowed destination.
func (g *Gate) autoApprovable(level v1.ExportControlLevel, screening v1.ScreeningStatus, destination, endUse string) bool {
	if level == v1.ExportControlLevelUnrestricted {
		return true
	}
	if level != v1.ExportControlLevelDualUse {
		return false
	}
	if screening != v1.ScreeningClear {
		return false
	}
	lowered := strings.ToLower(endUse)
	if lo.SomeBy(highRiskEndUses, func(kw string) bool { return strings.Contains(lowered, kw) }) {
		return false
	}
	if !lo.SomeBy(lowRiskEndUses, func(kw string) bool { return strings.Contains(lowered, kw) }) {
		return false
	}
	return lo.ContainsBy(g.allowedJurisdictions, func(j string) bool {
		return strings.EqualFold(j, destination)
	})
}

// ReviewersFor returns the reviewer roles a manual approval at the level
// requires.
func ReviewersFor(level v1.ExportControlLevel) []v1.ReviewerRole {
	switch level {
	case v1.ExportControlLevelITARControlled, v1.ExportControlLevelClassified:
		return []v1.ReviewerRole{v1.ReviewerCompliance, v1.ReviewerLegal, v1.ReviewerSecurity, v1.ReviewerExportOfficer}
	case v1.ExportControlLevelRestricted, v1.ExportControlLevelEARControlled:
		return []v1.ReviewerRole{v1.ReviewerCompliance, v1.ReviewerLegal, v1.ReviewerSecurity}
	default:
		return []v1.ReviewerRole{v1.ReviewerCompliance}
	}
}

// DenialError converts a denied decision into the matching error kind for
// callers that surface failures.
func DenialError(decision v1.PolicyDecision) error {
	switch {
	case decision.Approved || decision.RequiresManualApproval:
		return nil
	case decision.Screening == v1.ScreeningBlocked:
		return fmt.Errorf("%w: %s", ErrSanctionsBlocked, strings.Join(decision.Reasoning, "; "))
	case len(decision.MissingLicenses) > 0:
		return fmt.Errorf("%w: %s", ErrLicenseMissing, strings.Join(decision.MissingLicenses, ", "))
	default:
		return fmt.Errorf("%w: %s", ErrPolicyDenied, strings.Join(decision.Reasoning, "; "))
	}
}
