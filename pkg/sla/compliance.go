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
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

const (
	// DefaultComplianceWindow is the rolling window for the score.
	DefaultComplianceWindow = 7 * 24 * time.Hour
	criticalCreditPercent   = 10.0
)

// Tracker owns violations keyed by agreement and maintains each
// agreement's compliance. Violations only lower the score; as they age out
// of the window the score recovers, never above 1.
type Tracker struct {
	mu         sync.RWMutex
	violations map[string][]v1.Violation
	window     time.Duration
}

func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultComplianceWindow
	}
	return &Tracker{
		violations: map[string][]v1.Violation{},
		window:     window,
	}
}

// Record stores violations under their agreements.
func (t *Tracker) Record(violations ...v1.Violation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, violation := range violations {
		t.violations[violation.AgreementID] = append(t.violations[violation.AgreementID], violation)
	}
}

// Recent returns the agreement's violations inside the rolling window.
func (t *Tracker) Recent(agreementID string, now time.Time) []v1.Violation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := now.Add(-t.window)
	return lo.Filter(t.violations[agreementID], func(violation v1.Violation, _ int) bool {
		return violation.CreatedAt.After(cutoff)
	})
}

// Resolve marks a violation resolved.
func (t *Tracker) Resolve(agreementID, violationID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.violations[agreementID] {
		if t.violations[agreementID][i].ID == violationID {
			resolved := now
			t.violations[agreementID][i].ResolvedAt = &resolved
			return
		}
	}
}

// UpdateCompliance recomputes the agreement's compliance from the recent
// violations: score = max(0, 1 - 0.1*N_recent), status VIOLATED on any
// critical, AT_RISK on any other, COMPLIANT otherwise. Critical violations
// accrue a service credit exactly once.
func (t *Tracker) UpdateCompliance(agreement *v1.SLAAgreement, now time.Time) {
	recent := t.Recent(agreement.ID, now)

	agreement.Compliance.Score = math.Max(0, 1-0.1*float64(len(recent)))
	agreement.Compliance.ViolationIDs = lo.Map(recent, func(v v1.Violation, _ int) string { return v.ID })
	agreement.Compliance.EvaluatedAt = now

	switch {
	case lo.SomeBy(recent, func(v v1.Violation) bool { return v.Severity == v1.SeverityCritical }):
		agreement.Compliance.Status = v1.ComplianceStatusViolated
	case len(recent) > 0:
		agreement.Compliance.Status = v1.ComplianceStatusAtRisk
	default:
		agreement.Compliance.Status = v1.ComplianceStatusCompliant
	}

	credited := lo.SliceToMap(agreement.Compliance.Credits, func(c v1.SLACredit) (string, struct{}) {
		return c.ViolationID, struct{}{}
	})
	for _, violation := range recent {
		if violation.Severity != v1.SeverityCritical {
			continue
		}
		if _, ok := credited[violation.ID]; ok {
			continue
		}
		agreement.Compliance.Credits = append(agreement.Compliance.Credits, v1.SLACredit{
			ID:          uuid.NewString(),
			ViolationID: violation.ID,
			Percent:     criticalCreditPercent,
			IssuedAt:    now,
		})
	}
}
