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

// Package approval runs the manual-review workflow the policy gate hands
// off to. Each approval is a small state machine: reviewers vote, stages
// escalate on deadline, and the final deadline expires the request.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/operator/logging"
)

var (
	ErrApprovalNotFound = errors.New("approval not found")
	// ErrApprovalSettled is returned on votes against an approval whose
	// status is monotonic-final.
	ErrApprovalSettled = errors.New("approval already settled")
	ErrUnknownReviewer = errors.New("reviewer not assigned to approval")
)

const (
	DefaultStageTimeout = 24 * time.Hour
	DefaultTotalTimeout = 72 * time.Hour
)

type Workflow struct {
	mu        sync.RWMutex
	approvals map[string]*v1.Approval

	stream       *events.Stream
	stageTimeout time.Duration
	totalTimeout time.Duration
	clock        func() time.Time
}

type Option func(*Workflow)

func WithTimeouts(stage, total time.Duration) Option {
	return func(w *Workflow) {
		w.stageTimeout = stage
		w.totalTimeout = total
	}
}

func WithClock(clock func() time.Time) Option {
	return func(w *Workflow) { w.clock = clock }
}

func NewWorkflow(stream *events.Stream, opts ...Option) *Workflow {
	w := &Workflow{
		approvals:    map[string]*v1.Approval{},
		stream:       stream,
		stageTimeout: DefaultStageTimeout,
		totalTimeout: DefaultTotalTimeout,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// StageTimeout returns the per-stage deadline; the expiry scanner derives
// its cadence from it.
func (w *Workflow) StageTimeout() time.Duration {
	return w.stageTimeout
}

// Create opens a PENDING approval for a gate decision that requires manual
// review. The first stage deadline is now + stageTimeout.
func (w *Workflow) Create(ctx context.Context, deploymentID, templateID, actorID string, decision v1.PolicyDecision) *v1.Approval {
	now := w.clock()
	a := &v1.Approval{
		ID:           uuid.NewString(),
		DeploymentID: deploymentID,
		TemplateID:   templateID,
		ActorID:      actorID,
		Status:       v1.ApprovalStatusPending,
		Conditions:   decision.Restrictions,
		Reviewers:    decision.RequiredApprovals,
		ValidUntil:   now.Add(w.stageTimeout),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	w.mu.Lock()
	w.approvals[a.ID] = a
	evt := w.event(a, "", v1.ApprovalStatusPending, "manual review requested")
	snap := w.snapshot(a)
	w.mu.Unlock()

	w.publish(ctx, evt)
	return snap
}

// Get returns a copy of the approval.
func (w *Workflow) Get(id string) (*v1.Approval, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.approvals[id]
	if !ok {
		return nil, fmt.Errorf("looking up approval %s, %w", id, ErrApprovalNotFound)
	}
	return w.snapshot(a), nil
}

// Vote records a reviewer decision. Any denial settles the approval as
// DENIED; once every assigned reviewer has approved, the approval becomes
// APPROVED, or CONDITIONAL when the gate attached conditions.
func (w *Workflow) Vote(ctx context.Context, id string, reviewer v1.ReviewerRole, approve bool, note string) (*v1.Approval, error) {
	// events go out after the lock drops so subscribers can call back in
	var pending []events.Event
	defer func() { w.publish(ctx, pending...) }()
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.approvals[id]
	if !ok {
		return nil, fmt.Errorf("voting on approval %s, %w", id, ErrApprovalNotFound)
	}
	if a.Status.Settled() {
		return nil, fmt.Errorf("voting on approval %s in %s, %w", id, a.Status, ErrApprovalSettled)
	}
	if !lo.Contains(a.Reviewers, reviewer) {
		return nil, fmt.Errorf("voting on approval %s as %s, %w", id, reviewer, ErrUnknownReviewer)
	}
	now := w.clock()
	a.Votes = append(a.Votes, v1.ReviewVote{Reviewer: reviewer, Approve: approve, Note: note, At: now})
	a.UpdatedAt = now

	if !approve {
		pending = append(pending, w.transitionLocked(a, v1.ApprovalStatusDenied, fmt.Sprintf("denied by %s", reviewer)))
		return w.snapshot(a), nil
	}
	approved := lo.EveryBy(a.Reviewers, func(role v1.ReviewerRole) bool {
		return lo.ContainsBy(a.Votes, func(v v1.ReviewVote) bool {
			return v.Reviewer == role && v.Approve
		})
	})
	if approved {
		target := v1.ApprovalStatusApproved
		if len(a.Conditions) > 0 {
			target = v1.ApprovalStatusConditional
		}
		pending = append(pending, w.transitionLocked(a, target, "all reviewers approved"))
	}
	return w.snapshot(a), nil
}

// Revoke withdraws a previously granted approval.
func (w *Workflow) Revoke(ctx context.Context, id, reason string) error {
	var pending []events.Event
	defer func() { w.publish(ctx, pending...) }()
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.approvals[id]
	if !ok {
		return fmt.Errorf("revoking approval %s, %w", id, ErrApprovalNotFound)
	}
	if a.Status == v1.ApprovalStatusRevoked || a.Status == v1.ApprovalStatusExpired {
		return nil
	}
	pending = append(pending, w.transitionLocked(a, v1.ApprovalStatusRevoked, reason))
	return nil
}

// ExpireStale scans approvals whose stage deadline has passed. Before the
// total deadline the approval escalates to the next stage; past it, the
// approval expires. Granted approvals past their validity also expire.
// Returns the ids that transitioned to EXPIRED.
func (w *Workflow) ExpireStale(ctx context.Context) []string {
	var pending []events.Event
	defer func() { w.publish(ctx, pending...) }()
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	var expired []string
	for _, a := range w.approvals {
		if now.Before(a.ValidUntil) {
			continue
		}
		switch {
		case a.Status == v1.ApprovalStatusPending:
			finalDeadline := a.CreatedAt.Add(w.totalTimeout)
			if now.Before(finalDeadline) {
				a.Stage++
				a.ValidUntil = a.ValidUntil.Add(w.stageTimeout)
				if a.ValidUntil.After(finalDeadline) {
					a.ValidUntil = finalDeadline
				}
				a.UpdatedAt = now
				pending = append(pending, w.event(a, a.Status, a.Status, fmt.Sprintf("escalated to stage %d", a.Stage)))
				continue
			}
			pending = append(pending, w.transitionLocked(a, v1.ApprovalStatusExpired, "no reviewer acted before the final deadline"))
			expired = append(expired, a.ID)
		case a.Status.Granted():
			pending = append(pending, w.transitionLocked(a, v1.ApprovalStatusExpired, "approval validity elapsed"))
			expired = append(expired, a.ID)
		}
	}
	return expired
}

func (w *Workflow) transitionLocked(a *v1.Approval, to v1.ApprovalStatus, reason string) events.Event {
	from := a.Status
	a.Status = to
	a.UpdatedAt = w.clock()
	return w.event(a, from, to, reason)
}

func (w *Workflow) event(a *v1.Approval, from, to v1.ApprovalStatus, reason string) events.Event {
	return events.Event{
		Kind:      events.KindApprovalTransitioned,
		SubjectID: a.ID,
		Actor:     "approval-workflow",
		At:        w.clock(),
		Approval: &events.ApprovalTransition{
			DeploymentID: a.DeploymentID,
			From:         from,
			To:           to,
			Stage:        a.Stage,
			Reason:       reason,
		},
	}
}

func (w *Workflow) publish(ctx context.Context, evts ...events.Event) {
	for _, evt := range evts {
		if t := evt.Approval; t.From != "" && t.From != t.To {
			logging.FromContext(ctx).With("approval", evt.SubjectID, "from", t.From, "to", t.To).Infof("approval transitioned")
		}
		if w.stream == nil {
			continue
		}
		w.stream.Publish(ctx, evt)
	}
}

func (w *Workflow) snapshot(a *v1.Approval) *v1.Approval {
	cp := *a
	cp.Votes = append([]v1.ReviewVote(nil), a.Votes...)
	cp.Reviewers = append([]v1.ReviewerRole(nil), a.Reviewers...)
	cp.Conditions = append([]string(nil), a.Conditions...)
	return &cp
}
