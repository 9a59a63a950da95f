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

// Package deployment owns the per-tenant deployment lifecycle: the state
// machine, execution runs and the wiring into policy, reservations, SLA
// validation and the adaptive optimizer.
package deployment

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
	"github.com/entangleops/qam/pkg/optimizer"
	"github.com/entangleops/qam/pkg/policy"
	"github.com/entangleops/qam/pkg/policy/approval"
	"github.com/entangleops/qam/pkg/providers/backend"
	"github.com/entangleops/qam/pkg/providers/reservation"
	"github.com/entangleops/qam/pkg/registry"
	"github.com/entangleops/qam/pkg/sla"
)

var (
	ErrTemplateUnavailable  = errors.New("template unavailable")
	ErrDeploymentNotFound   = errors.New("deployment not found")
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrInvalidTransition    = errors.New("invalid deployment transition")
	ErrApprovalPending      = errors.New("approval pending")
	ErrExecutionInProgress  = errors.New("execution already in progress")
	ErrDeploymentNotReady   = errors.New("deployment not in a deployable state")
)

// DeployInput is everything deploy needs: the template binding, the
// tenant's configuration and the export-control query context.
type DeployInput struct {
	TemplateID string
	TenantID   string
	Config     v1.DeploymentConfig
	// Actor, Destination and EndUse feed the policy gate
	Actor       v1.Actor
	Destination string
	EndUse      string
	// SLAOverrides replace the template's requirements when non-empty
	SLAOverrides []v1.SLARequirement
}

// Supervisor is the deployment orchestrator. All state mutation happens
// under its lock; a single deployment's transitions are linearizable
// while distinct deployments advance concurrently through executions.
type Supervisor struct {
	mu          sync.Mutex
	deployments map[string]*v1.Deployment
	executions  map[string]*v1.Execution
	// active counts in-flight executions per deployment
	active map[string]int

	registry   *registry.Registry
	gate       *policy.Gate
	approvals  *approval.Workflow
	ledger     *reservation.Ledger
	runner     *Runner
	tracker    *sla.Tracker
	optimizers *optimizer.Store
	stream     *events.Stream

	reserveTimeout time.Duration
	clock          func() time.Time
}

type Option func(*Supervisor)

func WithClock(clock func() time.Time) Option {
	return func(s *Supervisor) { s.clock = clock }
}

// WithReserveTimeout bounds how long deploy waits in the reservation
// queue before failing with ResourceUnavailable.
func WithReserveTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) { s.reserveTimeout = timeout }
}

func NewSupervisor(reg *registry.Registry, gate *policy.Gate, approvals *approval.Workflow, ledger *reservation.Ledger, runner *Runner, tracker *sla.Tracker, optimizers *optimizer.Store, stream *events.Stream, opts ...Option) *Supervisor {
	s := &Supervisor{
		deployments:    map[string]*v1.Deployment{},
		executions:     map[string]*v1.Execution{},
		active:         map[string]int{},
		registry:       reg,
		gate:           gate,
		approvals:      approvals,
		ledger:         ledger,
		runner:         runner,
		tracker:        tracker,
		optimizers:     optimizers,
		stream:         stream,
		reserveTimeout: 30 * time.Second,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if stream != nil {
		stream.Subscribe(s)
	}
	return s
}

// Deploy walks a new deployment through configuration, export-control
// validation and resource allocation. A deployment whose template needs
// manual approval parks in VALIDATING_EXPORT_CONTROL until the approval
// settles; the supervisor finishes or fails it from the approval event.
func (s *Supervisor) Deploy(ctx context.Context, input DeployInput) (*v1.Deployment, error) {
	t, err := s.registry.Get(input.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateUnavailable, input.TemplateID)
	}
	if t.Status != v1.TemplateStatusAvailable {
		return nil, fmt.Errorf("%w: template %s is %s", ErrTemplateUnavailable, t.ID, t.Status)
	}

	now := s.clock()
	requirements := t.SLARequirements
	if len(input.SLAOverrides) > 0 {
		requirements = input.SLAOverrides
	}
	d := &v1.Deployment{
		ID:         uuid.NewString(),
		TemplateID: input.TemplateID,
		TenantID:   input.TenantID,
		Config:     input.Config,
		SLA: v1.SLAAgreement{
			ID:           uuid.NewString(),
			TemplateID:   input.TemplateID,
			TenantID:     input.TenantID,
			Requirements: requirements,
			Compliance:   v1.Compliance{Score: 1, Status: v1.ComplianceStatusCompliant, EvaluatedAt: now},
		},
		State:     v1.DeploymentStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.deployments[d.ID] = d
	s.mu.Unlock()

	if err := s.transition(ctx, d.ID, v1.DeploymentStateConfiguring, "deploy requested"); err != nil {
		return nil, err
	}
	coerced, err := registry.ValidateParameters(t, input.Config.Parameters)
	if err != nil {
		s.fail(ctx, d.ID, err.Error())
		return nil, err
	}
	s.mu.Lock()
	d.Config.Parameters = coerced
	s.mu.Unlock()

	if err := s.transition(ctx, d.ID, v1.DeploymentStateValidatingExportControl, "parameters validated"); err != nil {
		return nil, err
	}
	decision, err := s.gate.Evaluate(ctx, t, input.Actor, input.Destination, input.EndUse)
	if err != nil {
		s.fail(ctx, d.ID, err.Error())
		return nil, fmt.Errorf("evaluating export control for deployment %s, %w", d.ID, err)
	}
	if !decision.Approved && !decision.RequiresManualApproval {
		err := policy.DenialError(decision)
		s.fail(ctx, d.ID, err.Error())
		return nil, err
	}
	if decision.RequiresManualApproval {
		a := s.approvals.Create(ctx, d.ID, t.ID, input.Actor.ID, decision)
		s.mu.Lock()
		d.ApprovalID = a.ID
		snapshot := *d
		s.mu.Unlock()
		return &snapshot, nil
	}
	return s.allocate(ctx, d.ID)
}

// allocate finishes deploy once export control has cleared.
func (s *Supervisor) allocate(ctx context.Context, id string) (*v1.Deployment, error) {
	s.mu.Lock()
	d, ok := s.deployments[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrDeploymentNotFound
	}
	templateID := d.TemplateID
	priority := d.Config.Priority
	s.mu.Unlock()

	t, err := s.registry.Get(templateID)
	if err != nil {
		s.fail(ctx, id, err.Error())
		return nil, fmt.Errorf("%w: %s", ErrTemplateUnavailable, templateID)
	}
	if err := s.transition(ctx, id, v1.DeploymentStateAllocatingResources, "export control cleared"); err != nil {
		return nil, err
	}

	reserveCtx, cancel := context.WithTimeout(ctx, s.reserveTimeout)
	defer cancel()
	res, err := s.ledger.Reserve(reserveCtx, id, t.ResourceEstimate.Resources, priority)
	if err != nil {
		s.fail(ctx, id, err.Error())
		return nil, err
	}
	s.mu.Lock()
	d.Reservation = &res
	s.mu.Unlock()

	if err := s.transition(ctx, id, v1.DeploymentStateDeployed, "resources allocated"); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Execute runs the deployment once. Valid only in DEPLOYED, or in
// EXECUTING when the config allows concurrent runs.
func (s *Supervisor) Execute(ctx context.Context, deploymentID string, config v1.ExecutionConfig) (*v1.Execution, error) {
	s.mu.Lock()
	d, ok := s.deployments[deploymentID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrDeploymentNotFound
	}
	switch {
	case d.State == v1.DeploymentStateDeployed:
	case d.State == v1.DeploymentStateExecuting && d.Config.AllowConcurrent:
	case d.State == v1.DeploymentStateExecuting:
		s.mu.Unlock()
		return nil, ErrExecutionInProgress
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrDeploymentNotReady, deploymentID, d.State)
	}
	if d.ApprovalID != "" {
		approvalID := d.ApprovalID
		s.mu.Unlock()
		a, err := s.approvals.Get(approvalID)
		if err != nil {
			return nil, err
		}
		if !a.Status.Granted() {
			return nil, fmt.Errorf("%w: approval %s is %s", ErrApprovalPending, a.ID, a.Status)
		}
		s.mu.Lock()
	}

	now := s.clock()
	exec := &v1.Execution{
		ID:           uuid.NewString(),
		DeploymentID: deploymentID,
		Config:       config,
		Status:       v1.ExecutionStatusQueued,
		CreatedAt:    now,
	}
	s.executions[exec.ID] = exec
	d.ExecutionIDs = append(d.ExecutionIDs, exec.ID)
	s.active[deploymentID]++
	fromDeployed := d.State == v1.DeploymentStateDeployed
	s.mu.Unlock()

	if fromDeployed {
		if err := s.transition(ctx, deploymentID, v1.DeploymentStateExecuting, "execution started"); err != nil {
			s.finishExecution(ctx, exec, v1.ExecutionStatusFailed, err.Error())
			return nil, err
		}
	}
	s.run(ctx, d, exec)
	return s.GetExecution(exec.ID)
}

// run drives one execution to a terminal status and settles the
// deployment back to DEPLOYED.
func (s *Supervisor) run(ctx context.Context, d *v1.Deployment, exec *v1.Execution) {
	log := logging.FromContext(ctx).With("deployment", d.ID, "execution", exec.ID)

	t, err := s.registry.Get(d.TemplateID)
	if err != nil {
		s.finishExecution(ctx, exec, v1.ExecutionStatusFailed, err.Error())
		s.settle(ctx, d.ID, "template lookup failed")
		return
	}

	opt, err := s.optimizers.GetOrCreate(d.TemplateID, d.TenantID, t.OptimizerProfile, t.ParameterSchema, d.Config.Parameters)
	if err != nil {
		// optimizer construction failing never blocks execution
		log.Errorf("constructing optimizer: %v", err)
		opt = nil
	}

	s.updateExecution(exec, func(e *v1.Execution) {
		e.Status = v1.ExecutionStatusExecuting
		e.StartedAt = s.clock()
	})
	s.publishExecution(ctx, exec, v1.ExecutionStatusQueued, v1.ExecutionStatusExecuting, "")

	parameters := d.Config.Parameters
	if opt != nil {
		parameters = opt.Parameters()
	}
	circuit := backend.Circuit{
		TemplateID: t.ID,
		Qubits:     t.ResourceEstimate.Qubits,
		Depth:      t.ResourceEstimate.Depth,
		GateCount:  t.ResourceEstimate.GateCount,
		Parameters: parameters,
	}
	fallback := fallbackChain(d.SLA.Requirements)

	inputs := optimizer.ContextInputs{
		CircuitDepth:      t.ResourceEstimate.Depth,
		Qubits:            t.ResourceEstimate.Qubits,
		Shots:             exec.Config.Shots,
		OptimizationLevel: exec.Config.OptimizationLevel,
		GateCount:         t.ResourceEstimate.GateCount,
		At:                s.clock(),
	}
	arm := -1
	if opt != nil {
		if a, err := opt.SelectArm(inputs); err == nil {
			arm = a
		} else {
			log.Errorf("selecting optimizer arm: %v", err)
		}
	}

	outcome, err := s.runner.Run(ctx, circuit, exec.Config, d.Config.BackendPreferences, fallback)
	if err != nil {
		status := v1.ExecutionStatusFailed
		switch {
		case errors.Is(err, context.Canceled):
			status = v1.ExecutionStatusCancelled
		case errors.Is(err, backend.ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
			status = v1.ExecutionStatusTimeout
		}
		s.finishExecution(ctx, exec, status, err.Error())
		s.recordMetrics(d.ID, exec, false)
		s.settle(ctx, d.ID, "execution "+string(status))
		return
	}

	completedAt := s.clock()
	s.updateExecution(exec, func(e *v1.Execution) {
		e.Status = v1.ExecutionStatusPostProcessing
		e.Backend = outcome.Backend
		e.Results = outcome.Results
		e.Perf = v1.ExecutionPerf{
			QueueTime: outcome.QueueTime,
			RunTime:   outcome.RunTime,
			TotalTime: completedAt.Sub(e.StartedAt),
		}
		e.Cost = v1.ExecutionCost{
			Total:    outcome.Backend.CostPerShot * float64(e.Config.Shots),
			PerShot:  outcome.Backend.CostPerShot,
			Currency: "USD",
		}
	})

	// SLA validation happens before any violation or adaptation this
	// execution can trigger
	report := sla.Validate(exec, &d.SLA, t.ResourceEstimate.Qubits, t.ResourceEstimate.Depth, completedAt)
	violations := sla.IdentifyViolations(report, completedAt)
	s.updateExecution(exec, func(e *v1.Execution) {
		e.Correctness = &report
	})
	if len(violations) > 0 && s.tracker != nil {
		s.tracker.Record(violations...)
		s.mu.Lock()
		s.tracker.UpdateCompliance(&d.SLA, completedAt)
		s.mu.Unlock()
		for i := range violations {
			s.publishViolation(ctx, &violations[i])
		}
	}

	s.finishExecution(ctx, exec, v1.ExecutionStatusCompleted, "")
	s.recordMetrics(d.ID, exec, true)

	if opt != nil && arm >= 0 {
		reward := optimizer.RewardInputs{
			Latency:     exec.Perf.TotalTime,
			Cost:        exec.Cost.Total,
			Quality:     report.Score,
			Reliability: outcome.Backend.Availability,
			Security:    1,
		}
		if err := opt.Observe(ctx, arm, inputs, reward, d.Config.Priority, report.Passed); err != nil {
			log.Errorf("feeding optimizer: %v", err)
		}
		for _, violation := range violations {
			opt.ObserveViolation(ctx, violation.Severity, completedAt)
		}
		if _, err := opt.MaybeAdapt(ctx); err != nil {
			log.Errorf("adapting parameters: %v", err)
		}
	}

	s.settle(ctx, d.ID, "execution completed")
}

// settle returns an EXECUTING deployment to DEPLOYED once its last
// active execution finishes.
func (s *Supervisor) settle(ctx context.Context, id, reason string) {
	s.mu.Lock()
	s.active[id]--
	remaining := s.active[id]
	state := s.deployments[id].State
	s.mu.Unlock()
	if remaining <= 0 && state == v1.DeploymentStateExecuting {
		_ = s.transition(ctx, id, v1.DeploymentStateDeployed, reason)
	}
}

// Suspend parks a DEPLOYED deployment. Idempotent.
func (s *Supervisor) Suspend(ctx context.Context, id string) error {
	return s.idempotentTransition(ctx, id, v1.DeploymentStateSuspended, "suspend requested")
}

// Resume returns a SUSPENDED deployment to DEPLOYED. Idempotent.
func (s *Supervisor) Resume(ctx context.Context, id string) error {
	return s.idempotentTransition(ctx, id, v1.DeploymentStateDeployed, "resume requested")
}

// Complete finishes a DEPLOYED deployment and releases its reservation.
func (s *Supervisor) Complete(ctx context.Context, id string) error {
	return s.idempotentTransition(ctx, id, v1.DeploymentStateCompleted, "complete requested")
}

// Archive moves a settled deployment to ARCHIVED. Idempotent.
func (s *Supervisor) Archive(ctx context.Context, id string) error {
	return s.idempotentTransition(ctx, id, v1.DeploymentStateArchived, "archive requested")
}

func (s *Supervisor) idempotentTransition(ctx context.Context, id string, to v1.DeploymentState, reason string) error {
	s.mu.Lock()
	d, ok := s.deployments[id]
	if !ok {
		s.mu.Unlock()
		return ErrDeploymentNotFound
	}
	if d.State == to {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.transition(ctx, id, to, reason)
}

// Get returns a copy of the deployment.
func (s *Supervisor) Get(id string) (*v1.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	snapshot := *d
	return &snapshot, nil
}

// GetExecution returns a copy of the execution.
func (s *Supervisor) GetExecution(id string) (*v1.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	snapshot := *e
	return &snapshot, nil
}

// List returns copies of all deployments for a tenant; empty tenant
// matches all.
func (s *Supervisor) List(tenantID string) []v1.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []v1.Deployment{}
	for _, d := range s.deployments {
		if tenantID == "" || d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	return out
}

// Agreements returns copies of the agreements for every non-archived
// deployment, for the compliance loop.
func (s *Supervisor) Agreements() []v1.SLAAgreement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []v1.SLAAgreement{}
	for _, d := range s.deployments {
		if d.State != v1.DeploymentStateArchived {
			out = append(out, d.SLA)
		}
	}
	return out
}

// RefreshCompliance re-evaluates one agreement's compliance in place.
func (s *Supervisor) RefreshCompliance(agreementID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return
	}
	for _, d := range s.deployments {
		if d.SLA.ID == agreementID {
			s.tracker.UpdateCompliance(&d.SLA, now)
			return
		}
	}
}

// Name implements events.Handler.
func (s *Supervisor) Name() string { return "deployment-supervisor" }

func (s *Supervisor) Handles() []events.Kind {
	return []events.Kind{events.KindApprovalTransitioned}
}

// Handle advances deployments parked on a manual approval.
func (s *Supervisor) Handle(ctx context.Context, evt events.Event) {
	transition := evt.Approval
	if transition == nil || transition.From == transition.To {
		return
	}
	s.mu.Lock()
	d, ok := s.deployments[transition.DeploymentID]
	waiting := ok && d.State == v1.DeploymentStateValidatingExportControl
	s.mu.Unlock()
	if !waiting {
		return
	}
	switch {
	case transition.To.Granted():
		if _, err := s.allocate(ctx, transition.DeploymentID); err != nil {
			logging.FromContext(ctx).With("deployment", transition.DeploymentID).
				Errorf("finishing deploy after approval: %v", err)
		}
	case transition.To == v1.ApprovalStatusDenied, transition.To == v1.ApprovalStatusExpired, transition.To == v1.ApprovalStatusRevoked:
		s.fail(ctx, transition.DeploymentID, fmt.Sprintf("approval %s", transition.To))
	}
}

// transition applies one legal state change, releasing the reservation
// on terminal states and publishing the event.
func (s *Supervisor) transition(ctx context.Context, id string, to v1.DeploymentState, reason string) error {
	s.mu.Lock()
	d, ok := s.deployments[id]
	if !ok {
		s.mu.Unlock()
		return ErrDeploymentNotFound
	}
	from := d.State
	if !from.CanTransition(to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	d.State = to
	d.UpdatedAt = s.clock()
	templateID, tenantID := d.TemplateID, d.TenantID
	hadReservation := d.Reservation != nil && d.Reservation.Reserved
	if to.Terminal() && hadReservation {
		d.Reservation.Reserved = false
	}
	s.mu.Unlock()

	if to.Terminal() && hadReservation {
		s.ledger.Release(ctx, id)
	}
	deploymentTransitions.WithLabelValues(string(to)).Inc()
	if s.stream != nil {
		s.stream.Publish(ctx, events.Event{
			Kind:      events.KindDeploymentTransitioned,
			SubjectID: id,
			Actor:     "supervisor",
			At:        s.clock(),
			Deployment: &events.DeploymentTransition{
				TemplateID: templateID,
				TenantID:   tenantID,
				From:       from,
				To:         to,
				Reason:     reason,
			},
		})
	}
	return nil
}

func (s *Supervisor) fail(ctx context.Context, id, reason string) {
	s.mu.Lock()
	if d, ok := s.deployments[id]; ok {
		d.FailureReason = reason
	}
	s.mu.Unlock()
	if err := s.transition(ctx, id, v1.DeploymentStateFailed, reason); err != nil {
		logging.FromContext(ctx).With("deployment", id).Errorf("failing deployment: %v", err)
	}
}

func (s *Supervisor) updateExecution(exec *v1.Execution, mutate func(*v1.Execution)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(exec)
}

func (s *Supervisor) finishExecution(ctx context.Context, exec *v1.Execution, status v1.ExecutionStatus, reason string) {
	s.mu.Lock()
	if exec.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	from := exec.Status
	exec.Status = status
	exec.FailureReason = reason
	exec.CompletedAt = s.clock()
	s.mu.Unlock()
	executionsFinished.WithLabelValues(string(status)).Inc()
	s.publishExecution(ctx, exec, from, status, reason)
}

func (s *Supervisor) recordMetrics(deploymentID string, exec *v1.Execution, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[deploymentID]
	if !ok {
		return
	}
	m := &d.Metrics
	m.TotalExecutions++
	if succeeded {
		m.SucceededExecutions++
	} else {
		m.FailedExecutions++
	}
	m.TotalCost += exec.Cost.Total
	if m.TotalExecutions > 0 {
		total := time.Duration(m.TotalExecutions-1)*m.AvgExecutionTime + exec.Perf.TotalTime
		m.AvgExecutionTime = total / time.Duration(m.TotalExecutions)
	}
	m.LastExecutionAt = exec.CompletedAt
}

func (s *Supervisor) publishExecution(ctx context.Context, exec *v1.Execution, from, to v1.ExecutionStatus, reason string) {
	if s.stream == nil {
		return
	}
	s.stream.Publish(ctx, events.Event{
		Kind:      events.KindExecutionTransitioned,
		SubjectID: exec.ID,
		Actor:     "supervisor",
		At:        s.clock(),
		Execution: &events.ExecutionTransition{
			DeploymentID: exec.DeploymentID,
			From:         from,
			To:           to,
			Backend:      exec.Backend.Kind,
			Reason:       reason,
		},
	})
}

func (s *Supervisor) publishViolation(ctx context.Context, violation *v1.Violation) {
	if s.stream == nil {
		return
	}
	s.stream.Publish(ctx, events.Event{
		Kind:      events.KindViolationDetected,
		SubjectID: violation.AgreementID,
		Actor:     "sla-engine",
		At:        violation.CreatedAt,
		Violation: violation,
	})
}

// fallbackChain merges the requirements' chains preserving first-seen
// order.
func fallbackChain(requirements []v1.SLARequirement) []v1.BackendKind {
	var chain []v1.BackendKind
	for _, req := range requirements {
		chain = append(chain, req.FallbackChain...)
	}
	return lo.Uniq(chain)
}
