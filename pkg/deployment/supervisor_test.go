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

package deployment_test

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/deployment"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/optimizer"
	"github.com/entangleops/qam/pkg/policy"
	"github.com/entangleops/qam/pkg/policy/approval"
	"github.com/entangleops/qam/pkg/providers/backend"
	"github.com/entangleops/qam/pkg/providers/backend/fake"
	"github.com/entangleops/qam/pkg/providers/reservation"
	"github.com/entangleops/qam/pkg/registry"
	"github.com/entangleops/qam/pkg/sla"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type eventRecorder struct {
	mu    sync.Mutex
	kinds []events.Kind
	got   []events.Event
}

func (r *eventRecorder) Name() string           { return "test-recorder" }
func (r *eventRecorder) Handles() []events.Kind { return r.kinds }
func (r *eventRecorder) Handle(_ context.Context, evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, evt)
}

func (r *eventRecorder) ofKind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.got, func(e events.Event, _ int) bool { return e.Kind == kind })
}

// deploymentStates returns the target states the deployment moved through.
func (r *eventRecorder) deploymentStates(id string) []v1.DeploymentState {
	return lo.FilterMap(r.ofKind(events.KindDeploymentTransitioned), func(e events.Event, _ int) (v1.DeploymentState, bool) {
		return e.Deployment.To, e.SubjectID == id
	})
}

var _ = Describe("Supervisor", func() {
	var (
		reg        *registry.Registry
		workflow   *approval.Workflow
		ledger     *reservation.Ledger
		tracker    *sla.Tracker
		optimizers *optimizer.Store
		stream     *events.Stream
		recorder   *eventRecorder
		sup        *deployment.Supervisor
		classical  *fake.Driver
		emulator   *fake.Driver
		wfNow      time.Time

		buildSupervisor func(runner *deployment.Runner)
	)

	template := func(id string) v1.Template {
		return v1.Template{
			ID:       id,
			Name:     "Portfolio QAOA",
			Version:  "2.0.0",
			Category: v1.CategoryFinance,
			Status:   v1.TemplateStatusAvailable,
			Algorithms: []v1.Algorithm{{
				Name:        "QAOA",
				Family:      v1.FamilyVariational,
				Variational: &v1.VariationalSpec{Ansatz: "hardware-efficient", Layers: 3},
			}},
			ParameterSchema: v1.ParameterSchema{Parameters: map[string]v1.ParameterSpec{
				"shots": {Type: v1.ParameterTypeInteger, Min: lo.ToPtr(1.0), Max: lo.ToPtr(100000.0), Default: lo.ToPtr(v1.IntValue(1024))},
			}},
			ExportClassification: v1.ExportControlLevelUnrestricted,
			SLARequirements: []v1.SLARequirement{{
				Metric:        v1.MetricErrorRate,
				Threshold:     0.5,
				Method:        v1.MethodSampling,
				FallbackChain: []v1.BackendKind{v1.BackendClassical, v1.BackendEmulator},
			}},
			ResourceEstimate: v1.ResourceEstimate{
				Resources: v1.Resources{QuantumMinutes: 10, ClassicalCPU: 2, MemoryGB: 8, StorageGB: 1},
				Qubits:    8,
				Depth:     64,
				GateCount: 600,
			},
		}
	}
	register := func(t v1.Template) {
		ExpectWithOffset(1, reg.Register(t)).To(Succeed())
	}
	input := func(templateID string) deployment.DeployInput {
		return deployment.DeployInput{
			TemplateID: templateID,
			TenantID:   "tenant-acme",
			Config: v1.DeploymentConfig{
				BackendPreferences: []v1.BackendKind{v1.BackendClassical},
				Priority:           v1.PriorityStandard,
			},
			Actor:       v1.Actor{ID: "user-1", Type: v1.ActorTypeOrganization, Jurisdiction: "US"},
			Destination: "US",
			EndUse:      "research",
		}
	}

	BeforeEach(func() {
		stream = events.NewStream()
		recorder = &eventRecorder{kinds: []events.Kind{
			events.KindDeploymentTransitioned,
			events.KindExecutionTransitioned,
			events.KindApprovalTransitioned,
			events.KindViolationDetected,
		}}
		stream.Subscribe(recorder)

		reg = registry.New()
		rules := policy.NewRuleStore()
		gate := policy.NewGate(policy.NewClassifier(rules, time.Minute), policy.NewListScreener(), policy.NewActorLicenseService(), rules)
		wfNow = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
		workflow = approval.NewWorkflow(stream,
			approval.WithTimeouts(time.Minute, 2*time.Minute),
			approval.WithClock(func() time.Time { return wfNow }))
		ledger = reservation.NewLedger(v1.Resources{QuantumMinutes: 25, ClassicalCPU: 64, MemoryGB: 256, StorageGB: 512}, stream)
		classical = fake.NewClassical()
		emulator = fake.NewEmulator()
		tracker = sla.NewTracker(24 * time.Hour)
		optimizers = optimizer.NewStore(stream, time.Hour)

		buildSupervisor = func(runner *deployment.Runner) {
			sup = deployment.NewSupervisor(reg, gate, workflow, ledger, runner, tracker, optimizers, stream,
				deployment.WithReserveTimeout(100*time.Millisecond))
		}
		buildSupervisor(deployment.NewRunner(backend.NewSelector(classical, emulator),
			deployment.WithPollInterval(time.Millisecond),
			deployment.WithExecuteTimeout(2*time.Second)))
	})

	Context("Deploy", func() {
		It("should walk a clean deployment to DEPLOYED with a reservation", func() {
			register(template("tpl-1"))
			d, err := sup.Deploy(ctx, input("tpl-1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(d.State).To(Equal(v1.DeploymentStateDeployed))
			Expect(d.Reservation).ToNot(BeNil())
			Expect(d.Reservation.Reserved).To(BeTrue())
			Expect(d.Config.Parameters["shots"].Int).To(Equal(int64(1024)))

			_, held := ledger.Held(d.ID)
			Expect(held).To(BeTrue())
			Expect(recorder.deploymentStates(d.ID)).To(Equal([]v1.DeploymentState{
				v1.DeploymentStateConfiguring,
				v1.DeploymentStateValidatingExportControl,
				v1.DeploymentStateAllocatingResources,
				v1.DeploymentStateDeployed,
			}))
		})
		It("should refuse an unknown template", func() {
			_, err := sup.Deploy(ctx, input("missing"))
			Expect(err).To(MatchError(deployment.ErrTemplateUnavailable))
		})
		It("should refuse a template that is not available", func() {
			t := template("tpl-1")
			t.Status = v1.TemplateStatusDeprecated
			register(t)
			_, err := sup.Deploy(ctx, input("tpl-1"))
			Expect(err).To(MatchError(deployment.ErrTemplateUnavailable))
		})
		It("should fail the deployment on invalid parameters", func() {
			register(template("tpl-1"))
			in := input("tpl-1")
			in.Config.Parameters = map[string]v1.ParameterValue{"shots": v1.IntValue(0)}
			_, err := sup.Deploy(ctx, in)
			Expect(err).To(HaveOccurred())

			deployments := sup.List("tenant-acme")
			Expect(deployments).To(HaveLen(1))
			Expect(deployments[0].State).To(Equal(v1.DeploymentStateFailed))
			Expect(deployments[0].FailureReason).ToNot(BeEmpty())
		})
		It("should fail the deployment when policy denies outright", func() {
			t := template("tpl-1")
			t.ExportClassification = v1.ExportControlLevelClassified
			register(t)
			_, err := sup.Deploy(ctx, input("tpl-1"))
			Expect(err).To(MatchError(policy.ErrPolicyDenied))
			Expect(sup.List("tenant-acme")[0].State).To(Equal(v1.DeploymentStateFailed))
		})
		It("should fail a deployment that cannot get resources in time", func() {
			t := template("tpl-1")
			t.ResourceEstimate.QuantumMinutes = 20
			register(t)
			first, err := sup.Deploy(ctx, input("tpl-1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(first.State).To(Equal(v1.DeploymentStateDeployed))

			_, err = sup.Deploy(ctx, input("tpl-1"))
			Expect(err).To(MatchError(reservation.ErrResourceUnavailable))

			first, err = sup.Get(first.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(first.State).To(Equal(v1.DeploymentStateDeployed))
		})
	})

	Context("Approvals", func() {
		deployParked := func() *v1.Deployment {
			t := template("tpl-dual")
			t.ExportClassification = v1.ExportControlLevelDualUse
			register(t)
			in := input("tpl-dual")
			in.EndUse = "defense system evaluation"
			d, err := sup.Deploy(ctx, in)
			ExpectWithOffset(1, err).ToNot(HaveOccurred())
			ExpectWithOffset(1, d.State).To(Equal(v1.DeploymentStateValidatingExportControl))
			ExpectWithOffset(1, d.ApprovalID).ToNot(BeEmpty())
			return d
		}

		It("should park a deployment pending manual approval", func() {
			d := deployParked()
			_, held := ledger.Held(d.ID)
			Expect(held).To(BeFalse())

			_, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 100})
			Expect(err).To(MatchError(deployment.ErrDeploymentNotReady))
		})
		It("should finish the deploy when the approval is granted", func() {
			d := deployParked()
			_, err := workflow.Vote(ctx, d.ApprovalID, v1.ReviewerCompliance, true, "reviewed")
			Expect(err).ToNot(HaveOccurred())

			d, err = sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(d.State).To(Equal(v1.DeploymentStateDeployed))
			_, held := ledger.Held(d.ID)
			Expect(held).To(BeTrue())

			exec, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 100, Seed: 11})
			Expect(err).ToNot(HaveOccurred())
			Expect(exec.Status).To(Equal(v1.ExecutionStatusCompleted))
		})
		It("should fail the deployment when the approval is denied", func() {
			d := deployParked()
			_, err := workflow.Vote(ctx, d.ApprovalID, v1.ReviewerCompliance, false, "no license basis")
			Expect(err).ToNot(HaveOccurred())

			d, err = sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(d.State).To(Equal(v1.DeploymentStateFailed))
			Expect(d.FailureReason).To(ContainSubstring("DENIED"))
		})
		It("should fail the deployment when the approval expires", func() {
			d := deployParked()
			wfNow = wfNow.Add(3 * time.Minute)
			Expect(workflow.ExpireStale(ctx)).To(ContainElement(d.ApprovalID))

			d, err := sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(d.State).To(Equal(v1.DeploymentStateFailed))
			Expect(d.FailureReason).To(ContainSubstring("EXPIRED"))
		})
		It("should block execution once the approval is revoked", func() {
			d := deployParked()
			_, err := workflow.Vote(ctx, d.ApprovalID, v1.ReviewerCompliance, true, "reviewed")
			Expect(err).ToNot(HaveOccurred())
			Expect(workflow.Revoke(ctx, d.ApprovalID, "policy change")).To(Succeed())

			_, err = sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 100})
			Expect(err).To(MatchError(deployment.ErrApprovalPending))
		})
	})

	Context("Execute", func() {
		deploy := func() *v1.Deployment {
			register(template("tpl-1"))
			d, err := sup.Deploy(ctx, input("tpl-1"))
			ExpectWithOffset(1, err).ToNot(HaveOccurred())
			return d
		}

		It("should run an execution to completion and settle the deployment", func() {
			d := deploy()
			exec, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 500, Seed: 7})
			Expect(err).ToNot(HaveOccurred())
			Expect(exec.Status).To(Equal(v1.ExecutionStatusCompleted))
			Expect(exec.Backend.Kind).To(Equal(v1.BackendClassical))
			Expect(exec.Results).ToNot(BeNil())
			Expect(exec.Results.TotalShots).To(Equal(500))
			Expect(exec.Correctness).ToNot(BeNil())
			Expect(exec.Correctness.Passed).To(BeTrue())
			Expect(exec.Cost.Total).To(BeNumerically(">", 0))

			d, err = sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(d.State).To(Equal(v1.DeploymentStateDeployed))
			Expect(d.Metrics.TotalExecutions).To(Equal(1))
			Expect(d.Metrics.SucceededExecutions).To(Equal(1))
		})
		It("should feed the adaptive optimizer from completed executions", func() {
			d := deploy()
			_, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 200, Seed: 3})
			Expect(err).ToNot(HaveOccurred())

			opt, ok := optimizers.Get(d.TemplateID, d.TenantID)
			Expect(ok).To(BeTrue())
			Expect(opt.Observations()).To(Equal(1))
		})
		It("should record violations and degrade compliance on SLA misses", func() {
			t := template("tpl-noisy")
			t.SLARequirements = []v1.SLARequirement{{
				Metric:        v1.MetricErrorRate,
				Threshold:     0.0001,
				Method:        v1.MethodSampling,
				FallbackChain: []v1.BackendKind{v1.BackendEmulator},
			}}
			register(t)
			in := input("tpl-noisy")
			in.Config.BackendPreferences = []v1.BackendKind{v1.BackendEmulator}
			d, err := sup.Deploy(ctx, in)
			Expect(err).ToNot(HaveOccurred())

			exec, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 2000, Seed: 13})
			Expect(err).ToNot(HaveOccurred())
			Expect(exec.Status).To(Equal(v1.ExecutionStatusCompleted))
			Expect(exec.Correctness.Passed).To(BeFalse())

			Expect(recorder.ofKind(events.KindViolationDetected)).ToNot(BeEmpty())
			d, err = sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(d.SLA.Compliance.Status).To(Equal(v1.ComplianceStatusViolated))
		})
		It("should reject a second execution while one is in flight", func() {
			slow := fake.NewDriver(fake.Behavior{
				Metadata: v1.BackendMetadata{
					Kind:            v1.BackendClassical,
					Availability:    0.99,
					CostPerShot:     0.0001,
					ExpectedLatency: time.Millisecond,
				},
				PollsUntilDone: 1 << 30,
			})
			buildSupervisor(deployment.NewRunner(backend.NewSelector(slow),
				deployment.WithPollInterval(5*time.Millisecond),
				deployment.WithExecuteTimeout(300*time.Millisecond)))
			d := deploy()

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				exec, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 10})
				Expect(err).ToNot(HaveOccurred())
				Expect(exec.Status).To(Equal(v1.ExecutionStatusTimeout))
			}()

			Eventually(func(g Gomega) {
				got, err := sup.Get(d.ID)
				g.Expect(err).ToNot(HaveOccurred())
				g.Expect(got.State).To(Equal(v1.DeploymentStateExecuting))
			}).Should(Succeed())
			_, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 10})
			Expect(err).To(MatchError(deployment.ErrExecutionInProgress))

			Eventually(done).Should(BeClosed())
			Eventually(func(g Gomega) {
				got, err := sup.Get(d.ID)
				g.Expect(err).ToNot(HaveOccurred())
				g.Expect(got.State).To(Equal(v1.DeploymentStateDeployed))
			}).Should(Succeed())
		})
	})

	Context("Lifecycle", func() {
		deploy := func() *v1.Deployment {
			register(template("tpl-1"))
			d, err := sup.Deploy(ctx, input("tpl-1"))
			ExpectWithOffset(1, err).ToNot(HaveOccurred())
			return d
		}

		It("should suspend and resume idempotently", func() {
			d := deploy()
			Expect(sup.Suspend(ctx, d.ID)).To(Succeed())
			Expect(sup.Suspend(ctx, d.ID)).To(Succeed())

			_, err := sup.Execute(ctx, d.ID, v1.ExecutionConfig{Shots: 10})
			Expect(err).To(MatchError(deployment.ErrDeploymentNotReady))

			Expect(sup.Resume(ctx, d.ID)).To(Succeed())
			got, err := sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.State).To(Equal(v1.DeploymentStateDeployed))
		})
		It("should release the reservation on completion", func() {
			d := deploy()
			Expect(sup.Complete(ctx, d.ID)).To(Succeed())
			Expect(sup.Complete(ctx, d.ID)).To(Succeed())

			_, held := ledger.Held(d.ID)
			Expect(held).To(BeFalse())
			Expect(sup.Archive(ctx, d.ID)).To(Succeed())
			got, err := sup.Get(d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.State).To(Equal(v1.DeploymentStateArchived))
		})
		It("should reject an illegal transition", func() {
			d := deploy()
			Expect(sup.Archive(ctx, d.ID)).To(MatchError(deployment.ErrInvalidTransition))
		})
		It("should reject operations on unknown deployments", func() {
			_, err := sup.Get("missing")
			Expect(err).To(MatchError(deployment.ErrDeploymentNotFound))
			_, err = sup.Execute(ctx, "missing", v1.ExecutionConfig{Shots: 10})
			Expect(err).To(MatchError(deployment.ErrDeploymentNotFound))
			Expect(sup.Suspend(ctx, "missing")).To(MatchError(deployment.ErrDeploymentNotFound))
		})
		It("should expose agreements for the compliance loop", func() {
			d := deploy()
			agreements := sup.Agreements()
			Expect(agreements).To(HaveLen(1))
			Expect(agreements[0].ID).To(Equal(d.SLA.ID))
			Expect(agreements[0].Compliance.Status).To(Equal(v1.ComplianceStatusCompliant))
		})
	})
})
