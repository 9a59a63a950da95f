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

// Package operator composes the engine: it builds every subsystem from
// options, subscribes the event consumers and runs the periodic loops
// and the metrics endpoint until shutdown.
package operator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/entangleops/qam/pkg/alerts"
	"github.com/entangleops/qam/pkg/audit"
	"github.com/entangleops/qam/pkg/controllers"
	"github.com/entangleops/qam/pkg/controllers/polling"
	"github.com/entangleops/qam/pkg/deployment"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/metrics"
	"github.com/entangleops/qam/pkg/notify"
	"github.com/entangleops/qam/pkg/operator/logging"
	"github.com/entangleops/qam/pkg/operator/options"
	"github.com/entangleops/qam/pkg/optimizer"
	"github.com/entangleops/qam/pkg/policy"
	"github.com/entangleops/qam/pkg/policy/approval"
	"github.com/entangleops/qam/pkg/providers/backend"
	"github.com/entangleops/qam/pkg/providers/backend/fake"
	"github.com/entangleops/qam/pkg/providers/reservation"
	"github.com/entangleops/qam/pkg/registry"
	"github.com/entangleops/qam/pkg/sla"
)

// Operator holds the composed engine.
type Operator struct {
	Options  *options.Options
	Stream   *events.Stream
	Audit    *audit.Log
	Registry *registry.Registry
	Gate     *policy.Gate
	Rules    *policy.RuleStore

	Approvals  *approval.Workflow
	Ledger     *reservation.Ledger
	Selector   *backend.Selector
	Tracker    *sla.Tracker
	Optimizers *optimizer.Store
	Alerts     *alerts.Manager
	Supervisor *deployment.Supervisor

	Sink        *metrics.BufferedSink
	controllers []*polling.Controller
}

// NewOperator builds the engine from options. Drivers default to the
// in-process fakes; production deployments register real drivers on the
// selector before Start.
func NewOperator(ctx context.Context, opts *options.Options) (context.Context, *Operator) {
	logger := logging.NewLogger(opts.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	stream := events.NewStream()
	auditLog := audit.NewLog()
	stream.Subscribe(audit.NewRecorder(auditLog))

	rules := policy.NewRuleStore()
	classifier := policy.NewClassifier(rules, time.Duration(opts.ClassificationTTLDays)*24*time.Hour)
	gate := policy.NewGate(classifier, policy.NewListScreener(), policy.NewActorLicenseService(), rules)

	approvals := approval.NewWorkflow(stream, approval.WithTimeouts(opts.ApprovalStageTimeout, opts.ApprovalTotalTimeout))
	ledger := reservation.NewLedger(opts.Limits(), stream)
	selector := backend.NewSelector(fake.NewClassical(), fake.NewEmulator(), fake.NewQPU())
	tracker := sla.NewTracker(time.Duration(opts.ComplianceWindowDays) * 24 * time.Hour)
	optimizers := optimizer.NewStore(stream, optimizer.DefaultIdleTTL,
		optimizer.WithProfileDefaults(opts.OptimizerDefaults()))

	sink := metrics.NewBufferedSink(metrics.NewInMemorySink(), 4096)
	alertManager := alerts.NewManager(alerts.Config{
		Cooldown:          opts.AlertCooldown,
		CorrelationWindow: opts.AlertCorrelationWindow,
	}, notify.NewRetryingSink(notify.LogSink{}, 0, 0, 0))
	stream.Subscribe(alertManager)

	reg := registry.New()
	supervisor := deployment.NewSupervisor(
		reg, gate, approvals, ledger,
		deployment.NewRunner(selector), tracker, optimizers, stream,
	)

	o := &Operator{
		Options:    opts,
		Stream:     stream,
		Audit:      auditLog,
		Registry:   reg,
		Gate:       gate,
		Rules:      rules,
		Approvals:  approvals,
		Ledger:     ledger,
		Selector:   selector,
		Tracker:    tracker,
		Optimizers: optimizers,
		Alerts:     alertManager,
		Supervisor: supervisor,
		Sink:       sink,
	}
	o.controllers = controllers.NewControllers(supervisor, sink, auditLog, alertManager, approvals, controllers.Intervals{
		Monitoring: opts.MonitoringInterval,
		Compliance: opts.ComplianceInterval,
		AlertQueue: opts.AlertQueueInterval,
	})
	return ctx, o
}

// Start runs the loops and the metrics endpoint until the context is
// cancelled.
func (o *Operator) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)
	controllers.Start(ctx, o.controllers)
	defer controllers.Stop(o.controllers)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", o.Options.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.With("port", o.Options.MetricsPort).Infof("serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving metrics, %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
