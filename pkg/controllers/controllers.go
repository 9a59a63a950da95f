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

// Package controllers assembles the engine's periodic loops.
package controllers

import (
	"context"
	"time"

	"github.com/entangleops/qam/pkg/alerts"
	"github.com/entangleops/qam/pkg/audit"
	"github.com/entangleops/qam/pkg/controllers/alertqueue"
	"github.com/entangleops/qam/pkg/controllers/approvalexpiry"
	"github.com/entangleops/qam/pkg/controllers/compliance"
	"github.com/entangleops/qam/pkg/controllers/monitoring"
	"github.com/entangleops/qam/pkg/controllers/polling"
	"github.com/entangleops/qam/pkg/deployment"
	"github.com/entangleops/qam/pkg/metrics"
	"github.com/entangleops/qam/pkg/policy/approval"
)

// Intervals carries the loop cadences; zero values take each loop's
// default.
type Intervals struct {
	Monitoring time.Duration
	Compliance time.Duration
	AlertQueue time.Duration
}

// NewControllers wires the four periodic loops against the engine
// components.
func NewControllers(supervisor *deployment.Supervisor, sink *metrics.BufferedSink, auditLog *audit.Log, alertManager *alerts.Manager, approvals *approval.Workflow, intervals Intervals) []*polling.Controller {
	return []*polling.Controller{
		polling.NewController(monitoring.NewController(supervisor, sink, intervals.Monitoring)),
		polling.NewController(compliance.NewController(supervisor, auditLog, alertManager, intervals.Compliance)),
		polling.NewController(alertqueue.NewController(alertManager, intervals.AlertQueue)),
		polling.NewController(approvalexpiry.NewController(approvals)),
	}
}

// Start launches every controller.
func Start(ctx context.Context, controllers []*polling.Controller) {
	for _, c := range controllers {
		c.Start(ctx)
	}
}

// Stop stops every controller, waiting for in-flight passes.
func Stop(controllers []*polling.Controller) {
	for _, c := range controllers {
		c.Stop()
	}
}
