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

// Package monitoring periodically samples deployment health into the
// metric sink and flushes the buffer downstream.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/deployment"
	"github.com/entangleops/qam/pkg/metrics"
)

const DefaultInterval = 30 * time.Second

type Controller struct {
	supervisor *deployment.Supervisor
	sink       *metrics.BufferedSink
	interval   time.Duration
	clock      func() time.Time
}

func NewController(supervisor *deployment.Supervisor, sink *metrics.BufferedSink, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		supervisor: supervisor,
		sink:       sink,
		interval:   interval,
		clock:      time.Now,
	}
}

func (c *Controller) Name() string            { return "monitoring" }
func (c *Controller) Interval() time.Duration { return c.interval }

// Reconcile writes one point per deployment metric, then flushes.
func (c *Controller) Reconcile(ctx context.Context) error {
	now := c.clock()
	var errs error
	for _, d := range c.supervisor.List("") {
		if d.State == v1.DeploymentStateArchived {
			continue
		}
		labels := map[string]string{
			"deployment": d.ID,
			"template":   d.TemplateID,
			"tenant":     d.TenantID,
			"state":      string(d.State),
		}
		points := []metrics.Point{
			{Name: "executions_total", Value: float64(d.Metrics.TotalExecutions)},
			{Name: "executions_failed", Value: float64(d.Metrics.FailedExecutions)},
			{Name: "cost_total", Value: d.Metrics.TotalCost},
			{Name: "avg_execution_seconds", Value: d.Metrics.AvgExecutionTime.Seconds()},
			{Name: "compliance_score", Value: d.SLA.Compliance.Score},
		}
		for _, p := range points {
			p.Namespace = metrics.Namespace
			p.Labels = labels
			p.TS = now
			if err := c.sink.Write(ctx, p); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("writing %s for deployment %s, %w", p.Name, d.ID, err))
			}
		}
	}
	if err := c.sink.Flush(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("flushing metric sink, %w", err))
	}
	return errs
}
