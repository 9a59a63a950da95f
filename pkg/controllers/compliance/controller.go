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

// Package compliance re-evaluates every active agreement's compliance
// score on a fixed cadence so scores recover as violations age out of
// the window, and verifies the audit chains, raising a critical alert
// on any break.
package compliance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/alerts"
	"github.com/entangleops/qam/pkg/deployment"
)

const DefaultInterval = 60 * time.Second

// AuditVerifier walks receipt chains; a broken chain returns an error
// and halts the subject for further writes.
type AuditVerifier interface {
	Subjects() []string
	Verify(subjectID string) error
}

type Controller struct {
	supervisor *deployment.Supervisor
	auditLog   AuditVerifier
	alerts     *alerts.Manager
	interval   time.Duration
	clock      func() time.Time
}

func NewController(supervisor *deployment.Supervisor, auditLog AuditVerifier, alertManager *alerts.Manager, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		supervisor: supervisor,
		auditLog:   auditLog,
		alerts:     alertManager,
		interval:   interval,
		clock:      time.Now,
	}
}

func (c *Controller) Name() string            { return "compliance" }
func (c *Controller) Interval() time.Duration { return c.interval }

func (c *Controller) Reconcile(ctx context.Context) error {
	now := c.clock()
	for _, agreement := range c.supervisor.Agreements() {
		c.supervisor.RefreshCompliance(agreement.ID, now)
	}

	var errs error
	for _, subject := range c.auditLog.Subjects() {
		if err := c.auditLog.Verify(subject); err != nil {
			errs = multierr.Append(errs, err)
			errs = multierr.Append(errs, c.alerts.RaiseOperational(ctx, v1.SeverityCritical,
				fmt.Sprintf("audit chain broken for subject %s", subject),
				err.Error()))
		}
	}
	return errs
}
