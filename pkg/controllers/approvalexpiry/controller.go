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

// Package approvalexpiry escalates and expires stale approvals. It scans
// at a quarter of the stage timeout so no deadline is missed by more
// than that.
package approvalexpiry

import (
	"context"
	"time"

	"github.com/entangleops/qam/pkg/operator/logging"
	"github.com/entangleops/qam/pkg/policy/approval"
)

type Controller struct {
	workflow *approval.Workflow
}

func NewController(workflow *approval.Workflow) *Controller {
	return &Controller{workflow: workflow}
}

func (c *Controller) Name() string { return "approvalexpiry" }

func (c *Controller) Interval() time.Duration {
	return c.workflow.StageTimeout() / 4
}

func (c *Controller) Reconcile(ctx context.Context) error {
	if expired := c.workflow.ExpireStale(ctx); len(expired) > 0 {
		logging.FromContext(ctx).Infof("expired %d stale approvals", len(expired))
	}
	return nil
}
