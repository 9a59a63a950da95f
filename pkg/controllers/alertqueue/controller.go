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

// Package alertqueue drains the alert manager's queue on a short cadence.
package alertqueue

import (
	"context"
	"time"

	"github.com/entangleops/qam/pkg/alerts"
)

const DefaultInterval = 10 * time.Second

type Controller struct {
	manager  *alerts.Manager
	interval time.Duration
}

func NewController(manager *alerts.Manager, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{manager: manager, interval: interval}
}

func (c *Controller) Name() string            { return "alertqueue" }
func (c *Controller) Interval() time.Duration { return c.interval }

func (c *Controller) Reconcile(ctx context.Context) error {
	return c.manager.ProcessQueue(ctx)
}
