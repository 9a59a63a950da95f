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

// Package polling runs periodic reconcilers. Each controller owns one
// goroutine that fires on its interval or on an explicit trigger;
// reconciles are idempotent and safe to overlap across controllers.
package polling

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entangleops/qam/pkg/operator/logging"
)

// Reconciler is one periodic unit of work.
type Reconciler interface {
	Name() string
	Interval() time.Duration
	Reconcile(ctx context.Context) error
}

// Controller wraps a reconciler with start/stop lifecycle and a trigger
// channel that forces an immediate pass.
type Controller struct {
	r       Reconciler
	trigger chan struct{}

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(r Reconciler) *Controller {
	return &Controller{
		r:       r,
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the reconcile loop. Calling Start on a running
// controller is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.active = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := logging.FromContext(ctx).With("controller", c.r.Name())
	ticker := time.NewTicker(c.r.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.trigger:
		}
		c.reconcile(ctx, log)
	}
}

func (c *Controller) reconcile(ctx context.Context, log *zap.SugaredLogger) {
	start := time.Now()
	err := c.r.Reconcile(ctx)
	reconcileDuration.WithLabelValues(c.r.Name()).Observe(time.Since(start).Seconds())
	if err != nil && ctx.Err() == nil {
		reconcileErrors.WithLabelValues(c.r.Name()).Inc()
		log.Errorf("reconciling: %v", err)
	}
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	cancel()
	<-done
}

// Trigger requests an immediate pass. Coalesces when one is pending.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Active reports whether the loop is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
