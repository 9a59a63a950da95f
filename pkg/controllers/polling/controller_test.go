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

package polling_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entangleops/qam/pkg/controllers/polling"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingReconciler struct {
	mu       sync.Mutex
	interval time.Duration
	err      error
	count    int
}

func (r *countingReconciler) Name() string            { return "counting" }
func (r *countingReconciler) Interval() time.Duration { return r.interval }
func (r *countingReconciler) Reconcile(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.err
}

func (r *countingReconciler) reconciles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

var _ = Describe("Controller", func() {
	It("should reconcile on its interval until stopped", func() {
		r := &countingReconciler{interval: 5 * time.Millisecond}
		c := polling.NewController(r)
		c.Start(ctx)
		DeferCleanup(c.Stop)

		Expect(c.Active()).To(BeTrue())
		Eventually(r.reconciles).Should(BeNumerically(">=", 3))

		c.Stop()
		Expect(c.Active()).To(BeFalse())
		settled := r.reconciles()
		Consistently(r.reconciles).Should(Equal(settled))
	})

	It("should reconcile immediately on trigger", func() {
		r := &countingReconciler{interval: time.Hour}
		c := polling.NewController(r)
		c.Start(ctx)
		DeferCleanup(c.Stop)

		Consistently(r.reconciles).Should(Equal(0))
		c.Trigger()
		Eventually(r.reconciles).Should(Equal(1))
	})

	It("should coalesce pending triggers", func() {
		r := &countingReconciler{interval: time.Hour}
		c := polling.NewController(r)
		c.Start(ctx)
		DeferCleanup(c.Stop)

		for i := 0; i < 5; i++ {
			c.Trigger()
		}
		Eventually(r.reconciles).Should(BeNumerically(">=", 1))
		Consistently(r.reconciles).Should(BeNumerically("<=", 2))
	})

	It("should keep running through reconcile errors", func() {
		r := &countingReconciler{interval: 5 * time.Millisecond, err: fmt.Errorf("transient store outage")}
		c := polling.NewController(r)
		c.Start(ctx)
		DeferCleanup(c.Stop)

		Eventually(r.reconciles).Should(BeNumerically(">=", 2))
	})

	It("should treat repeated starts and stops as no-ops", func() {
		r := &countingReconciler{interval: time.Hour}
		c := polling.NewController(r)
		c.Start(ctx)
		c.Start(ctx)
		Expect(c.Active()).To(BeTrue())

		c.Stop()
		c.Stop()
		Expect(c.Active()).To(BeFalse())
	})

	It("should stop when the start context is cancelled", func() {
		r := &countingReconciler{interval: 5 * time.Millisecond}
		c := polling.NewController(r)
		startCtx, cancel := context.WithCancel(ctx)
		c.Start(startCtx)
		DeferCleanup(c.Stop)

		Eventually(r.reconciles).Should(BeNumerically(">=", 1))
		cancel()
		// let an in-flight pass drain before sampling
		time.Sleep(20 * time.Millisecond)
		settled := r.reconciles()
		Consistently(r.reconciles).Should(Equal(settled))
	})
})
