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

package events_test

import (
	"context"
	"sync"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type capture struct {
	mu    sync.Mutex
	kinds []events.Kind
	seen  []events.Event
}

func (c *capture) Name() string           { return "capture" }
func (c *capture) Handles() []events.Kind { return c.kinds }
func (c *capture) Handle(_ context.Context, evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, evt)
}

func (c *capture) subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.seen))
	for _, e := range c.seen {
		out = append(out, e.SubjectID)
	}
	return out
}

var _ = Describe("Stream", func() {
	var stream *events.Stream

	BeforeEach(func() {
		stream = events.NewStream()
	})

	It("should deliver events in publish order", func() {
		c := &capture{kinds: []events.Kind{events.KindDeploymentTransitioned}}
		stream.Subscribe(c)

		for _, id := range []string{"dep-1", "dep-2", "dep-3"} {
			stream.Publish(ctx, events.Event{
				Kind:       events.KindDeploymentTransitioned,
				SubjectID:  id,
				Deployment: &events.DeploymentTransition{To: v1.DeploymentStateDeployed},
			})
		}
		Expect(c.subjects()).To(Equal([]string{"dep-1", "dep-2", "dep-3"}))
	})

	It("should only deliver declared kinds", func() {
		violations := &capture{kinds: []events.Kind{events.KindViolationDetected}}
		everything := &capture{kinds: []events.Kind{
			events.KindViolationDetected,
			events.KindDeploymentTransitioned,
		}}
		stream.Subscribe(violations)
		stream.Subscribe(everything)

		stream.Publish(ctx, events.Event{
			Kind:       events.KindDeploymentTransitioned,
			SubjectID:  "dep-1",
			Deployment: &events.DeploymentTransition{To: v1.DeploymentStateFailed},
		})
		stream.Publish(ctx, events.Event{
			Kind:      events.KindViolationDetected,
			SubjectID: "sla-1",
			Violation: &v1.Violation{AgreementID: "sla-1", Severity: v1.SeverityHigh},
		})

		Expect(violations.subjects()).To(Equal([]string{"sla-1"}))
		Expect(everything.subjects()).To(Equal([]string{"dep-1", "sla-1"}))
	})

	It("should fan one event out to every subscriber", func() {
		first := &capture{kinds: []events.Kind{events.KindReservationChanged}}
		second := &capture{kinds: []events.Kind{events.KindReservationChanged}}
		stream.Subscribe(first)
		stream.Subscribe(second)

		stream.Publish(ctx, events.Event{
			Kind:        events.KindReservationChanged,
			SubjectID:   "dep-1",
			Reservation: &events.ReservationChange{Reserved: true},
		})
		Expect(first.subjects()).To(Equal([]string{"dep-1"}))
		Expect(second.subjects()).To(Equal([]string{"dep-1"}))
	})

	It("should adapt plain functions into handlers", func() {
		var got []string
		var mu sync.Mutex
		stream.Subscribe(events.HandlerFunc{
			HandlerName: "inline",
			Kinds:       []events.Kind{events.KindExecutionTransitioned},
			Fn: func(_ context.Context, evt events.Event) {
				mu.Lock()
				defer mu.Unlock()
				got = append(got, evt.SubjectID)
			},
		})

		stream.Publish(ctx, events.Event{
			Kind:      events.KindExecutionTransitioned,
			SubjectID: "exec-1",
			Execution: &events.ExecutionTransition{To: v1.ExecutionStatusCompleted},
		})
		mu.Lock()
		defer mu.Unlock()
		Expect(got).To(Equal([]string{"exec-1"}))
	})
})
