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

package metrics_test

import (
	"context"
	"fmt"

	"github.com/entangleops/qam/pkg/metrics"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// flakySink accepts succeedFirst writes, fails the next fails writes,
// then delegates again.
type flakySink struct {
	succeedFirst int
	fails        int
	inner        *metrics.InMemorySink
}

func (s *flakySink) Write(ctx context.Context, p metrics.Point) error {
	if s.succeedFirst > 0 {
		s.succeedFirst--
		return s.inner.Write(ctx, p)
	}
	if s.fails > 0 {
		s.fails--
		return fmt.Errorf("metric store unavailable")
	}
	return s.inner.Write(ctx, p)
}

var _ = Describe("BufferedSink", func() {
	point := func(name string) metrics.Point {
		return metrics.Point{Namespace: "qam", Name: name, Value: 1}
	}

	It("should buffer writes until flushed", func() {
		inner := metrics.NewInMemorySink()
		sink := metrics.NewBufferedSink(inner, 10)

		Expect(sink.Write(ctx, point("executions"))).To(Succeed())
		Expect(sink.Write(ctx, point("violations"))).To(Succeed())
		Expect(sink.Pending()).To(Equal(2))
		Expect(inner.Points()).To(BeEmpty())

		Expect(sink.Flush(ctx)).To(Succeed())
		Expect(sink.Pending()).To(Equal(0))
		Expect(inner.Points()).To(HaveLen(2))
		Expect(inner.Points()[0].Name).To(Equal("executions"))
	})

	It("should drop the oldest points on overflow", func() {
		inner := metrics.NewInMemorySink()
		sink := metrics.NewBufferedSink(inner, 3)

		for i := 0; i < 5; i++ {
			Expect(sink.Write(ctx, point(fmt.Sprintf("m%d", i)))).To(Succeed())
		}
		Expect(sink.Pending()).To(Equal(3))
		Expect(sink.Dropped()).To(Equal(int64(2)))

		Expect(sink.Flush(ctx)).To(Succeed())
		names := []string{}
		for _, p := range inner.Points() {
			names = append(names, p.Name)
		}
		Expect(names).To(Equal([]string{"m2", "m3", "m4"}))
	})

	It("should requeue unflushed points when the store fails", func() {
		flaky := &flakySink{fails: 1, inner: metrics.NewInMemorySink()}
		sink := metrics.NewBufferedSink(flaky, 10)

		Expect(sink.Write(ctx, point("executions"))).To(Succeed())
		Expect(sink.Write(ctx, point("violations"))).To(Succeed())

		Expect(sink.Flush(ctx)).To(HaveOccurred())
		Expect(sink.Pending()).To(Equal(2))
		Expect(flaky.inner.Points()).To(BeEmpty())

		Expect(sink.Flush(ctx)).To(Succeed())
		Expect(sink.Pending()).To(Equal(0))
		Expect(flaky.inner.Points()).To(HaveLen(2))
		Expect(flaky.inner.Points()[0].Name).To(Equal("executions"))
	})

	It("should keep partial progress across a mid-flush failure", func() {
		flaky := &flakySink{succeedFirst: 1, fails: 1, inner: metrics.NewInMemorySink()}
		sink := metrics.NewBufferedSink(flaky, 10)

		Expect(sink.Write(ctx, point("a"))).To(Succeed())
		Expect(sink.Write(ctx, point("b"))).To(Succeed())
		Expect(sink.Write(ctx, point("c"))).To(Succeed())

		// a lands, b fails and requeues b and c
		Expect(sink.Flush(ctx)).To(HaveOccurred())
		Expect(sink.Pending()).To(Equal(2))
		Expect(flaky.inner.Points()).To(HaveLen(1))

		Expect(sink.Flush(ctx)).To(Succeed())
		names := []string{}
		for _, p := range flaky.inner.Points() {
			names = append(names, p.Name)
		}
		Expect(names).To(Equal([]string{"a", "b", "c"}))
	})
})
