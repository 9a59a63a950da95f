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

package metrics

import (
	"context"
	"sync"
	"time"
)

// Point is one datum written to a metric sink.
type Point struct {
	Namespace string
	Name      string
	Value     float64
	Labels    map[string]string
	TS        time.Time
}

// Sink is the external metric-store contract. Writes must be cheap; the
// buffered sink in front of a slow store absorbs backpressure.
type Sink interface {
	Write(ctx context.Context, p Point) error
}

// BufferedSink buffers up to capacity points for a downstream sink,
// dropping the oldest on overflow and counting drops.
type BufferedSink struct {
	mu       sync.Mutex
	buf      []Point
	capacity int
	dropped  int64
	delegate Sink
}

func NewBufferedSink(delegate Sink, capacity int) *BufferedSink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &BufferedSink{delegate: delegate, capacity: capacity}
}

// Write buffers the point. It never blocks and never fails.
func (s *BufferedSink) Write(_ context.Context, p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		s.dropped++
		MetricSinkPointsDropped.Inc()
	}
	s.buf = append(s.buf, p)
	MetricSinkPointsWritten.Inc()
	return nil
}

// Flush drains the buffer into the delegate. Points that fail to write are
// re-queued at the front so a transient store outage loses nothing.
func (s *BufferedSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.buf
	s.buf = nil
	s.mu.Unlock()

	for i, p := range pending {
		if err := s.delegate.Write(ctx, p); err != nil {
			s.mu.Lock()
			s.buf = append(pending[i:], s.buf...)
			if overflow := len(s.buf) - s.capacity; overflow > 0 {
				s.buf = s.buf[overflow:]
				s.dropped += int64(overflow)
			}
			s.mu.Unlock()
			return err
		}
	}
	return nil
}

// Dropped returns the total points dropped on overflow.
func (s *BufferedSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Pending returns the current buffer depth.
func (s *BufferedSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// InMemorySink collects points for tests and for running without a real
// metric store.
type InMemorySink struct {
	mu     sync.Mutex
	points []Point
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Write(_ context.Context, p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	return nil
}

func (s *InMemorySink) Points() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}
