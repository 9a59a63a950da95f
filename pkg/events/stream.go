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

package events

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/entangleops/qam/pkg/operator/logging"
)

// Handler is a well-known subscriber. Handles declares the event kinds the
// subscriber consumes; Handle must not block for long since delivery is
// synchronous per event.
type Handler interface {
	Name() string
	Handles() []Kind
	Handle(ctx context.Context, evt Event)
}

// Stream fans events out to subscribers. Publish delivers synchronously in
// subscription order, so events for one subject reach each subscriber in
// the order they were published.
type Stream struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewStream() *Stream {
	return &Stream{}
}

// Subscribe registers a handler for the kinds it declares.
func (s *Stream) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Publish delivers the event to every subscriber that handles its kind.
func (s *Stream) Publish(ctx context.Context, evt Event) {
	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, h := range handlers {
		if !lo.Contains(h.Handles(), evt.Kind) {
			continue
		}
		h.Handle(ctx, evt)
	}
	logging.FromContext(ctx).With("kind", evt.Kind, "subject", evt.SubjectID).Debugf("published event")
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Kinds       []Kind
	Fn          func(ctx context.Context, evt Event)
}

func (h HandlerFunc) Name() string    { return h.HandlerName }
func (h HandlerFunc) Handles() []Kind { return h.Kinds }
func (h HandlerFunc) Handle(ctx context.Context, evt Event) {
	h.Fn(ctx, evt)
}
