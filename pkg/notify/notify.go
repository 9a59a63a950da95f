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

// Package notify defines the notification-sink contract and a retrying
// wrapper with capped exponential backoff.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/operator/logging"
)

// Channel identifies a delivery medium. Concrete transports (email, chat,
// ticketing) live outside the control plane behind the Sink contract.
type Channel string

const (
	ChannelEmail   Channel = "EMAIL"
	ChannelChat    Channel = "CHAT"
	ChannelTicket  Channel = "TICKET"
	ChannelWebhook Channel = "WEBHOOK"
)

// Message is one notification payload.
type Message struct {
	Channel  Channel
	Severity v1.ViolationSeverity
	Subject  string
	Body     string
}

// Sink delivers notifications to an external channel.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// RetryingSink wraps a sink with exponential backoff up to a configured
// attempt cap.
type RetryingSink struct {
	delegate Sink
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
}

func NewRetryingSink(delegate Sink, attempts uint, delay, maxDelay time.Duration) *RetryingSink {
	if attempts == 0 {
		attempts = 5
	}
	if delay == 0 {
		delay = 100 * time.Millisecond
	}
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}
	return &RetryingSink{delegate: delegate, attempts: attempts, delay: delay, maxDelay: maxDelay}
}

func (s *RetryingSink) Deliver(ctx context.Context, msg Message) error {
	err := retry.Do(func() error {
		return s.delegate.Deliver(ctx, msg)
	},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(s.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("delivering %s notification %q, %w", msg.Channel, msg.Subject, err)
	}
	return nil
}

// LogSink writes notifications to the logger; the default sink when no
// transport is configured.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, msg Message) error {
	logging.FromContext(ctx).With(
		"channel", msg.Channel,
		"severity", msg.Severity,
		"subject", msg.Subject,
	).Infof("notification: %s", msg.Body)
	return nil
}

// InMemorySink collects notifications for tests.
type InMemorySink struct {
	mu       sync.Mutex
	messages []Message
	// FailTimes makes the next N deliveries fail, exercising retries
	FailTimes int
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTimes > 0 {
		s.FailTimes--
		return fmt.Errorf("transient delivery failure")
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *InMemorySink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
