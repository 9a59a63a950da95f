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

// Package alerts deduplicates, correlates, suppresses and escalates
// violation events before delivering them to notification sinks.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/patrickmn/go-cache"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/notify"
	"github.com/entangleops/qam/pkg/operator/logging"
)

const (
	DefaultCooldown          = 5 * time.Minute
	DefaultCorrelationWindow = 60 * time.Second

	// correlation counts at which the composite severity escalates one
	// and two levels
	escalateAtCount      = 3
	escalateTwiceAtCount = 5
)

type Config struct {
	Cooldown          time.Duration
	CorrelationWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = DefaultCorrelationWindow
	}
	return c
}

type correlationWindow struct {
	start    time.Time
	count    int
	severity v1.ViolationSeverity
}

// Manager receives violation events off the stream and delivers alerts.
// Identical (agreement, metric, severity) alerts inside the cooldown are
// suppressed; alerts sharing an agreement inside the correlation window
// aggregate into one composite whose severity escalates with count.
type Manager struct {
	mu      sync.Mutex
	queue   []v1.Violation
	windows map[string]*correlationWindow

	config   Config
	cooldown *cache.Cache
	sink     notify.Sink
	clock    func() time.Time
}

type Option func(*Manager)

func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

func NewManager(config Config, sink notify.Sink, opts ...Option) *Manager {
	config = config.withDefaults()
	m := &Manager{
		windows:  map[string]*correlationWindow{},
		config:   config,
		cooldown: cache.New(config.Cooldown, time.Minute),
		sink:     sink,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Name() string { return "alerts" }

func (m *Manager) Handles() []events.Kind {
	return []events.Kind{events.KindViolationDetected}
}

// Handle enqueues the violation; the alert-queue controller drains it.
func (m *Manager) Handle(_ context.Context, evt events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, *evt.Violation)
}

// Enqueue adds a violation directly, bypassing the event stream.
func (m *Manager) Enqueue(violation v1.Violation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, violation)
}

// QueueDepth returns the number of undelivered violations.
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// ProcessQueue drains the queue, applying suppression, correlation and
// escalation, then delivering. Safe to call from overlapping loops.
func (m *Manager) ProcessQueue(ctx context.Context) error {
	m.mu.Lock()
	pending := m.queue
	m.queue = nil
	m.mu.Unlock()

	log := logging.FromContext(ctx)
	for _, violation := range pending {
		key, suppressed := m.suppressed(violation)
		if suppressed {
			alertsSuppressed.Inc()
			log.With("agreement", violation.AgreementID, "metric", violation.Metric).
				Debugf("alert suppressed by cooldown")
			continue
		}
		severity, escalated := m.correlate(violation)
		if escalated {
			alertsEscalated.Inc()
		}
		msg := notify.Message{
			Channel:  channelFor(severity),
			Severity: severity,
			Subject:  fmt.Sprintf("SLA violation: %s on agreement %s", violation.Metric, violation.AgreementID),
			Body: fmt.Sprintf("metric %s observed %.4g against threshold %.4g (deviation %.2f, severity %s)",
				violation.Metric, violation.Actual, violation.Threshold, violation.Deviation, severity),
		}
		if err := m.sink.Deliver(ctx, msg); err != nil {
			// requeue so the next processing cycle retries delivery
			m.mu.Lock()
			m.queue = append(m.queue, violation)
			m.mu.Unlock()
			return fmt.Errorf("delivering alert for agreement %s, %w", violation.AgreementID, err)
		}
		// the cooldown starts only once delivery succeeds, so a requeued
		// alert is never suppressed by its own failed attempt
		if key != "" {
			m.cooldown.SetDefault(key, struct{}{})
		}
		alertsDelivered.WithLabelValues(string(severity)).Inc()
	}
	return nil
}

// RaiseOperational delivers a non-SLA alert, such as a broken audit
// chain. It shares the cooldown so a persistent condition does not page
// on every sweep.
func (m *Manager) RaiseOperational(ctx context.Context, severity v1.ViolationSeverity, subject, body string) error {
	key := fmt.Sprintf("op/%s/%s", severity, subject)
	if _, hit := m.cooldown.Get(key); hit {
		alertsSuppressed.Inc()
		return nil
	}
	msg := notify.Message{
		Channel:  channelFor(severity),
		Severity: severity,
		Subject:  subject,
		Body:     body,
	}
	if err := m.sink.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("delivering operational alert %q, %w", subject, err)
	}
	m.cooldown.SetDefault(key, struct{}{})
	alertsDelivered.WithLabelValues(string(severity)).Inc()
	return nil
}

// suppressed reports whether the violation's (agreement, metric, severity)
// fingerprint is inside the cooldown, returning the cache key for the
// caller to record after delivery.
func (m *Manager) suppressed(violation v1.Violation) (string, bool) {
	fingerprint, err := hashstructure.Hash(struct {
		Agreement string
		Metric    v1.SLAMetric
		Severity  v1.ViolationSeverity
	}{violation.AgreementID, violation.Metric, violation.Severity}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", false
	}
	key := fmt.Sprint(fingerprint)
	_, hit := m.cooldown.Get(key)
	return key, hit
}

// correlate folds the violation into its agreement's correlation window
// and returns the possibly escalated severity.
func (m *Manager) correlate(violation v1.Violation) (v1.ViolationSeverity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	w, ok := m.windows[violation.AgreementID]
	if !ok || now.Sub(w.start) > m.config.CorrelationWindow {
		w = &correlationWindow{start: now, severity: violation.Severity}
		m.windows[violation.AgreementID] = w
	}
	w.count++
	if violation.Severity.Rank() > w.severity.Rank() {
		w.severity = violation.Severity
	}

	severity := w.severity
	escalations := 0
	if w.count >= escalateTwiceAtCount {
		escalations = 2
	} else if w.count >= escalateAtCount {
		escalations = 1
	}
	for i := 0; i < escalations; i++ {
		severity = escalate(severity)
	}
	return severity, escalations > 0
}

func escalate(s v1.ViolationSeverity) v1.ViolationSeverity {
	switch s {
	case v1.SeverityLow:
		return v1.SeverityMedium
	case v1.SeverityMedium:
		return v1.SeverityHigh
	default:
		return v1.SeverityCritical
	}
}

func channelFor(severity v1.ViolationSeverity) notify.Channel {
	switch severity {
	case v1.SeverityCritical:
		return notify.ChannelTicket
	case v1.SeverityHigh:
		return notify.ChannelEmail
	default:
		return notify.ChannelChat
	}
}
