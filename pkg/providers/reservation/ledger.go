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

// Package reservation implements the shared resource ledger. Reservations
// are atomic over (quantumMinutes, classicalCompute, memory, storage),
// carry a subject id, and queue FIFO when the pools are contended.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"
	"github.com/entangleops/qam/pkg/operator/logging"
)

var (
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrAlreadyReserved     = errors.New("subject already holds a reservation")
)

type waiter struct {
	subjectID  string
	resources  v1.Resources
	priority   v1.PriorityClass
	enqueuedAt time.Time
	seq        int64
	// ready closes when the reservation is granted
	ready     chan struct{}
	cancelled bool
}

// Ledger is the shared reservation ledger. All mutation goes through
// Reserve/Release; holders never see ledger-owned memory.
type Ledger struct {
	mu     sync.Mutex
	limits v1.Resources
	active map[string]v1.Reservation
	queue  []*waiter
	seq    int64

	stream *events.Stream
	clock  func() time.Time
}

type Option func(*Ledger)

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

func NewLedger(limits v1.Resources, stream *events.Stream, opts ...Option) *Ledger {
	l := &Ledger{
		limits: limits,
		active: map[string]v1.Reservation{},
		stream: stream,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve atomically holds the resources for the subject, queueing FIFO
// behind earlier contenders until capacity frees or the context expires.
// Contenders with identical enqueue timestamps are ordered by priority
// class.
func (l *Ledger) Reserve(ctx context.Context, subjectID string, resources v1.Resources, priority v1.PriorityClass) (v1.Reservation, error) {
	l.mu.Lock()
	if _, held := l.active[subjectID]; held {
		l.mu.Unlock()
		return v1.Reservation{}, fmt.Errorf("reserving for %s, %w", subjectID, ErrAlreadyReserved)
	}
	if !resources.Fits(v1.Resources{}, l.limits) {
		l.mu.Unlock()
		return v1.Reservation{}, fmt.Errorf("request for %s exceeds configured limits, %w", subjectID, ErrResourceUnavailable)
	}
	now := l.clock()
	if len(l.queue) == 0 && resources.Fits(l.usedLocked(), l.limits) {
		res := l.grantLocked(subjectID, resources, now, now)
		l.mu.Unlock()
		l.publish(ctx, subjectID, resources, true)
		return res, nil
	}

	w := &waiter{
		subjectID:  subjectID,
		resources:  resources,
		priority:   priority,
		enqueuedAt: now,
		seq:        l.nextSeq(),
		ready:      make(chan struct{}),
	}
	l.enqueueLocked(w)
	l.mu.Unlock()

	logging.FromContext(ctx).With("subject", subjectID, "quantum-minutes", resources.QuantumMinutes).
		Debugf("reservation queued behind contenders")

	select {
	case <-w.ready:
		l.mu.Lock()
		res := l.active[subjectID]
		l.mu.Unlock()
		l.publish(ctx, subjectID, resources, true)
		return res, nil
	case <-ctx.Done():
		l.mu.Lock()
		w.cancelled = true
		l.removeWaiterLocked(w)
		// the grant may have raced the cancellation
		if res, held := l.active[subjectID]; held {
			l.mu.Unlock()
			l.publish(ctx, subjectID, resources, true)
			return res, nil
		}
		l.mu.Unlock()
		return v1.Reservation{}, fmt.Errorf("waiting for resources for %s, %w: %s", subjectID, ErrResourceUnavailable, ctx.Err())
	}
}

// Release frees the subject's reservation and grants queued waiters in
// FIFO order. Releasing an unknown subject is a no-op.
func (l *Ledger) Release(ctx context.Context, subjectID string) {
	l.mu.Lock()
	res, held := l.active[subjectID]
	if !held {
		l.mu.Unlock()
		return
	}
	delete(l.active, subjectID)
	granted := l.grantWaitersLocked()
	l.mu.Unlock()

	l.publish(ctx, subjectID, res.Resources, false)
	for _, w := range granted {
		close(w.ready)
	}
}

// Held returns the subject's reservation, if any.
func (l *Ledger) Held(subjectID string) (v1.Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.active[subjectID]
	return res, ok
}

// Used returns the sum of active reservations.
func (l *Ledger) Used() v1.Resources {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usedLocked()
}

// Limits returns the configured hard caps.
func (l *Ledger) Limits() v1.Resources {
	return l.limits
}

// QueueDepth returns the number of waiting contenders.
func (l *Ledger) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Ledger) usedLocked() v1.Resources {
	var used v1.Resources
	for _, res := range l.active {
		used = used.Add(res.Resources)
	}
	return used
}

func (l *Ledger) grantLocked(subjectID string, resources v1.Resources, enqueuedAt, now time.Time) v1.Reservation {
	res := v1.Reservation{
		SubjectID:  subjectID,
		Resources:  resources,
		Reserved:   true,
		EnqueuedAt: enqueuedAt,
		GrantedAt:  now,
	}
	l.active[subjectID] = res
	return res
}

// grantWaitersLocked grants from the head of the queue only; a large
// request at the head blocks smaller ones behind it so no contender
// starves.
func (l *Ledger) grantWaitersLocked() []*waiter {
	var granted []*waiter
	now := l.clock()
	for len(l.queue) > 0 {
		head := l.queue[0]
		if head.cancelled {
			l.queue = l.queue[1:]
			continue
		}
		if !head.resources.Fits(l.usedLocked(), l.limits) {
			break
		}
		l.grantLocked(head.subjectID, head.resources, head.enqueuedAt, now)
		granted = append(granted, head)
		l.queue = l.queue[1:]
	}
	return granted
}

func (l *Ledger) enqueueLocked(w *waiter) {
	l.queue = append(l.queue, w)
	sort.SliceStable(l.queue, func(i, j int) bool {
		a, b := l.queue[i], l.queue[j]
		if !a.enqueuedAt.Equal(b.enqueuedAt) {
			return a.enqueuedAt.Before(b.enqueuedAt)
		}
		if a.priority.Rank() != b.priority.Rank() {
			return a.priority.Rank() > b.priority.Rank()
		}
		return a.seq < b.seq
	})
}

func (l *Ledger) removeWaiterLocked(target *waiter) {
	for i, w := range l.queue {
		if w == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

func (l *Ledger) nextSeq() int64 {
	l.seq++
	return l.seq
}

func (l *Ledger) publish(ctx context.Context, subjectID string, resources v1.Resources, reserved bool) {
	if l.stream == nil {
		return
	}
	l.stream.Publish(ctx, events.Event{
		Kind:      events.KindReservationChanged,
		SubjectID: subjectID,
		Actor:     "reservation-ledger",
		At:        l.clock(),
		Reservation: &events.ReservationChange{
			Resources: resources,
			Reserved:  reserved,
		},
	})
}
