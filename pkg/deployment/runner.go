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

package deployment

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/operator/logging"
	"github.com/entangleops/qam/pkg/providers/backend"
	"github.com/entangleops/qam/pkg/utils/pretty"
)

const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultExecuteTimeout = 5 * time.Minute
)

// RunOutcome is what one backend run produced.
type RunOutcome struct {
	Backend   v1.BackendMetadata
	Results   *v1.ExecutionResults
	QueueTime time.Duration
	RunTime   time.Duration
}

// Runner drives a circuit through the backend contract: select, submit,
// poll to completion. A submit or run failure is retried once on the next
// backend in the fallback chain, excluding the failed kind.
type Runner struct {
	selector     *backend.Selector
	pollInterval time.Duration
	timeout      time.Duration
	clock        func() time.Time
}

type RunnerOption func(*Runner)

func WithPollInterval(interval time.Duration) RunnerOption {
	return func(r *Runner) { r.pollInterval = interval }
}

func WithExecuteTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = timeout }
}

func WithRunnerClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

func NewRunner(selector *backend.Selector, opts ...RunnerOption) *Runner {
	r := &Runner{
		selector:     selector,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultExecuteTimeout,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the circuit on the best available backend. The error is
// ErrBackendTimeout when the deadline elapsed, the context error on
// cancellation, and the last driver error otherwise.
func (r *Runner) Run(ctx context.Context, circuit backend.Circuit, config v1.ExecutionConfig, preferences, fallback []v1.BackendKind) (RunOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logging.FromContext(ctx).Debugf("selecting backend, preferences [%s], fallback [%s]",
		pretty.Slice(preferences, 3), pretty.Slice(fallback, 3))

	var exclude []v1.BackendKind
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		driver, err := r.selector.Select(preferences, fallback, exclude...)
		if err != nil {
			if lastErr != nil {
				return RunOutcome{}, lastErr
			}
			return RunOutcome{}, err
		}
		meta := driver.Describe()
		outcome, err := r.runOn(ctx, driver, circuit, config)
		if err == nil {
			outcome.Backend = meta
			return outcome, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, backend.ErrBackendTimeout) {
			return RunOutcome{}, err
		}
		logging.FromContext(ctx).With("backend", meta.Kind).
			Warnf("backend run failed, trying next in chain: %v", err)
		exclude = append(exclude, meta.Kind)
		lastErr = err
	}
	return RunOutcome{}, lastErr
}

func (r *Runner) runOn(ctx context.Context, driver backend.Driver, circuit backend.Circuit, config v1.ExecutionConfig) (RunOutcome, error) {
	submittedAt := r.clock()
	handle, err := driver.Submit(ctx, circuit, config.Shots, backend.SubmitOptions{
		OptimizationLevel: config.OptimizationLevel,
		ErrorMitigation:   config.ErrorMitigation,
		Seed:              config.Seed,
	})
	if err != nil {
		return RunOutcome{}, fmt.Errorf("submitting circuit, %w", err)
	}

	var startedAt time.Time
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		result, err := driver.Poll(ctx, handle)
		if err != nil {
			return RunOutcome{}, fmt.Errorf("polling execution, %w", err)
		}
		switch result.Status {
		case backend.PollRunning:
			if startedAt.IsZero() {
				startedAt = r.clock()
			}
		case backend.PollDone:
			if result.Results == nil {
				return RunOutcome{}, backend.ErrBackendMalformedResult
			}
			done := r.clock()
			if startedAt.IsZero() {
				startedAt = done
			}
			return RunOutcome{
				Results:   result.Results,
				QueueTime: startedAt.Sub(submittedAt),
				RunTime:   done.Sub(startedAt),
			}, nil
		case backend.PollFailed:
			return RunOutcome{}, fmt.Errorf("backend reported failure: %s", result.Reason)
		}

		select {
		case <-ctx.Done():
			// best effort, the driver may already have finished
			_ = driver.Cancel(context.WithoutCancel(ctx), handle)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return RunOutcome{}, backend.ErrBackendTimeout
			}
			return RunOutcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
