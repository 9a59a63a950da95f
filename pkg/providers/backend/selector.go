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

package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

const (
	// minAvailability disqualifies drivers reporting worse availability.
	minAvailability = 0.5
)

// Selector picks a driver for an execution from the deployment's
// preference list, restricted to the SLA fallback chain. Among candidates
// of equally preferred kinds it prefers lower cost per shot, then lower
// expected latency, then the earlier element of the preference list.
type Selector struct {
	mu      sync.RWMutex
	drivers []Driver
}

func NewSelector(drivers ...Driver) *Selector {
	return &Selector{drivers: drivers}
}

// Register adds a driver to the pool.
func (s *Selector) Register(d Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers = append(s.drivers, d)
}

// Select returns the best driver. preferences orders the tenant's desired
// backend kinds; fallback is the SLA requirement's permitted chain;
// exclude removes kinds already tried this execution.
func (s *Selector) Select(preferences, fallback []v1.BackendKind, exclude ...v1.BackendKind) (Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// the preference list filtered to the fallback chain decides kind
	// order; an empty preference list falls back to the chain itself
	order := lo.Filter(preferences, func(kind v1.BackendKind, _ int) bool {
		return lo.Contains(fallback, kind)
	})
	if len(order) == 0 {
		order = fallback
	}
	order = lo.Filter(order, func(kind v1.BackendKind, _ int) bool {
		return !lo.Contains(exclude, kind)
	})

	type candidate struct {
		driver   Driver
		meta     v1.BackendMetadata
		prefRank int
	}
	var candidates []candidate
	for _, d := range s.drivers {
		meta := d.Describe()
		rank := lo.IndexOf(order, meta.Kind)
		if rank < 0 || meta.Availability < minAvailability {
			continue
		}
		candidates = append(candidates, candidate{driver: d, meta: meta, prefRank: rank})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no driver satisfies preferences %v within chain %v, %w", preferences, fallback, ErrBackendUnavailable)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.meta.CostPerShot != b.meta.CostPerShot {
			return a.meta.CostPerShot < b.meta.CostPerShot
		}
		if a.meta.ExpectedLatency != b.meta.ExpectedLatency {
			return a.meta.ExpectedLatency < b.meta.ExpectedLatency
		}
		return a.prefRank < b.prefRank
	})
	return candidates[0].driver, nil
}

// Kinds returns the kinds of all registered drivers.
func (s *Selector) Kinds() []v1.BackendKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Uniq(lo.Map(s.drivers, func(d Driver, _ int) v1.BackendKind {
		return d.Describe().Kind
	}))
}
