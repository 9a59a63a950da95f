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

package optimizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/events"
)

// DefaultIdleTTL is how long an untouched learner stays resident before
// eviction; a fresh learner is built on next use.
const DefaultIdleTTL = 24 * time.Hour

// Store hands out the singleton Optimizer for each (template, tenant)
// pair, evicting idle ones.
type Store struct {
	mu       sync.Mutex
	cache    *cache.Cache
	stream   *events.Stream
	defaults v1.OptimizerProfile
	opts     []OptimizerOption
}

type StoreOption func(*Store)

// WithProfileDefaults sets the operator-level profile whose fields fill
// any a template profile leaves zero.
func WithProfileDefaults(defaults v1.OptimizerProfile) StoreOption {
	return func(s *Store) { s.defaults = defaults }
}

// WithOptimizerOptions forwards construction options to every optimizer
// the store builds.
func WithOptimizerOptions(opts ...OptimizerOption) StoreOption {
	return func(s *Store) { s.opts = opts }
}

func NewStore(stream *events.Stream, idleTTL time.Duration, opts ...StoreOption) *Store {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	s := &Store{
		cache:  cache.New(idleTTL, time.Hour),
		stream: stream,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func storeKey(templateID, tenantID string) string {
	return fmt.Sprintf("%s/%s", templateID, tenantID)
}

// GetOrCreate returns the live optimizer for the pair, constructing one
// from the template's profile and schema on first use. Each access
// refreshes the idle TTL.
func (s *Store) GetOrCreate(templateID, tenantID string, profile v1.OptimizerProfile, schema v1.ParameterSchema, parameters map[string]v1.ParameterValue) (*Optimizer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(templateID, tenantID)
	if cached, ok := s.cache.Get(key); ok {
		opt := cached.(*Optimizer)
		s.cache.SetDefault(key, opt)
		return opt, nil
	}
	opt, err := New(templateID, tenantID, profile.WithFallback(s.defaults), schema, parameters, s.stream, s.opts...)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, opt)
	return opt, nil
}

// Get returns the optimizer if resident.
func (s *Store) Get(templateID, tenantID string) (*Optimizer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.cache.Get(storeKey(templateID, tenantID))
	if !ok {
		return nil, false
	}
	return cached.(*Optimizer), true
}
