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

package policy

import (
	"context"
	"strings"
	"sync"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// Screener is the external sanctions-screening contract.
type Screener interface {
	Screen(ctx context.Context, actor v1.Actor) (v1.ScreeningResult, error)
}

// SanctionedEntity is one consolidated-list entry for the in-process
// screener.
type SanctionedEntity struct {
	ID string
	// Aliases match actor ids case-insensitively as substrings
	Aliases []string
	// Jurisdictions the listing applies to; empty applies everywhere
	Jurisdictions []string
	// Blocked entities deny outright; unblocked listings surface as
	// potential or confirmed matches for manual review
	Blocked   bool
	Confirmed bool
}

// ListScreener screens against a static consolidated list. Production
// deployments put a real screening service behind the Screener contract;
// this implementation backs tests and air-gapped installs.
type ListScreener struct {
	mu      sync.RWMutex
	entries []SanctionedEntity
}

func NewListScreener(entries ...SanctionedEntity) *ListScreener {
	return &ListScreener{entries: entries}
}

// Add appends entries to the list.
func (s *ListScreener) Add(entries ...SanctionedEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

func (s *ListScreener) Screen(_ context.Context, actor v1.Actor) (v1.ScreeningResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := v1.ScreeningResult{Status: v1.ScreeningClear}
	for _, entry := range s.entries {
		if !entryMatches(entry, actor) {
			continue
		}
		result.Matches = append(result.Matches, entry.ID)
		status := v1.ScreeningPotentialMatch
		if entry.Confirmed {
			status = v1.ScreeningConfirmedMatch
		}
		if entry.Blocked {
			status = v1.ScreeningBlocked
		}
		if rankScreening(status) > rankScreening(result.Status) {
			result.Status = status
		}
	}
	return result, nil
}

func entryMatches(entry SanctionedEntity, actor v1.Actor) bool {
	if len(entry.Jurisdictions) > 0 {
		applies := false
		for _, j := range entry.Jurisdictions {
			if strings.EqualFold(j, actor.Jurisdiction) {
				applies = true
				break
			}
		}
		if !applies {
			return false
		}
	}
	if strings.EqualFold(entry.ID, actor.ID) {
		return true
	}
	lowered := strings.ToLower(actor.ID)
	for _, alias := range entry.Aliases {
		if strings.Contains(lowered, strings.ToLower(alias)) {
			return true
		}
	}
	return false
}

func rankScreening(s v1.ScreeningStatus) int {
	switch s {
	case v1.ScreeningBlocked:
		return 3
	case v1.ScreeningConfirmedMatch:
		return 2
	case v1.ScreeningPotentialMatch:
		return 1
	default:
		return 0
	}
}
