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
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// RuleStore holds the export-control rules per destination jurisdiction.
// Every mutation changes the snapshot hash, which keys the classification
// cache so rule updates invalidate stale classifications implicitly.
type RuleStore struct {
	mu       sync.RWMutex
	rules    map[string]v1.ExportControlRule
	snapshot uint64
}

func NewRuleStore(rules ...v1.ExportControlRule) *RuleStore {
	s := &RuleStore{rules: map[string]v1.ExportControlRule{}}
	for _, r := range rules {
		s.rules[r.Jurisdiction] = r
	}
	s.rehash()
	return s
}

// Upsert replaces the rule set for the rule's jurisdiction.
func (s *RuleStore) Upsert(rule v1.ExportControlRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.Jurisdiction] = rule
	s.rehash()
}

// ForJurisdiction returns the rule for the destination, if any.
func (s *RuleStore) ForJurisdiction(destination string) (v1.ExportControlRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[strings.ToUpper(destination)]
	return rule, ok
}

// SnapshotHash identifies the current rule snapshot.
func (s *RuleStore) SnapshotHash() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *RuleStore) rehash() {
	hash, err := hashstructure.Hash(s.rules, hashstructure.FormatV2, &hashstructure.HashOptions{SlicesAsSets: true})
	if err != nil {
		// hashstructure only fails on unsupported types; bump so stale
		// cache entries cannot be served
		s.snapshot++
		return
	}
	s.snapshot = hash
}

// matchingItems returns the control-list items applying to the level.
func matchingItems(rule v1.ExportControlRule, level v1.ExportControlLevel) []v1.ControlListItem {
	return lo.Filter(rule.Items, func(item v1.ControlListItem, _ int) bool {
		return lo.Contains(item.Levels, level)
	})
}

// exemptionApplies reports whether the exemption's criteria match the
// declared end use (case-insensitive keyword or explicit tag match) and the
// actor holds all required documentation.
func exemptionApplies(ex v1.Exemption, endUse string, actor v1.Actor) bool {
	lowered := strings.ToLower(endUse)
	matched := lo.SomeBy(ex.Keywords, func(kw string) bool {
		return strings.Contains(lowered, strings.ToLower(kw))
	})
	if !matched {
		matched = lo.SomeBy(ex.Tags, func(tag string) bool {
			return strings.EqualFold(tag, strings.TrimSpace(endUse))
		})
	}
	if !matched {
		return false
	}
	return lo.EveryBy(ex.RequiredDocs, func(doc string) bool {
		return lo.ContainsBy(actor.Documentation, func(have string) bool {
			return strings.EqualFold(have, doc)
		})
	})
}

// restrictionTriggered reports whether the restriction applies to the
// declared end use.
func restrictionTriggered(r v1.Restriction, endUse string) bool {
	if len(r.EndUseKeywords) == 0 {
		return true
	}
	lowered := strings.ToLower(endUse)
	return lo.SomeBy(r.EndUseKeywords, func(kw string) bool {
		return strings.Contains(lowered, strings.ToLower(kw))
	})
}

func describeRestriction(item v1.ControlListItem, r v1.Restriction) string {
	return fmt.Sprintf("%s: %s (%s)", item.Code, r.Description, r.Type)
}
