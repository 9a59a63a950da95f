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
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/operator/logging"
)

const (
	// DefaultClassificationTTL matches the 90-day review cycle of the
	// control lists.
	DefaultClassificationTTL = 90 * 24 * time.Hour
)

// ClassifyService is the external classification contract. The built-in
// Classifier satisfies it with deterministic in-process rules.
type ClassifyService interface {
	Classify(ctx context.Context, t *v1.Template) (v1.Classification, error)
}

// Classifier derives the export-control classification of a template from
// its algorithm families and resource requirements. Classification is
// deterministic: the same template and rule snapshot always produce the
// same result. Results are cached keyed by (id, version, snapshot) so a
// rule update invalidates every cached classification.
type Classifier struct {
	rules *RuleStore
	cache *cache.Cache
}

func NewClassifier(rules *RuleStore, ttl time.Duration) *Classifier {
	if ttl <= 0 {
		ttl = DefaultClassificationTTL
	}
	return &Classifier{
		rules: rules,
		cache: cache.New(ttl, time.Hour),
	}
}

func (c *Classifier) Classify(ctx context.Context, t *v1.Template) (v1.Classification, error) {
	key := fmt.Sprintf("%s:%s:%d", t.ID, t.Version, c.rules.SnapshotHash())
	if cached, ok := c.cache.Get(key); ok {
		return cached.(v1.Classification), nil
	}
	classification := classify(t)
	c.cache.SetDefault(key, classification)
	logging.FromContext(ctx).With(
		"template", t.ID,
		"level", classification.Level,
		"category", classification.Category,
	).Debugf("classified template")
	return classification, nil
}

// classify applies the deterministic mapping rules. Algorithm families are
// considered strictest-first, then resource scale, then the template
// author's declared level; the strictest wins.
func classify(t *v1.Template) v1.Classification {
	level := v1.ExportControlLevelUnrestricted
	category := "quantum-computing"
	var codes []string
	confidence := 0.85

	for _, alg := range t.Algorithms {
		switch alg.Family {
		case v1.FamilyFactoring:
			// integer factoring at cryptographic scale is munitions-list
			// territory
			if alg.Factoring != nil && alg.Factoring.ModulusBits >= 2048 {
				level = level.Stricter(v1.ExportControlLevelITARControlled)
				codes = append(codes, "USML-XIII(b)")
			} else {
				level = level.Stricter(v1.ExportControlLevelEARControlled)
				codes = append(codes, "ECCN-5A002.a")
			}
			category = "cryptanalysis"
			confidence = 0.99
		case v1.FamilySearch:
			level = level.Stricter(v1.ExportControlLevelDualUse)
			codes = append(codes, "ECCN-4E001")
		case v1.FamilyVariational, v1.FamilySampling, v1.FamilyAmplitudeEstimation:
			if t.ResourceEstimate.Qubits > 20 {
				level = level.Stricter(v1.ExportControlLevelDualUse)
			}
		}
	}
	if t.Category == v1.CategoryCryptography {
		level = level.Stricter(v1.ExportControlLevelEARControlled)
		category = "cryptanalysis"
		confidence = 0.99
	}
	if t.ResourceEstimate.Qubits > 100 || t.ResourceEstimate.Depth > 500 {
		level = level.Stricter(v1.ExportControlLevelRestricted)
		codes = append(codes, "ECCN-3A901")
	}
	level = level.Stricter(t.ExportClassification)

	return v1.Classification{
		Level:        level,
		Category:     category,
		ControlCodes: lo.Uniq(codes),
		Confidence:   confidence,
	}
}
