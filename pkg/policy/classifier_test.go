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

package policy_test

import (
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/policy"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func template(families ...v1.Algorithm) *v1.Template {
	return &v1.Template{
		ID:                   "tpl-1",
		Version:              "1.0.0",
		Category:             v1.CategoryOptimization,
		Algorithms:           families,
		ExportClassification: v1.ExportControlLevelUnrestricted,
		ResourceEstimate:     v1.ResourceEstimate{Qubits: 10, Depth: 50},
	}
}

var _ = Describe("Classifier", func() {
	var (
		rules      *policy.RuleStore
		classifier *policy.Classifier
	)

	BeforeEach(func() {
		rules = policy.NewRuleStore()
		classifier = policy.NewClassifier(rules, time.Hour)
	})

	It("should classify a small variational workload as unrestricted", func() {
		c, err := classifier.Classify(ctx, template(v1.Algorithm{Name: "VQE", Family: v1.FamilyVariational}))
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Level).To(Equal(v1.ExportControlLevelUnrestricted))
	})

	It("should classify cryptographic-scale factoring as ITAR controlled", func() {
		c, err := classifier.Classify(ctx, template(v1.Algorithm{
			Name:      "shor",
			Family:    v1.FamilyFactoring,
			Factoring: &v1.FactoringSpec{ModulusBits: 2048},
		}))
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Level).To(Equal(v1.ExportControlLevelITARControlled))
		Expect(c.Category).To(Equal("cryptanalysis"))
		Expect(c.ControlCodes).To(ContainElement("USML-XIII(b)"))
	})

	It("should classify small-modulus factoring as EAR controlled", func() {
		c, err := classifier.Classify(ctx, template(v1.Algorithm{
			Name:      "shor",
			Family:    v1.FamilyFactoring,
			Factoring: &v1.FactoringSpec{ModulusBits: 512},
		}))
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Level).To(Equal(v1.ExportControlLevelEARControlled))
	})

	It("should classify search algorithms as dual use", func() {
		c, err := classifier.Classify(ctx, template(v1.Algorithm{
			Name:   "grover",
			Family: v1.FamilySearch,
			Search: &v1.SearchSpec{OracleDepth: 8, Iterations: 100},
		}))
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Level).To(Equal(v1.ExportControlLevelDualUse))
	})

	It("should escalate large resource footprints to restricted", func() {
		t := template(v1.Algorithm{Name: "VQE", Family: v1.FamilyVariational})
		t.ResourceEstimate.Qubits = 150
		c, err := classifier.Classify(ctx, t)
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Level).To(Equal(v1.ExportControlLevelRestricted))
		Expect(c.ControlCodes).To(ContainElement("ECCN-3A901"))
	})

	It("should honor a stricter author-declared classification", func() {
		t := template(v1.Algorithm{Name: "VQE", Family: v1.FamilyVariational})
		t.ExportClassification = v1.ExportControlLevelRestricted
		c, err := classifier.Classify(ctx, t)
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Level).To(Equal(v1.ExportControlLevelRestricted))
	})

	It("should classify deterministically for a fixed rule snapshot", func() {
		t := template(v1.Algorithm{Name: "grover", Family: v1.FamilySearch})
		first, err := classifier.Classify(ctx, t)
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 10; i++ {
			again, cerr := classifier.Classify(ctx, t)
			Expect(cerr).ToNot(HaveOccurred())
			Expect(again).To(Equal(first))
		}
	})

	It("should change the snapshot hash on a rule update", func() {
		before := rules.SnapshotHash()
		rules.Upsert(v1.ExportControlRule{Jurisdiction: "CN", Items: []v1.ControlListItem{{
			Code:   "ECCN-4A090",
			Levels: []v1.ExportControlLevel{v1.ExportControlLevelDualUse},
		}}})
		Expect(rules.SnapshotHash()).ToNot(Equal(before))
	})
})
