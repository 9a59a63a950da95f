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

package registry_test

import (
	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/registry"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func validTemplate(id string) v1.Template {
	return v1.Template{
		ID:          id,
		Name:        "Portfolio QAOA",
		Version:     "1.2.0",
		Description: "QAOA portfolio optimization over a risk model",
		Category:    v1.CategoryFinance,
		Status:      v1.TemplateStatusAvailable,
		Algorithms: []v1.Algorithm{{
			Name:        "QAOA",
			Family:      v1.FamilyVariational,
			Variational: &v1.VariationalSpec{Ansatz: "hardware-efficient", Layers: 3},
		}},
		ParameterSchema: v1.ParameterSchema{Parameters: map[string]v1.ParameterSpec{
			"shots": {Type: v1.ParameterTypeInteger, Min: lo.ToPtr(1.0), Max: lo.ToPtr(100000.0), Default: lo.ToPtr(v1.IntValue(1024))},
		}},
		SLARequirements: []v1.SLARequirement{{
			Metric:        v1.MetricErrorRate,
			Threshold:     0.05,
			Method:        v1.MethodSampling,
			FallbackChain: []v1.BackendKind{v1.BackendQPU, v1.BackendEmulator},
		}},
		ResourceEstimate: v1.ResourceEstimate{
			Resources: v1.Resources{QuantumMinutes: 5, ClassicalCPU: 2, MemoryGB: 8, StorageGB: 1},
			Qubits:    12,
			Depth:     64,
			GateCount: 900,
		},
		Tags: []string{"finance", "qaoa"},
	}
}

var _ = Describe("Registry", func() {
	var reg *registry.Registry

	BeforeEach(func() {
		reg = registry.New()
	})

	It("should register a valid template and retrieve it", func() {
		Expect(reg.Register(validTemplate("tpl-1"))).To(Succeed())
		got, err := reg.Get("tpl-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Name).To(Equal("Portfolio QAOA"))
		Expect(got.CreatedAt.IsZero()).To(BeFalse())
	})

	It("should reject a duplicate id instead of updating", func() {
		Expect(reg.Register(validTemplate("tpl-1"))).To(Succeed())
		updated := validTemplate("tpl-1")
		updated.Description = "revised"
		Expect(reg.Register(updated)).To(MatchError(registry.ErrTemplateExists))

		got, err := reg.Get("tpl-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Description).To(Equal("QAOA portfolio optimization over a risk model"))
	})

	It("should return copies from Get", func() {
		Expect(reg.Register(validTemplate("tpl-1"))).To(Succeed())
		first, _ := reg.Get("tpl-1")
		first.Name = "mutated"
		second, _ := reg.Get("tpl-1")
		Expect(second.Name).To(Equal("Portfolio QAOA"))
	})

	It("should fail lookup of an unknown id", func() {
		_, err := reg.Get("missing")
		Expect(err).To(MatchError(registry.ErrTemplateNotFound))
	})

	Context("Validation", func() {
		It("should reject a missing id", func() {
			t := validTemplate("")
			Expect(reg.Register(t)).To(MatchError(registry.ErrTemplateInvalid))
		})
		It("should reject loose version strings", func() {
			t := validTemplate("tpl-1")
			t.Version = "v1.2"
			Expect(reg.Register(t)).To(MatchError(registry.ErrTemplateInvalid))
		})
		It("should require at least one SLA requirement", func() {
			t := validTemplate("tpl-1")
			t.SLARequirements = nil
			Expect(reg.Register(t)).To(MatchError(registry.ErrTemplateInvalid))
		})
		It("should reject an empty fallback chain", func() {
			t := validTemplate("tpl-1")
			t.SLARequirements[0].FallbackChain = nil
			Expect(reg.Register(t)).To(MatchError(registry.ErrTemplateInvalid))
		})
		It("should reject a parameter without a type", func() {
			t := validTemplate("tpl-1")
			t.ParameterSchema.Parameters["broken"] = v1.ParameterSpec{Required: true}
			Expect(reg.Register(t)).To(MatchError(registry.ErrTemplateInvalid))
		})
		It("should reject min above max", func() {
			t := validTemplate("tpl-1")
			t.ParameterSchema.Parameters["shots"] = v1.ParameterSpec{
				Type: v1.ParameterTypeInteger,
				Min:  lo.ToPtr(10.0),
				Max:  lo.ToPtr(1.0),
			}
			Expect(reg.Register(t)).To(MatchError(registry.ErrTemplateInvalid))
		})
		It("should aggregate every validation failure", func() {
			t := validTemplate("")
			t.Version = "not-semver"
			t.SLARequirements = nil
			err := reg.Register(t)
			Expect(err).To(MatchError(registry.ErrTemplateInvalid))
			Expect(err.Error()).To(ContainSubstring("id is required"))
			Expect(err.Error()).To(ContainSubstring("not valid semver"))
			Expect(err.Error()).To(ContainSubstring("SLA requirement is required"))
		})
	})

	Context("Listing", func() {
		BeforeEach(func() {
			finance := validTemplate("tpl-fin")
			chem := validTemplate("tpl-chem")
			chem.Name = "VQE Molecule Ground State"
			chem.Category = v1.CategoryChemistry
			chem.Status = v1.TemplateStatusExperimental
			chem.Tags = []string{"chemistry", "vqe"}
			Expect(reg.Register(finance)).To(Succeed())
			Expect(reg.Register(chem)).To(Succeed())
		})
		It("should list by category", func() {
			Expect(reg.ListByCategory(v1.CategoryChemistry)).To(HaveLen(1))
			Expect(reg.ListByCategory(v1.CategoryFinance)).To(HaveLen(1))
			Expect(reg.ListByCategory(v1.CategoryCryptography)).To(BeEmpty())
		})
		It("should list by status", func() {
			Expect(reg.ListByStatus(v1.TemplateStatusAvailable)).To(HaveLen(1))
			Expect(reg.ListByStatus(v1.TemplateStatusExperimental)).To(HaveLen(1))
		})
		It("should search case-insensitively across name, description and tags", func() {
			Expect(reg.Search("PORTFOLIO")).To(HaveLen(1))
			Expect(reg.Search("risk model")).To(HaveLen(1))
			Expect(reg.Search("vqe")).To(HaveLen(1))
			Expect(reg.Search("annealing")).To(BeEmpty())
		})
	})
})
