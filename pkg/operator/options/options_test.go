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

package options_test

import (
	"os"
	"path/filepath"
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/operator/options"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Options", func() {
	It("should apply defaults when nothing is passed", func() {
		opts := options.New()
		Expect(opts.Parse([]string{})).To(Succeed())
		Expect(opts.Validate()).To(Succeed())

		Expect(opts.MetricsPort).To(Equal(8080))
		Expect(opts.LogLevel).To(Equal("info"))
		Expect(opts.MonitoringInterval).To(Equal(30 * time.Second))
		Expect(opts.ApprovalStageTimeout).To(Equal(24 * time.Hour))
		Expect(opts.ApprovalTotalTimeout).To(Equal(72 * time.Hour))
		Expect(opts.OptimizerAlgorithm).To(Equal("LINUCB"))
		Expect(opts.OptimizerMinSamples).To(Equal(10))
		Expect(opts.OptimizerCooldown).To(Equal(5 * time.Minute))
		Expect(opts.Limits().QuantumMinutes).To(Equal(1000.0))
	})

	It("should expose the optimizer settings as a profile", func() {
		opts := options.New()
		Expect(opts.Parse([]string{
			"--optimizer-algorithm", "UCB1",
			"--optimizer-arm-count", "25",
			"--optimizer-learning-rate", "0.2",
			"--optimizer-min-samples", "7",
			"--optimizer-cooldown", "90s",
		})).To(Succeed())
		Expect(opts.Validate()).To(Succeed())

		profile := opts.OptimizerDefaults()
		Expect(profile.Algorithm).To(Equal(v1.AlgorithmUCB1))
		Expect(profile.ArmCount).To(Equal(25))
		Expect(profile.LearningRate).To(Equal(0.2))
		Expect(profile.MinSamples).To(Equal(7))
		Expect(profile.Cooldown).To(Equal(90 * time.Second))
		Expect(profile.MaxParameterChange).To(Equal(v1.DefaultMaxParameterChange))
	})

	It("should let flags override defaults", func() {
		opts := options.New()
		Expect(opts.Parse([]string{
			"--metrics-port", "9090",
			"--log-level", "debug",
			"--limit-quantum-minutes", "50",
		})).To(Succeed())
		Expect(opts.Validate()).To(Succeed())

		Expect(opts.MetricsPort).To(Equal(9090))
		Expect(opts.LogLevel).To(Equal("debug"))
		Expect(opts.Limits().QuantumMinutes).To(Equal(50.0))
	})

	It("should load the config file and keep flag precedence", func() {
		path := filepath.Join(GinkgoT().TempDir(), "qam.toml")
		Expect(os.WriteFile(path, []byte(
			"metricsPort = 9999\nlogLevel = \"warn\"\ncomplianceWindowDays = 14\n",
		), 0o600)).To(Succeed())

		previous := os.Args
		DeferCleanup(func() { os.Args = previous })
		os.Args = []string{"qam", "--config-file", path, "--metrics-port", "7777"}

		opts := options.New().MustParse()
		Expect(opts.MetricsPort).To(Equal(7777))
		Expect(opts.LogLevel).To(Equal("warn"))
		Expect(opts.ComplianceWindowDays).To(Equal(14))
	})

	Context("Validation", func() {
		parse := func(args ...string) error {
			opts := options.New()
			ExpectWithOffset(1, opts.Parse(args)).To(Succeed())
			return opts.Validate()
		}

		It("should reject an out-of-range metrics port", func() {
			Expect(parse("--metrics-port", "0")).To(HaveOccurred())
			Expect(parse("--metrics-port", "70000")).To(HaveOccurred())
		})
		It("should reject an unknown log level", func() {
			Expect(parse("--log-level", "verbose")).To(HaveOccurred())
		})
		It("should reject an unknown optimizer algorithm", func() {
			Expect(parse("--optimizer-algorithm", "ANNEALING")).To(HaveOccurred())
		})
		It("should reject an arm count outside the supported range", func() {
			Expect(parse("--optimizer-arm-count", "1")).To(HaveOccurred())
			Expect(parse("--optimizer-arm-count", "5000")).To(HaveOccurred())
		})
		It("should reject out-of-range optimizer tuning", func() {
			Expect(parse("--optimizer-alpha", "0")).To(HaveOccurred())
			Expect(parse("--optimizer-max-parameter-change", "1.5")).To(HaveOccurred())
			Expect(parse("--optimizer-learning-rate", "0")).To(HaveOccurred())
			Expect(parse("--optimizer-convergence-window", "0")).To(HaveOccurred())
			Expect(parse("--optimizer-min-samples", "0")).To(HaveOccurred())
			Expect(parse("--optimizer-improvement-threshold", "0")).To(HaveOccurred())
			Expect(parse("--optimizer-cooldown", "0s")).To(HaveOccurred())
		})
		It("should reject approval timeouts with total below stage", func() {
			Expect(parse("--approval-stage-timeout", "48h", "--approval-total-timeout", "24h")).To(HaveOccurred())
		})
		It("should reject non-positive resource limits", func() {
			Expect(parse("--limit-mem-gb", "0")).To(HaveOccurred())
		})
		It("should aggregate every failure", func() {
			err := parse("--metrics-port", "0", "--log-level", "verbose", "--optimizer-arm-count", "1")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("metrics-port"))
			Expect(err.Error()).To(ContainSubstring("log-level"))
			Expect(err.Error()).To(ContainSubstring("optimizer-arm-count"))
		})
	})
})
