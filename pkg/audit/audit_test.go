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

package audit_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/entangleops/qam/pkg/audit"
	"github.com/entangleops/qam/pkg/events"
	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

type hmacSigner struct{ key []byte }

func (s hmacSigner) Sign(data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (s hmacSigner) Verify(data, signature []byte) bool {
	expected, _ := s.Sign(data)
	return hmac.Equal(expected, signature)
}

var _ = Describe("Log", func() {
	var log *audit.Log

	BeforeEach(func() {
		log = audit.NewLog()
	})

	It("should chain entries per subject", func() {
		for i := 0; i < 5; i++ {
			_, err := log.Append(ctx, "dep-1", "DeploymentTransitioned", "supervisor", map[string]string{"to": "DEPLOYED"})
			Expect(err).ToNot(HaveOccurred())
		}
		entries := log.Entries("dep-1")
		Expect(entries).To(HaveLen(5))
		Expect(entries[0].PrevHash).To(BeEmpty())
		for i := 1; i < len(entries); i++ {
			Expect(entries[i].PrevHash).To(Equal(entries[i-1].ContentHash))
			Expect(entries[i].Seq).To(Equal(i))
		}
		Expect(log.Verify("dep-1")).To(Succeed())
	})

	It("should keep subjects independent", func() {
		_, err := log.Append(ctx, "dep-1", "e1", "a", nil)
		Expect(err).ToNot(HaveOccurred())
		_, err = log.Append(ctx, "dep-2", "e1", "a", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(log.Entries("dep-1")[0].PrevHash).To(BeEmpty())
		Expect(log.Entries("dep-2")[0].PrevHash).To(BeEmpty())
	})

	It("should detect tampering anywhere in the chain", func() {
		for i := 0; i < 4; i++ {
			_, err := log.Append(ctx, "dep-1", "event", "actor", map[string]string{"n": "x"})
			Expect(err).ToNot(HaveOccurred())
		}
		log.Corrupt("dep-1", 1, "forged")
		Expect(log.Verify("dep-1")).To(MatchError(audit.ErrHashChainBroken))
	})

	It("should halt writes to a broken subject", func() {
		_, err := log.Append(ctx, "dep-1", "event", "actor", nil)
		Expect(err).ToNot(HaveOccurred())
		log.Corrupt("dep-1", 0, "forged")
		Expect(log.Verify("dep-1")).To(MatchError(audit.ErrHashChainBroken))
		_, err = log.Append(ctx, "dep-1", "event", "actor", nil)
		Expect(err).To(MatchError(audit.ErrSubjectHalted))
		// other subjects keep working
		_, err = log.Append(ctx, "dep-2", "event", "actor", nil)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should not depend on details map iteration order", func() {
		details := map[string]string{"b": "2", "a": "1", "c": "3"}
		e1, err := log.Append(ctx, "dep-1", "event", "actor", details)
		Expect(err).ToNot(HaveOccurred())
		other := audit.NewLog(audit.WithClock(func() time.Time { return e1.TS }))
		e2, err := other.Append(ctx, "dep-1", "event", "actor", map[string]string{"c": "3", "a": "1", "b": "2"})
		Expect(err).ToNot(HaveOccurred())
		Expect(e2.ContentHash).To(Equal(e1.ContentHash))
	})

	It("should sign and verify content hashes when a signer is attached", func() {
		signed := audit.NewLog(audit.WithSigner(hmacSigner{key: []byte("test-key")}))
		entry, err := signed.Append(ctx, "dep-1", "event", "actor", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(entry.Signature).ToNot(BeEmpty())
		Expect(signed.Verify("dep-1")).To(Succeed())
	})
})

var _ = Describe("Recorder", func() {
	It("should append a receipt for every published event", func() {
		log := audit.NewLog()
		stream := events.NewStream()
		stream.Subscribe(audit.NewRecorder(log))

		stream.Publish(ctx, events.Event{
			Kind:      events.KindDeploymentTransitioned,
			SubjectID: "dep-1",
			Actor:     "supervisor",
			At:        time.Now(),
			Deployment: &events.DeploymentTransition{
				From: v1.DeploymentStatePending,
				To:   v1.DeploymentStateConfiguring,
			},
		})
		stream.Publish(ctx, events.Event{
			Kind:      events.KindViolationDetected,
			SubjectID: "agr-1",
			Actor:     "sla-engine",
			At:        time.Now(),
			Violation: &v1.Violation{ID: "v-1", Metric: v1.MetricErrorRate, Severity: v1.SeverityHigh},
		})

		Expect(log.Entries("dep-1")).To(HaveLen(1))
		Expect(log.Entries("agr-1")).To(HaveLen(1))
		Expect(log.Verify("dep-1")).To(Succeed())
		Expect(log.Verify("agr-1")).To(Succeed())
	})
})
