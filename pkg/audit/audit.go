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

// Package audit implements the append-only receipt log. Every
// state-changing event appends a content-hashed entry to its subject's
// chain; corrupting any entry breaks verification of every later one.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/entangleops/qam/pkg/operator/logging"
)

var (
	// ErrHashChainBroken is fatal for the subject: further writes are
	// refused until the chain is repaired out of band.
	ErrHashChainBroken = errors.New("hash chain broken")
	// ErrSubjectHalted is returned on writes to a subject whose chain
	// failed verification.
	ErrSubjectHalted = errors.New("subject halted after chain break")
)

// Signer is the external signing contract. Implementations wrap a key
// vault; the log only ever signs the content hash.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Verify(data []byte, signature []byte) bool
}

// Entry is one receipt. Fields marshal in the fixed canonical order
// required by the receipt format.
type Entry struct {
	SubjectID   string            `json:"subjectId"`
	Seq         int               `json:"seq"`
	TS          time.Time         `json:"ts"`
	Event       string            `json:"event"`
	Actor       string            `json:"actor"`
	Details     map[string]string `json:"details"`
	PrevHash    string            `json:"prevHash"`
	ContentHash string            `json:"contentHash"`
	Signature   []byte            `json:"signature,omitempty"`
}

// canonical serializes the hashed portion of the entry with fields in fixed
// order and details keys sorted. ContentHash and Signature are excluded
// since they derive from this serialization.
func (e Entry) canonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "subjectId", e.SubjectID)
	buf.WriteByte(',')
	fmt.Fprintf(&buf, "%q:%d", "seq", e.Seq)
	buf.WriteByte(',')
	writeField(&buf, "ts", e.TS.UTC().Format(time.RFC3339Nano))
	buf.WriteByte(',')
	writeField(&buf, "event", e.Event)
	buf.WriteByte(',')
	writeField(&buf, "actor", e.Actor)
	buf.WriteByte(',')
	buf.WriteString(`"details":{`)
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeField(&buf, k, e.Details[k])
	}
	buf.WriteByte('}')
	buf.WriteByte(',')
	writeField(&buf, "prevHash", e.PrevHash)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, key, value string) {
	kb, _ := json.Marshal(key)
	vb, _ := json.Marshal(value)
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
}

// hashEntry computes H(prevHash || canonicalSerialize(entry)).
func hashEntry(e Entry) string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(e.canonical())
	return hex.EncodeToString(h.Sum(nil))
}

// Log keeps one hash chain per subject id. Entries per subject are strictly
// totally ordered; across subjects there is no ordering.
type Log struct {
	mu     sync.RWMutex
	chains map[string][]Entry
	halted map[string]bool
	signer Signer
	clock  func() time.Time
}

type Option func(*Log)

// WithSigner enables signing of every content hash.
func WithSigner(s Signer) Option {
	return func(l *Log) { l.signer = s }
}

// WithClock overrides the timestamp source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) { l.clock = clock }
}

func NewLog(opts ...Option) *Log {
	l := &Log{
		chains: map[string][]Entry{},
		halted: map[string]bool{},
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds an entry to the subject's chain and returns it. The previous
// hash is the last entry's content hash, or empty for the genesis entry.
func (l *Log) Append(ctx context.Context, subjectID, event, actor string, details map[string]string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted[subjectID] {
		return Entry{}, fmt.Errorf("appending %q to subject %s, %w", event, subjectID, ErrSubjectHalted)
	}
	chain := l.chains[subjectID]
	prevHash := ""
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].ContentHash
	}
	if details == nil {
		details = map[string]string{}
	}
	entry := Entry{
		SubjectID: subjectID,
		Seq:       len(chain),
		TS:        l.clock().UTC(),
		Event:     event,
		Actor:     actor,
		Details:   details,
		PrevHash:  prevHash,
	}
	entry.ContentHash = hashEntry(entry)
	if l.signer != nil {
		sig, err := l.signer.Sign([]byte(entry.ContentHash))
		if err != nil {
			return Entry{}, fmt.Errorf("signing receipt for subject %s, %w", subjectID, err)
		}
		entry.Signature = sig
	}
	l.chains[subjectID] = append(chain, entry)
	logging.FromContext(ctx).With("subject", subjectID, "seq", entry.Seq, "event", event).Debugf("appended receipt")
	return entry, nil
}

// Subjects returns every subject id with a chain, in no particular
// order.
func (l *Log) Subjects() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.Keys(l.chains)
}

// Entries returns a copy of the subject's chain.
func (l *Log) Entries(subjectID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chain := l.chains[subjectID]
	out := make([]Entry, len(chain))
	copy(out, chain)
	return out
}

// Verify walks the subject's chain and checks every link. On a break the
// subject is halted for further writes and ErrHashChainBroken is returned.
func (l *Log) Verify(subjectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	chain := l.chains[subjectID]
	prevHash := ""
	for i, entry := range chain {
		if entry.PrevHash != prevHash {
			l.halted[subjectID] = true
			return fmt.Errorf("subject %s entry %d prev-hash mismatch, %w", subjectID, i, ErrHashChainBroken)
		}
		if hashEntry(entry) != entry.ContentHash {
			l.halted[subjectID] = true
			return fmt.Errorf("subject %s entry %d content-hash mismatch, %w", subjectID, i, ErrHashChainBroken)
		}
		if l.signer != nil && len(entry.Signature) > 0 && !l.signer.Verify([]byte(entry.ContentHash), entry.Signature) {
			l.halted[subjectID] = true
			return fmt.Errorf("subject %s entry %d signature invalid, %w", subjectID, i, ErrHashChainBroken)
		}
		prevHash = entry.ContentHash
	}
	return nil
}
