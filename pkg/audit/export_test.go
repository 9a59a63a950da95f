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

package audit

// Corrupt overwrites an entry in place so tests can prove that
// verification catches tampering.
func (l *Log) Corrupt(subjectID string, seq int, event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if chain, ok := l.chains[subjectID]; ok && seq < len(chain) {
		chain[seq].Event = event
	}
}
