// Copyright 2026 The corestore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package btreeindex

import (
	"sort"

	"github.com/vcscore/corestore/key"
)

// MissingParents tracks, across a stream of Builder.Add calls, which
// keys have been referenced from some entry's reference lists but have
// not themselves been added as a primary key yet. The set shrinks as
// the referenced key eventually arrives; ghosts (references that are
// never satisfied within this build) remain in the set when the build
// finishes, and callers decide whether that is an error.
type MissingParents struct {
	present   map[string]bool
	missing   map[string]key.Key
	insertRow int
	firstSeen map[string]int
}

// NewMissingParents returns an empty tracker.
func NewMissingParents() *MissingParents {
	return &MissingParents{
		present:   map[string]bool{},
		missing:   map[string]key.Key{},
		firstSeen: map[string]int{},
	}
}

// observe updates the tracker for one added entry: e.Key is now
// present, and every key named in e.RefLists that is not yet present
// is recorded as missing.
func (m *MissingParents) observe(e Entry) {
	m.insertRow++
	ks := e.Key.String()
	m.present[ks] = true
	delete(m.missing, ks)
	for _, rl := range e.RefLists {
		for _, ref := range rl {
			rks := ref.String()
			if m.present[rks] {
				continue
			}
			if _, ok := m.firstSeen[rks]; !ok {
				m.firstSeen[rks] = m.insertRow
			}
			m.missing[rks] = ref
		}
	}
}

// Missing returns the keys currently referenced but not yet added, in
// the order they were first referenced.
func (m *MissingParents) Missing() []key.Key {
	out := make([]key.Key, 0, len(m.missing))
	for ks := range m.missing {
		out = append(out, m.missing[ks])
	}
	sort.Slice(out, func(i, j int) bool {
		return m.firstSeen[out[i].String()] < m.firstSeen[out[j].String()]
	})
	return out
}

// Len reports how many keys are currently outstanding.
func (m *MissingParents) Len() int {
	return len(m.missing)
}
