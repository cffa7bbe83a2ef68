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

// Package key implements the Key value type: an ordered tuple of
// short byte strings, typically (file-id, revision-id) or just
// (revision-id,), totally ordered lexicographically, with no identity
// beyond its elements.
package key

import "strings"

// Key is an ordered tuple of elements. Two Keys are equal iff they
// have the same elements in the same order.
type Key []string

// Less gives Keys their total lexicographic order: shorter tuples that
// are a prefix of a longer one sort first, then elements are compared
// left to right.
func (k Key) Less(other Key) bool {
	for i := 0; i < len(k) && i < len(other); i++ {
		if k[i] != other[i] {
			return k[i] < other[i]
		}
	}
	return len(k) < len(other)
}

// Equal reports whether k and other have identical elements.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders a Key for logging and index serialisation: elements
// joined by NUL, the separator on-disk B-tree entries use between
// key elements and value ("key_elements ... \x00 value").
func (k Key) String() string {
	return strings.Join(k, "\x00")
}

// Clone returns an independent copy of k.
func (k Key) Clone() Key {
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// Tuple is an ordered list of Keys, typically a record's parents.
type Tuple []Key

// Contains reports whether needle appears in t.
func (t Tuple) Contains(needle Key) bool {
	for _, k := range t {
		if k.Equal(needle) {
			return true
		}
	}
	return false
}

// Sortable adapts a []Key for sort.Sort using Key.Less.
type Sortable []Key

func (s Sortable) Len() int           { return len(s) }
func (s Sortable) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s Sortable) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
