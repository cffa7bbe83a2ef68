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

// Combined queries a list of indexes as if their entries were merged.
// Earlier indexes shadow later ones on a duplicate key, so a newer
// pack's index can be placed first to shadow an older pack's stale
// entry.
type Combined []*Index

// Get returns the first index (in list order) that has k, or ok=false
// if none do.
func (c Combined) Get(k key.Key) (value string, refLists []key.Tuple, ok bool, err error) {
	for _, idx := range c {
		v, rl, found, err := idx.Get(k)
		if err != nil {
			return "", nil, false, err
		}
		if found {
			return v, rl, true, nil
		}
	}
	return "", nil, false, nil
}

// IterEntries calls fn once per requested key that is present in any
// index, first-index-wins on duplicates, in ascending key order.
func (c Combined) IterEntries(keys []key.Key, fn func(Entry) bool) error {
	sorted := append([]key.Key{}, keys...)
	sort.Sort(key.Sortable(sorted))
	for _, k := range sorted {
		v, rl, ok, err := c.Get(k)
		if err != nil {
			return err
		}
		if ok {
			if !fn(Entry{Key: k, Value: v, RefLists: rl}) {
				return nil
			}
		}
	}
	return nil
}

// IterAllEntries calls fn once per distinct key across every index,
// first-index-wins on duplicates, in ascending key order.
func (c Combined) IterAllEntries(fn func(Entry) bool) error {
	seen := map[string]bool{}
	merged := map[string]Entry{}
	var order []string
	for _, idx := range c {
		if err := idx.IterAllEntries(func(e Entry) bool {
			ks := e.Key.String()
			if !seen[ks] {
				seen[ks] = true
				merged[ks] = e
				order = append(order, ks)
			}
			return true
		}); err != nil {
			return err
		}
	}
	sort.Strings(order)
	for _, ks := range order {
		if !fn(merged[ks]) {
			return nil
		}
	}
	return nil
}

// IterEntriesPrefix calls fn for every merged entry whose key has one
// of prefixes as a leading subsequence.
func (c Combined) IterEntriesPrefix(prefixes []key.Key, fn func(Entry) bool) error {
	return c.IterAllEntries(func(e Entry) bool {
		for _, p := range prefixes {
			if hasPrefix(e.Key, p) {
				return fn(e)
			}
		}
		return true
	})
}

// KeyCount returns the number of distinct keys across every index,
// after first-index-wins deduplication.
func (c Combined) KeyCount() (int, error) {
	n := 0
	err := c.IterAllEntries(func(Entry) bool { n++; return true })
	return n, err
}

// GetMissingParents returns every key referenced as a parent anywhere
// across the combined indexes that is not itself present as a primary
// key in any of them.
func (c Combined) GetMissingParents() ([]key.Key, error) {
	present := map[string]bool{}
	referenced := map[string]key.Key{}
	err := c.IterAllEntries(func(e Entry) bool {
		present[e.Key.String()] = true
		for _, rl := range e.RefLists {
			for _, k := range rl {
				referenced[k.String()] = k
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	var missing []key.Key
	for ks, k := range referenced {
		if !present[ks] {
			missing = append(missing, k)
		}
	}
	sort.Sort(key.Sortable(missing))
	return missing, nil
}
