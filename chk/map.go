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

package chk

import (
	"sort"
	"strings"

	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/hash"
)

// NodeStore persists and retrieves a CHK node's serialised bytes by
// their content hash. A pack-backed implementation keeps this mapping
// in a .cix B-tree index (§6); tests use MemStore.
type NodeStore interface {
	Get(h hash.Hash) ([]byte, error)
	Put(h hash.Hash, data []byte) error
}

// Map is a persistent, copy-on-write radix trie. Every node a Map has
// ever touched lives in its arena, addressed by integer index; a ref
// is either arena-resident (idx >= 0, possibly dirty) or known only by
// its persisted hash (idx < 0). Mutation never walks back through a
// parent pointer: Map/Unmap return the new index of the subtree they
// touched and the caller (a shallow clone of the parent) installs it,
// all the way up to m.root.
type Map struct {
	store       NodeStore
	searchKey   SearchKeyFunc
	maximumSize int
	keyWidth    int

	arena []*node
	root  ref
}

// NewMap returns an empty Map backed by store, using sk to derive
// trie-descent keys and maximumSize as the leaf serialised-size
// budget.
func NewMap(store NodeStore, sk SearchKeyFunc, maximumSize, keyWidth int) *Map {
	m := &Map{store: store, searchKey: sk, maximumSize: maximumSize, keyWidth: keyWidth}
	root := newLeaf(maximumSize, keyWidth)
	m.arena = append(m.arena, root)
	m.root = ref{idx: 0}
	return m
}

// Load opens a Map whose root is already persisted at rootHash. Its
// arena starts empty; nodes are pulled in lazily on first descent.
func Load(store NodeStore, rootHash hash.Hash, sk SearchKeyFunc, maximumSize, keyWidth int) (*Map, error) {
	return &Map{store: store, searchKey: sk, maximumSize: maximumSize, keyWidth: keyWidth, root: ref{idx: -1, h: rootHash}}, nil
}

// RootHash returns the Map's current root hash. Only meaningful right
// after Save (or right after Load, before any mutation); a Map with
// uncommitted edits has no stable hash yet, reported via ok=false.
func (m *Map) RootHash() (hash.Hash, bool) {
	h, ok := m.refHash(&m.root)
	return h, ok
}

func (m *Map) refHash(r *ref) (hash.Hash, bool) {
	if r.isHashOnly() {
		return r.h, true
	}
	n := m.arena[r.idx]
	if n.dirty {
		return hash.Hash{}, false
	}
	return n.h, true
}

// resolve returns the node r refers to, loading and caching it in the
// arena (and rewriting r to point there) if it was hash-only.
func (m *Map) resolve(r *ref) (*node, error) {
	if !r.isHashOnly() {
		return m.arena[r.idx], nil
	}
	data, err := m.store.Get(r.h)
	if err != nil {
		return nil, err
	}
	n, err := decodeNode(data, m.maximumSize, m.keyWidth)
	if err != nil {
		return nil, err
	}
	n.dirty = false
	n.h = r.h
	idx := len(m.arena)
	m.arena = append(m.arena, n)
	r.idx = idx
	return n, nil
}

// clone makes a dirty, arena-resident copy of n and returns its index,
// leaving n (and whatever persisted hash it may have had) untouched —
// the copy-on-write step every mutating descent performs once per
// visited node.
func (m *Map) clone(n *node) int {
	c := &node{
		kind:         n.kind,
		maximumSize:  n.maximumSize,
		keyWidth:     n.keyWidth,
		commonPrefix: n.commonPrefix,
		items:        append([]leafItem{}, n.items...),
		entries:      append([]internalEntry{}, n.entries...),
		dirty:        true,
	}
	idx := len(m.arena)
	m.arena = append(m.arena, c)
	return idx
}

// Get looks up key, returning its value and whether it was present.
func (m *Map) Get(k Key) ([]byte, bool, error) {
	sk := m.searchKey(k)
	r := m.root
	for {
		n, err := m.resolve(&r)
		if err != nil {
			return nil, false, err
		}
		if n.kind == leafNode {
			suffix := sk[len(n.commonPrefix):]
			for _, it := range n.items {
				if it.suffix == suffix {
					return it.value, true, nil
				}
			}
			return nil, false, nil
		}
		child, ok := findChild(n, sk)
		if !ok {
			return nil, false, nil
		}
		r = child
	}
}

// findChild returns the entry whose prefix (relative to n.commonPrefix)
// is a prefix of sk's remainder, if any. Internal entries partition
// their keyspace disjointly, so at most one can match.
func findChild(n *node, sk string) (ref, bool) {
	rest := sk[len(n.commonPrefix):]
	for _, e := range n.entries {
		if strings.HasPrefix(rest, e.prefix) {
			return e.child, true
		}
	}
	return ref{}, false
}

// Map inserts or updates key's value.
func (m *Map) Map(k Key, value []byte) error {
	sk := m.searchKey(k)
	newIdx, err := m.mapInto(&m.root, k, sk, value)
	if err != nil {
		return err
	}
	m.root = ref{idx: newIdx}
	return nil
}

func (m *Map) mapInto(r *ref, k Key, sk string, value []byte) (int, error) {
	n, err := m.resolve(r)
	if err != nil {
		return 0, err
	}
	if n.kind == leafNode {
		return m.mapIntoLeaf(n, k, sk, value)
	}
	return m.mapIntoInternal(n, k, sk, value)
}

func (m *Map) mapIntoLeaf(n *node, k Key, sk string, value []byte) (int, error) {
	idx := m.clone(n)
	leaf := m.arena[idx]
	suffix := sk[len(leaf.commonPrefix):]

	replaced := false
	for i := range leaf.items {
		if leaf.items[i].suffix == suffix {
			leaf.items[i].value = value
			leaf.items[i].key = k
			replaced = true
			break
		}
	}
	if !replaced {
		leaf.items = append(leaf.items, leafItem{suffix: suffix, key: k, value: value})
		leaf.sortItems()
	}

	if len(leaf.items) > 1 && leaf.serialisedSizeEstimate() > leaf.maximumSize {
		return m.splitLeaf(leaf)
	}
	return idx, nil
}

// splitLeaf replaces an overflowing leaf with a new internal node,
// partitioning its items by the shortest additional prefix that
// divides them into >= 2 non-empty groups (spec.md §4.5's splitting
// rule, settled against bzrlib's chk_map.py _push_search_key_tuple
// behaviour — see DESIGN.md).
func (m *Map) splitLeaf(leaf *node) (int, error) {
	groups := partitionBySuffix(leaf.items)
	if len(groups) < 2 {
		// Degenerate: every item shares an identical suffix (a true
		// search-key collision between distinct keys). Nothing further
		// to split on; leave the oversized leaf as-is rather than loop
		// forever, matching the "single item larger than budget sits
		// alone" exception one level up.
		idx := len(m.arena)
		m.arena = append(m.arena, leaf)
		return idx, nil
	}

	internalNodeObj := newInternal(leaf.maximumSize, leaf.keyWidth, leaf.commonPrefix)
	groupKeys := make([]string, 0, len(groups))
	for g := range groups {
		groupKeys = append(groupKeys, g)
	}
	sort.Strings(groupKeys)

	for _, g := range groupKeys {
		child := newLeaf(leaf.maximumSize, leaf.keyWidth)
		child.commonPrefix = leaf.commonPrefix + g
		for _, it := range groups[g] {
			child.items = append(child.items, leafItem{suffix: it.suffix[len(g):], key: it.key, value: it.value})
		}
		child.sortItems()
		childIdx := len(m.arena)
		m.arena = append(m.arena, child)
		internalNodeObj.entries = append(internalNodeObj.entries, internalEntry{prefix: g, child: ref{idx: childIdx}})
	}
	internalNodeObj.sortEntries()

	idx := len(m.arena)
	m.arena = append(m.arena, internalNodeObj)
	return idx, nil
}

// partitionBySuffix finds the shortest L >= 1 such that grouping items
// by the first L bytes of their suffix (or their whole suffix, if
// shorter than L) yields at least two groups.
func partitionBySuffix(items []leafItem) map[string][]leafItem {
	maxLen := 0
	for _, it := range items {
		if len(it.suffix) > maxLen {
			maxLen = len(it.suffix)
		}
	}
	for l := 1; l <= maxLen; l++ {
		groups := groupBy(items, l)
		if len(groups) >= 2 {
			return groups
		}
	}
	if maxLen == 0 {
		return groupBy(items, 0)
	}
	// Fallback for a true suffix collision across every item: split the
	// sorted set in half so progress is still made.
	sorted := append([]leafItem{}, items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].suffix < sorted[j].suffix })
	groups := map[string][]leafItem{}
	mid := len(sorted) / 2
	groups["\x00lo"] = sorted[:mid]
	groups["\x00hi"] = sorted[mid:]
	return groups
}

func groupBy(items []leafItem, l int) map[string][]leafItem {
	groups := map[string][]leafItem{}
	for _, it := range items {
		g := it.suffix
		if len(g) > l {
			g = g[:l]
		}
		groups[g] = append(groups[g], it)
	}
	return groups
}

func (m *Map) mapIntoInternal(n *node, k Key, sk string, value []byte) (int, error) {
	idx := m.clone(n)
	in := m.arena[idx]
	rest := sk[len(in.commonPrefix):]

	for i := range in.entries {
		if strings.HasPrefix(rest, in.entries[i].prefix) {
			childIdx, err := m.mapInto(&in.entries[i].child, k, sk, value)
			if err != nil {
				return 0, err
			}
			in.entries[i].child = ref{idx: childIdx}
			return idx, nil
		}
	}

	// No existing child claims this key's prefix: add a new one-item
	// leaf sibling. A length-1 prefix is always free here, because
	// internal entries partition disjointly and we already scanned for
	// (and didn't find) a match.
	newPrefix := rest[:1]
	leaf := newLeaf(in.maximumSize, in.keyWidth)
	leaf.commonPrefix = in.commonPrefix + newPrefix
	leaf.items = []leafItem{{suffix: sk[len(leaf.commonPrefix):], key: k, value: value}}
	childIdx := len(m.arena)
	m.arena = append(m.arena, leaf)
	in.entries = append(in.entries, internalEntry{prefix: newPrefix, child: ref{idx: childIdx}})
	in.sortEntries()
	return idx, nil
}

// Unmap deletes key, returning (found, error). Deleting an absent key
// is a no-op reported as found=false.
func (m *Map) Unmap(k Key) (bool, error) {
	sk := m.searchKey(k)
	newIdx, found, err := m.unmapFrom(&m.root, sk)
	if err != nil || !found {
		return found, err
	}
	m.root = ref{idx: newIdx}
	return true, nil
}

func (m *Map) unmapFrom(r *ref, sk string) (int, bool, error) {
	n, err := m.resolve(r)
	if err != nil {
		return 0, false, err
	}
	if n.kind == leafNode {
		suffix := sk[len(n.commonPrefix):]
		found := false
		for _, it := range n.items {
			if it.suffix == suffix {
				found = true
				break
			}
		}
		if !found {
			return 0, false, nil
		}
		idx := m.clone(n)
		leaf := m.arena[idx]
		kept := leaf.items[:0:0]
		for _, it := range leaf.items {
			if it.suffix != suffix {
				kept = append(kept, it)
			}
		}
		leaf.items = kept
		return idx, true, nil
	}

	idx := m.clone(n)
	in := m.arena[idx]
	rest := sk[len(in.commonPrefix):]
	for i := range in.entries {
		if !strings.HasPrefix(rest, in.entries[i].prefix) {
			continue
		}
		childIdx, found, err := m.unmapFrom(&in.entries[i].child, sk)
		if err != nil || !found {
			return 0, found, err
		}
		childNode := m.arena[childIdx]
		if childNode.kind == leafNode && len(childNode.items) == 0 {
			in.entries = append(in.entries[:i], in.entries[i+1:]...)
		} else {
			in.entries[i].child = ref{idx: childIdx}
		}

		// Collapse: a non-root internal with exactly one remaining
		// child is replaced by that child outright (its commonPrefix is
		// already absolute, so no relabelling is needed).
		if len(in.entries) == 1 {
			return in.entries[0].child.idx, true, nil
		}
		if merged, ok := m.tryCollapseToLeaf(idx, in); ok {
			return merged, true, nil
		}
		return idx, true, nil
	}
	return 0, false, nil
}

// tryCollapseToLeaf merges an internal node's entire subtree back into
// one leaf when the aggregate size of its live items would fit the
// leaf budget, per spec.md §4.5's "or when a subtree's aggregate
// serialised size falls under the leaf budget" collapse rule.
func (m *Map) tryCollapseToLeaf(idx int, in *node) (int, bool) {
	var all []leafItem
	if !m.collectItems(ref{idx: idx}, &all) {
		return 0, false
	}
	leaf := newLeaf(in.maximumSize, in.keyWidth)
	leaf.commonPrefix = in.commonPrefix
	leaf.items = append(leaf.items, all...)
	leaf.sortItems()
	if leaf.serialisedSizeEstimate() > leaf.maximumSize {
		return 0, false
	}
	newIdx := len(m.arena)
	m.arena = append(m.arena, leaf)
	return newIdx, true
}

// collectItems walks r's subtree (already arena-resident; hash-only
// descendants abort the collapse attempt rather than force-loading a
// page just to consider merging it) and appends its items, adjusting
// each suffix to be relative to the subtree root's own commonPrefix.
func (m *Map) collectItems(r ref, out *[]leafItem) bool {
	if r.isHashOnly() {
		return false
	}
	n := m.arena[r.idx]
	if n.kind == leafNode {
		*out = append(*out, n.items...)
		return true
	}
	for _, e := range n.entries {
		before := len(*out)
		if !m.collectItems(e.child, out) {
			return false
		}
		for i := before; i < len(*out); i++ {
			(*out)[i].suffix = e.prefix + (*out)[i].suffix
		}
	}
	return true
}

// Save flushes every dirty node reachable from the root, bottom-up,
// and returns the new root hash. Clean (already-persisted) subtrees
// are left untouched.
func (m *Map) Save() (hash.Hash, error) {
	h, err := m.saveRef(&m.root)
	if err != nil {
		return hash.Hash{}, err
	}
	return h, nil
}

func (m *Map) saveRef(r *ref) (hash.Hash, error) {
	if r.isHashOnly() {
		return r.h, nil
	}
	n := m.arena[r.idx]
	if !n.dirty {
		return n.h, nil
	}
	if n.kind == internalNode {
		for i := range n.entries {
			childHash, err := m.saveRef(&n.entries[i].child)
			if err != nil {
				return hash.Hash{}, err
			}
			n.entries[i].child = ref{idx: -1, h: childHash}
		}
	}
	data := encodeNode(n)
	h := hash.Of(data)
	if err := m.store.Put(h, data); err != nil {
		return hash.Hash{}, err
	}
	n.dirty = false
	n.h = h
	return h, nil
}

// All calls fn once for every (key, value) pair in the map, in
// ascending search-key order, loading whatever pages it needs to reach
// them. fn returning false stops the walk early.
func (m *Map) All(fn func(k Key, value []byte) bool) error {
	keepGoing := true
	err := m.walk(&m.root, func(it leafItem) bool {
		if !keepGoing {
			return false
		}
		keepGoing = fn(it.key, it.value)
		return keepGoing
	})
	return err
}

func (m *Map) walk(r *ref, fn func(leafItem) bool) error {
	n, err := m.resolve(r)
	if err != nil {
		return err
	}
	if n.kind == leafNode {
		for _, it := range n.items {
			if !fn(it) {
				break
			}
		}
		return nil
	}
	for i := range n.entries {
		if err := m.walk(&n.entries[i].child, fn); err != nil {
			return err
		}
	}
	return nil
}

// IterChanges calls fn once for every key present in m and/or other
// whose value differs between the two, with a zero-length nil value
// standing for absent. Matching subtrees (equal persisted hashes) are
// skipped without being visited, which is the entire reason CHK maps
// exist: a fetch need only walk the part of the trie that changed.
func (m *Map) IterChanges(other *Map, fn func(k Key, a, b []byte) bool) error {
	keepGoing := true
	err := m.diffRefs(&m.root, other, &other.root, func(k Key, a, b []byte) bool {
		if !keepGoing {
			return false
		}
		keepGoing = fn(k, a, b)
		return keepGoing
	})
	return err
}

func (m *Map) diffRefs(ra *ref, other *Map, rb *ref, fn func(Key, []byte, []byte) bool) error {
	if ha, aok := m.refHash(ra); aok {
		if hb, bok := other.refHash(rb); bok && ha == hb {
			return nil
		}
	}
	na, err := m.resolve(ra)
	if err != nil {
		return err
	}
	nb, err := other.resolve(rb)
	if err != nil {
		return err
	}
	if na.kind == leafNode && nb.kind == leafNode {
		return diffLeaves(na, nb, fn)
	}

	// Shapes differ (one side split further than the other, which can
	// happen at different maximumSize or mid-edit): flatten both
	// subtrees and diff the item lists directly rather than trying to
	// align mismatched internal partitions.
	var aItems, bItems []leafItem
	if !m.collectItems(*ra, &aItems) || !other.collectItems(*rb, &bItems) {
		return errkind.CorruptIndex.New("chk: cannot diff a subtree with an unresolved hash-only descendant")
	}
	return diffItemSlices(aItems, bItems, fn)
}

func diffLeaves(a, b *node, fn func(Key, []byte, []byte) bool) error {
	return diffItemSlices(a.items, b.items, fn)
}

func diffItemSlices(aItems, bItems []leafItem, fn func(Key, []byte, []byte) bool) error {
	byKeyB := map[string]leafItem{}
	for _, it := range bItems {
		byKeyB[it.key.String()] = it
	}
	seen := map[string]bool{}
	for _, ia := range aItems {
		ks := ia.key.String()
		seen[ks] = true
		ib, ok := byKeyB[ks]
		if !ok {
			if !fn(ia.key, ia.value, nil) {
				return nil
			}
			continue
		}
		if string(ia.value) != string(ib.value) {
			if !fn(ia.key, ia.value, ib.value) {
				return nil
			}
		}
	}
	for _, ib := range bItems {
		ks := ib.key.String()
		if seen[ks] {
			continue
		}
		if !fn(ib.key, nil, ib.value) {
			return nil
		}
	}
	return nil
}

// String joins a Key's elements with NUL, the same separator its
// search-key functions use, so that it is safe as a map key in diffs.
func (k Key) String() string {
	return strings.Join(k, "\x00")
}
