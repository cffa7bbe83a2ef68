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

	"github.com/vcscore/corestore/hash"
)

type nodeKind int

const (
	leafNode nodeKind = iota
	internalNode
)

// ref points at a child: either an arena-resident, possibly-dirty node
// (idx >= 0) or a persisted, unloaded one known only by hash (idx < 0
// and h set). A ref never points at a parent; descent keeps its own
// path so no node ever needs a back-pointer.
type ref struct {
	idx int
	h   hash.Hash
}

func (r ref) isHashOnly() bool { return r.idx < 0 }

// leafItem is one (key, value) pair held directly by a leaf, keyed by
// the suffix of the search key left over after the node's common
// prefix.
type leafItem struct {
	suffix string
	key    Key
	value  []byte
}

// internalEntry is one (prefix, child) pair of an internal node's
// partition; prefix is relative to the node's own commonPrefix.
type internalEntry struct {
	prefix string
	child  ref
}

// node is either a leaf or an internal node, resident in a Map's
// arena. Its hash is valid only when dirty is false; any mutation
// marks the node (and the path down to it, separately, by replacing
// each ancestor's child ref) dirty and clears the cached hash.
type node struct {
	kind         nodeKind
	maximumSize  int
	keyWidth     int
	commonPrefix string

	items   []leafItem      // leafNode only, sorted by suffix
	entries []internalEntry // internalNode only, sorted by prefix

	dirty bool
	h     hash.Hash
}

func newLeaf(maximumSize, keyWidth int) *node {
	return &node{kind: leafNode, maximumSize: maximumSize, keyWidth: keyWidth, dirty: true}
}

func newInternal(maximumSize, keyWidth int, commonPrefix string) *node {
	return &node{kind: internalNode, maximumSize: maximumSize, keyWidth: keyWidth, commonPrefix: commonPrefix, dirty: true}
}

func (n *node) sortItems() {
	sort.Slice(n.items, func(i, j int) bool { return n.items[i].suffix < n.items[j].suffix })
}

func (n *node) sortEntries() {
	sort.Slice(n.entries, func(i, j int) bool { return n.entries[i].prefix < n.entries[j].prefix })
}

// serialisedSizeEstimate approximates the on-disk byte count without
// actually serialising, for the overflow/collapse thresholds. It
// doesn't need to be exact, only monotonic in the number and size of
// entries, matching the source's own "estimate, don't re-encode on
// every insert" approach.
func (n *node) serialisedSizeEstimate() int {
	const headerOverhead = 64
	total := headerOverhead + len(n.commonPrefix)
	if n.kind == leafNode {
		for _, it := range n.items {
			total += len(it.suffix) + len(it.value) + 8
		}
	} else {
		for _, e := range n.entries {
			total += len(e.prefix) + hash.StringLen + 2
		}
	}
	return total
}
