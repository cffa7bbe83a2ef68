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

package delta

import (
	"github.com/cespare/xxhash/v2"
)

// windowSize is the width of the rolling match window: a rolling hash
// over overlapping 16-byte windows of the source.
const windowSize = 16

// minMatchLength is the shortest run worth emitting as a copy
// instruction rather than literal bytes; below this the 1-3 byte
// instruction overhead of a copy loses to just inlining the bytes.
const minMatchLength = windowSize

// Index is a match-finding index over one source buffer, built once
// and reusable across many Encode calls against that source (the
// group-compress writer builds one per block and grows it as it
// appends more uncompressed bytes).
//
// Only the first maxBytes of source are indexed: correctness survives
// this cap by construction, since longestMatch simply never proposes
// a match starting past maxBytes — only the compression ratio
// degrades, never the decoded result.
type Index struct {
	source   []byte
	maxBytes uint64
	table    map[uint64][]int32
}

// NewIndex builds a match index over source, recording at most
// maxBytes of it (the max_bytes_to_index knob, unified under
// config.Store.MaxBytesToIndex).
func NewIndex(source []byte, maxBytes uint64) *Index {
	idx := &Index{source: source, maxBytes: maxBytes, table: make(map[uint64][]int32)}
	limit := len(source)
	if uint64(limit) > maxBytes {
		limit = int(maxBytes)
	}
	for i := 0; i+windowSize <= limit; i++ {
		h := windowHash(source[i : i+windowSize])
		idx.table[h] = append(idx.table[h], int32(i))
	}
	return idx
}

// Grow extends the indexed prefix of source (the group-compress writer
// appends a just-accepted record's bytes to the block's running source
// buffer and must index the new tail before the next compress call).
func (idx *Index) Grow(newSource []byte) {
	oldLen := len(idx.source)
	idx.source = newSource
	limit := len(newSource)
	if uint64(limit) > idx.maxBytes {
		limit = int(idx.maxBytes)
	}
	start := oldLen - windowSize + 1
	if start < 0 {
		start = 0
	}
	for i := start; i+windowSize <= limit; i++ {
		h := windowHash(newSource[i : i+windowSize])
		idx.table[h] = append(idx.table[h], int32(i))
	}
}

func windowHash(window []byte) uint64 {
	return xxhash.Sum64(window)
}

// longestMatch finds the longest run in idx.source that matches
// target starting at targetPos, returning its source offset and
// length. It returns length 0 if no run of at least minMatchLength
// bytes is found.
func (idx *Index) longestMatch(target []byte, targetPos int) (offset, length int) {
	if targetPos+windowSize > len(target) {
		return 0, 0
	}
	h := windowHash(target[targetPos : targetPos+windowSize])
	candidates := idx.table[h]
	if len(candidates) == 0 {
		return 0, 0
	}

	best := 0
	bestOff := 0
	// Prefer the most recently indexed candidate: for group-compress
	// blocks that grow a shared source across many records, later
	// offsets are cheaper deltas against the immediately preceding
	// record.
	for i := len(candidates) - 1; i >= 0; i-- {
		srcOff := int(candidates[i])
		n := matchLength(idx.source, srcOff, target, targetPos)
		if n > best {
			best = n
			bestOff = srcOff
		}
	}
	if best < minMatchLength {
		return 0, 0
	}
	return bestOff, best
}

// Truncate discards the indexed source past newLen. Stale hash table
// entries pointing past newLen are left in place; longestMatch's bounds
// check makes them harmless, just slightly wasteful, which is an
// acceptable cost for the group-compress writer's pop_last, an
// uncommon path.
func (idx *Index) Truncate(newLen int) {
	idx.source = idx.source[:newLen]
}

func matchLength(source []byte, srcOff int, target []byte, targetPos int) int {
	n := 0
	for srcOff+n < len(source) && targetPos+n < len(target) && source[srcOff+n] == target[targetPos+n] {
		n++
	}
	return n
}
