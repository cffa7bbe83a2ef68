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

// Package versionedfile front-ends the B-tree index and group-compress
// block packages into named streams of records keyed by
// (file-id, revision-id), with an explicit parent graph, delta-closure
// insertion, and an ordering contract on record-stream iteration.
// Grounded on bzrlib's knit.KnitVersionedFiles API shape, reimplemented
// against btreeindex/groupcompress rather than ported.
package versionedfile

import (
	"github.com/vcscore/corestore/hash"
	"github.com/vcscore/corestore/key"
)

// StorageKind labels how a Record's bytes came to be in the caller's
// hand: already a fulltext, resolved from an in-block delta, or not
// found at all.
type StorageKind int

const (
	KindFulltext StorageKind = iota
	KindDelta
	KindAbsent
)

func (k StorageKind) String() string {
	switch k {
	case KindFulltext:
		return "fulltext"
	case KindDelta:
		return "delta-against-compression-parent"
	case KindAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Record is one unit yielded by a record stream. Bytes is always the
// resolved fulltext: the group-compress reader never hands back an
// unresolved delta (see groupcompress.Block.Extract), so StorageKind
// here is metadata about how the record was stored, not a hint that
// Bytes needs further resolution.
type Record struct {
	Key         key.Key
	Parents     key.Tuple
	StorageKind StorageKind
	Bytes       []byte
	Sha1        hash.Hash
}

// Ordering selects the contract get_record_stream's output obeys.
type Ordering int

const (
	// Unordered is whatever order is cheapest to produce: the
	// requested keys, untouched.
	Unordered Ordering = iota
	// Topological guarantees every key in the request is emitted
	// after any of its parents that are also in the request.
	Topological
	// GroupCompressOrder clusters keys that live in the same
	// group-compress block together, to maximise in-block reuse when
	// copying the stream into another store.
	GroupCompressOrder
	// AsRequested preserves the caller's input order exactly.
	AsRequested
)

// NextFunc pulls the next record from a producer, one at a time,
// matching the "record stream is a lazy sequence; the consumer pulls"
// scheduling model: ok is false once the stream is exhausted.
type NextFunc func() (Record, bool, error)

// CheckResult is the reconciliation report Check returns: every
// problem found, rather than raising on the first one.
type CheckResult struct {
	Checked      int
	GhostParents []key.Key
	CorruptKeys  []key.Key
}
