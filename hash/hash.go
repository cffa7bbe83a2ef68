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
//
// This file incorporates work covered by the following copyright and
// permission notice:
//
// Copyright 2019 Dolthub, Inc. / Copyright 2016 Attic Labs, Inc.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package hash implements the content-addressing primitive shared by
// every on-disk structure in this repository: a SHA-1 digest of a
// record's reconstructed fulltext, a group-compress block's bytes, or
// a CHK node's serialised form. Equal hashes imply equal bytes.
package hash

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// ByteLen is the width of a Hash: a raw SHA-1 digest.
const ByteLen = sha1.Size

// StringLen is the width of a Hash's hex string form.
const StringLen = ByteLen * 2

// Hash is a content address: the SHA-1 of some byte sequence. It is a
// value type with no identity beyond its bytes, safe to use as a map
// key or to compare with ==.
type Hash [ByteLen]byte

// Of returns the Hash of data.
func Of(data []byte) Hash {
	digest := sha1.Sum(data)
	return Hash(digest)
}

// New returns an empty Hash (the identity used for "no parent" / "no
// children yet" rather than a sentinel pointer).
func New() Hash {
	return Hash{}
}

// IsEmpty reports whether h is the zero Hash.
func (h Hash) IsEmpty() bool {
	return h == Hash{}
}

// String renders h as lowercase hex, the form used in pack, index, and
// CHK node file names.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Parse parses a hex-encoded hash. It panics on malformed input;
// callers that accept untrusted input should use MaybeParse instead.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		panic(fmt.Sprintf("hash: cannot parse %q as a hash", s))
	}
	return h
}

// MaybeParse parses a hex-encoded hash, returning ok=false instead of
// panicking on malformed input.
func MaybeParse(s string) (Hash, bool) {
	if len(s) != StringLen {
		return Hash{}, false
	}
	var h Hash
	n, err := hex.Decode(h[:], []byte(s))
	if err != nil || n != ByteLen {
		return Hash{}, false
	}
	return h, true
}

// Less reports whether h sorts before other in the total order used to
// keep entries within a B-tree index page or CHK node strictly
// ascending.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// Slice is a sortable, content-addressed slice of hashes.
type Slice []Hash

func (hs Slice) Len() int           { return len(hs) }
func (hs Slice) Less(i, j int) bool { return hs[i].Less(hs[j]) }
func (hs Slice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

// Equals reports whether two slices contain the same hashes in the
// same order.
func (hs Slice) Equals(other Slice) bool {
	if len(hs) != len(other) {
		return false
	}
	for i := range hs {
		if hs[i] != other[i] {
			return false
		}
	}
	return true
}
