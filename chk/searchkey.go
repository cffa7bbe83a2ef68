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

// Package chk implements a persistent, copy-on-write, prefix-partitioned
// radix map keyed by hashed tuples, used to represent inventory
// snapshots so that fetching the difference between two revisions
// only touches the pages that actually changed. Grounded on bzrlib's
// chk_map.py (leaf/internal node split, canonical-form determinism,
// set-difference iter_changes), restructured per the arena-and-index
// pattern: nodes never hold parent back-pointers, a Map's nodes live
// in a per-Map arena addressed by integer index, and path-retracing
// during descent uses an explicit stack instead.
package chk

import (
	"crypto/crc32"
	"encoding/hex"
	"strings"
)

// Key is the tuple a Map is keyed by, e.g. a file's path segments.
type Key []string

func (k Key) joinPlain() string {
	return strings.Join(k, "\x00")
}

// SearchKeyFunc turns a Key into the byte string used for trie
// descent. Different functions trade uniformity of fan-out for
// readability of the on-disk prefixes.
type SearchKeyFunc func(k Key) string

// PlainSearchKey joins elements with NUL, verbatim. Prefixes in the
// resulting trie are human-readable but fan-out follows whatever
// distribution the keys themselves have.
func PlainSearchKey(k Key) string {
	return k.joinPlain()
}

// Hash16SearchKey hex-encodes the CRC-32 of each element and joins
// with NUL: 8 hex digits per element, uniform 4-bit fan-out per nibble
// of trie depth.
func Hash16SearchKey(k Key) string {
	parts := make([]string, len(k))
	for i, e := range k {
		sum := crc32.ChecksumIEEE([]byte(e))
		parts[i] = hex.EncodeToString([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	}
	return strings.Join(parts, "\x00")
}

// hash255Subst replaces the one byte value (0x0a, '\n') that would
// otherwise break the line-oriented on-disk node format if it
// appeared inside a raw, un-hex-encoded CRC. 0x0a is remapped to
// 0xfe, a value CRC-32 of a short string is exceedingly unlikely to
// need on its own, and the mapping needs to be merely injective, not
// minimal.
const hash255Newline = 0x0a
const hash255Subst = 0xfe

// Hash255SearchKey packs the raw 4-byte CRC-32 of each element,
// substituting any byte equal to '\n', giving 8-bit fan-out per byte
// of trie depth at the cost of a (deliberately) non-printable prefix.
func Hash255SearchKey(k Key) string {
	var b strings.Builder
	for i, e := range k {
		if i > 0 {
			b.WriteByte(0)
		}
		sum := crc32.ChecksumIEEE([]byte(e))
		raw := [4]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
		for _, c := range raw {
			if c == hash255Newline {
				c = hash255Subst
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}
