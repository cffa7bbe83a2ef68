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

// Package errkind names the storage core's well-known failure modes
// as first-class, errors.Is-comparable values instead of Go types, the
// way bzrlib raises a handful of well-known exception classes across
// knit/groupcompress/btree_index. Kind is int-backed;
// gopkg.in/src-d/go-errors.v1 supplies the "kind carries a message
// template, instances carry the details" split.
package errkind

import (
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// The storage core's well-known failure modes.
var (
	// NotPresent: key missing from store. Caller's choice to return an
	// absent record or raise; this Kind is used for the "raise" half.
	NotPresent = goerrors.NewKind("key not present: %s")

	// CorruptBlock: group-compress block header malformed, zlib
	// failure, or declared length mismatch.
	CorruptBlock = goerrors.NewKind("corrupt group-compress block: %s")

	// CorruptIndex: B-tree page checksum or structure broken.
	CorruptIndex = goerrors.NewKind("corrupt index: %s")

	// InconsistentAdd: add of a present key with a different
	// sha1/parents than what is already stored.
	InconsistentAdd = goerrors.NewKind("inconsistent add for key %s: %s")

	// GhostReference: a parent is not present. Non-fatal at add time;
	// surfaced as a diagnostic by check().
	GhostReference = goerrors.NewKind("ghost reference to %s from %s")

	// LockContention: another writer holds the store's write lock.
	LockContention = goerrors.NewKind("lock contention on %s: %s")

	// DeltaApplyFailed: delta stream truncated or references an
	// out-of-range copy.
	DeltaApplyFailed = goerrors.NewKind("delta apply failed: %s")

	// UpgradeRequired: on-disk format older than what this build can
	// write without an explicit migration.
	UpgradeRequired = goerrors.NewKind("store format requires migration: %s")
)

// Is reports whether err (or any error it wraps) was raised by kind.
// A thin alias kept so call sites read "errkind.Is(err, errkind.CorruptBlock)"
// rather than importing goerrors directly.
func Is(err error, kind *goerrors.Kind) bool {
	return kind.Is(err)
}
