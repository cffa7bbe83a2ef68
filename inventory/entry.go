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

// Package inventory translates a tree snapshot (files, directories,
// symlinks, their ids and their contents' hashes) into the CHK leaf
// contents spec.md §2's "inventory serialisation glue" names, and
// back. The entry field set (kind, parent id, name, last-modifying
// revision, text sha1/size, executable bit, symlink target) is
// grounded on the teacher's original source's XML inventory
// serialiser (original_source/bzrlib/xml8.py's Serializer_v8), the
// richest surviving description of what one inventory entry records;
// the on-disk shape here is this project's chk radix map rather than
// that serialiser's flat XML element stream.
package inventory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/hash"
)

// Kind distinguishes the three entry shapes a tree snapshot can hold
// (spec.md's Serializer_v8.supported_kinds: file, directory, symlink).
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// Entry is a single tree snapshot entry: one file, directory, or
// symlink, identified by its own file id and located by its parent's
// file id plus its name within that parent.
type Entry struct {
	FileID   string
	ParentID string // empty for the tree root
	Name     string
	Kind     Kind
	Revision string // the revision that last altered this entry

	// Populated only for KindFile.
	TextSHA1 hash.Hash
	TextSize int64

	Executable bool // KindFile only

	SymlinkTarget string // KindSymlink only
}

// encode renders an Entry as the pipe-delimited line stored as a chk
// leaf value, the same literal-ASCII-fields convention
// versionedfile/encoding.go uses for index values.
func encode(e Entry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d|%t|%s",
		e.Kind, e.ParentID, e.Name, e.Revision,
		e.TextSHA1.String(), e.TextSize, e.Executable, escapeTarget(e.SymlinkTarget))
}

func decode(fileID, line string) (Entry, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 8 {
		return Entry{}, errkind.CorruptIndex.New("inventory: malformed entry line for " + fileID)
	}
	size, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Entry{}, errkind.CorruptIndex.New("inventory: bad text size for " + fileID + ": " + err.Error())
	}
	executable, err := strconv.ParseBool(fields[6])
	if err != nil {
		return Entry{}, errkind.CorruptIndex.New("inventory: bad executable flag for " + fileID + ": " + err.Error())
	}
	var sum hash.Hash
	if fields[4] != "" {
		sum, _ = hash.MaybeParse(fields[4])
	}
	return Entry{
		FileID:        fileID,
		Kind:          Kind(fields[0]),
		ParentID:      fields[1],
		Name:          fields[2],
		Revision:      fields[3],
		TextSHA1:      sum,
		TextSize:      size,
		Executable:    executable,
		SymlinkTarget: unescapeTarget(fields[7]),
	}, nil
}

// escapeTarget/unescapeTarget guard against a symlink target
// containing the field separator; targets are paths and pipes are
// legal in paths on at least one supported platform.
func escapeTarget(s string) string {
	return strings.ReplaceAll(s, "|", "\x01")
}

func unescapeTarget(s string) string {
	return strings.ReplaceAll(s, "\x01", "|")
}
