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

package versionedfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vcscore/corestore/groupcompress"
	"github.com/vcscore/corestore/hash"
)

// A B-tree leaf entry's value is an opaque string; versionedfile packs
// (block hash, byte range, kind, sha1) into one pipe-delimited field.
// None of these can themselves contain '|', '\x00', or '\n'.
func encodeValue(blockHash hash.Hash, start, end int, kind groupcompress.Kind, sum hash.Hash) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", blockHash.String(), start, end, string(kind), sum.String())
}

func decodeValue(v string) (blockHash hash.Hash, start, end int, kind groupcompress.Kind, sum hash.Hash, err error) {
	fields := strings.Split(v, "|")
	if len(fields) != 5 {
		return hash.Hash{}, 0, 0, 0, hash.Hash{}, fmt.Errorf("versionedfile: malformed index value %q", v)
	}
	blockHash, ok := hash.MaybeParse(fields[0])
	if !ok {
		return hash.Hash{}, 0, 0, 0, hash.Hash{}, fmt.Errorf("versionedfile: bad block hash in %q", v)
	}
	start, err1 := strconv.Atoi(fields[1])
	end, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return hash.Hash{}, 0, 0, 0, hash.Hash{}, fmt.Errorf("versionedfile: bad byte range in %q", v)
	}
	if len(fields[3]) != 1 {
		return hash.Hash{}, 0, 0, 0, hash.Hash{}, fmt.Errorf("versionedfile: bad storage kind in %q", v)
	}
	kind = groupcompress.Kind(fields[3][0])
	sum, ok = hash.MaybeParse(fields[4])
	if !ok {
		return hash.Hash{}, 0, 0, 0, hash.Hash{}, fmt.Errorf("versionedfile: bad sha1 in %q", v)
	}
	return blockHash, start, end, kind, sum, nil
}
