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

package pack

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vcscore/corestore/btreeindex"
	"github.com/vcscore/corestore/groupcompress"
	"github.com/vcscore/corestore/hash"
	"github.com/vcscore/corestore/key"
)

// RepairResult reports what Repair found and fixed.
type RepairResult struct {
	RebuiltIndexes []hash.Hash
	OrphanPacks    []hash.Hash
}

// Repair rewrites a repository's text index for any pack whose block
// bytes survived on disk but whose .tix index did not — the §4.4/§5
// "recoverable abandonment" scenario: a block was written (the rename
// into packs/ completed) but the process died before the matching
// index entries were flushed. manifests supplies, for each such pack
// hash, the (key, parents, start, end) provenance spec.md §4.2's
// streaming wire format already carries alongside every block — the
// same information a peer fetching that block would have received,
// which is why it is recoverable at all rather than lost along with
// the index. Grounded on
// bzrlib.repofmt.pack_repo.RepositoryPackCollection._copy_revision_texts's
// reconciliation pass (DESIGN.md / SPEC_FULL.md §C).
func (r *Repository) Repair(manifests map[hash.Hash][]groupcompress.ManifestEntry) (RepairResult, error) {
	var result RepairResult

	packDir := filepath.Join(r.root, "packs")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		return result, err
	}

	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, ".pack") {
			continue
		}
		h, ok := hash.MaybeParse(strings.TrimSuffix(name, ".pack"))
		if !ok {
			continue
		}
		if r.HasIndex(h, TextIndex) {
			continue
		}
		manifest, ok := manifests[h]
		if !ok {
			result.OrphanPacks = append(result.OrphanPacks, h)
			continue
		}
		if err := r.rebuildTextIndex(h, manifest); err != nil {
			return result, err
		}
		result.RebuiltIndexes = append(result.RebuiltIndexes, h)
	}

	// Any pack found on disk at all (recovered or previously known)
	// must also be listed in pack-names, or it will never be consulted
	// by a query.
	if len(result.RebuiltIndexes) > 0 {
		if err := r.ensurePackNamesListAll(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *Repository) rebuildTextIndex(packHash hash.Hash, manifest []groupcompress.ManifestEntry) error {
	blk, err := r.OpenPack(packHash)
	if err != nil {
		return err
	}

	b := btreeindex.NewBuilder(1, btreeindex.DefaultPageSize)
	for _, e := range manifest {
		ft, kind, err := blk.Extract(e.Start, e.End)
		if err != nil {
			return err
		}
		sum := hash.Of(ft)
		if err := b.Add(btreeindex.Entry{
			Key:      e.Key,
			Value:    encodeRepairedValue(packHash, e.Start, e.End, kind, sum),
			RefLists: []key.Tuple{e.Parents},
		}); err != nil {
			return err
		}
	}
	data, err := b.Build()
	if err != nil {
		return err
	}
	return writeFileAtomic(r.root, r.indexPath(packHash, TextIndex), data)
}

// ensurePackNamesListAll re-scans packs/ on disk and rewrites
// pack-names so it lists every pack file present, not just the ones
// WritePack happened to record — the part of repair that recovers from
// a crash between "pack renamed into place" and "pack-names updated".
func (r *Repository) ensurePackNamesListAll() error {
	entries, err := os.ReadDir(filepath.Join(r.root, "packs"))
	if err != nil {
		return err
	}
	b := btreeindex.NewBuilder(0, btreeindex.DefaultPageSize)
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, ".pack") {
			continue
		}
		h, ok := hash.MaybeParse(strings.TrimSuffix(name, ".pack"))
		if !ok {
			continue
		}
		info, statErr := de.Info()
		size := int64(0)
		if statErr == nil {
			size = info.Size()
		}
		if err := b.Add(btreeindex.Entry{Key: key.Key{h.String()}, Value: strconv.FormatInt(size, 10)}); err != nil {
			return err
		}
	}
	data, err := b.Build()
	if err != nil {
		return err
	}
	return writeFileAtomic(r.root, filepath.Join(r.root, "pack-names"), data)
}

// encodeRepairedValue matches the pipe-delimited (block hash, byte
// range, storage kind, sha1) layout versionedfile's own index values
// use (versionedfile/encoding.go), so a rebuilt .tix index is
// interchangeable with one produced by a normal flush.
func encodeRepairedValue(blockHash hash.Hash, start, end int, kind groupcompress.Kind, sum hash.Hash) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", blockHash.String(), start, end, string(kind), sum.String())
}
