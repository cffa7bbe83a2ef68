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
	"strconv"
	"strings"

	"github.com/vcscore/corestore/btreeindex"
	"github.com/vcscore/corestore/cache"
	"github.com/vcscore/corestore/chk"
	"github.com/vcscore/corestore/config"
	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/groupcompress"
	"github.com/vcscore/corestore/hash"
	"github.com/vcscore/corestore/key"
)

// ChkNodeStore is the pack-backed chk.NodeStore the doc comment on
// chk.NodeStore promises: CHK leaf/internal nodes accumulate in a
// group-compress block exactly like text records do in versionedfile,
// except the key is the node's own content hash rather than a
// (file-id, revision-id) pair, and lookups fall through every pack's
// ChkIndex in turn the same way btreeindex.Combined does for text.
type ChkNodeStore struct {
	repo   *Repository
	cfg    config.Store
	caches *cache.Set

	writer  *groupcompress.Writer
	pending map[hash.Hash]nodeSpan
	local   map[hash.Hash][]byte
}

type nodeSpan struct {
	start, end int
}

var _ chk.NodeStore = (*ChkNodeStore)(nil)

// NewChkNodeStore returns a ChkNodeStore writing into repo, governed
// by cfg.MaxBytesToIndex. caches may be nil; when set, Get consults
// caches.ChkNodes before touching any pack.
func (r *Repository) NewChkNodeStore(cfg config.Store, caches *cache.Set) *ChkNodeStore {
	return &ChkNodeStore{
		repo:    r,
		cfg:     cfg,
		caches:  caches,
		writer:  groupcompress.NewWriter(cfg.MaxBytesToIndex),
		pending: map[hash.Hash]nodeSpan{},
		local:   map[hash.Hash][]byte{},
	}
}

// Put adds data under its content hash h. A node already staged in
// the current (unflushed) block, already cached, or already present
// in an earlier pack is not re-compressed: CHK siblings are shared, so
// the same node hash is routinely offered more than once across a
// single Map.Save.
func (s *ChkNodeStore) Put(h hash.Hash, data []byte) error {
	if _, staged := s.pending[h]; staged {
		return nil
	}
	if s.caches != nil {
		s.caches.ChkNodes.Put(h, data)
	}
	if _, err := s.lookupPacked(h); err == nil {
		return nil
	}
	sum, start, end, _ := s.writer.Compress(data)
	if sum != h {
		return errkind.CorruptBlock.New(fmt.Sprintf("pack: chk node content hash mismatch: got %s, want %s", sum, h))
	}
	s.pending[h] = nodeSpan{start: start, end: end}
	s.local[h] = append([]byte{}, data...)
	return nil
}

// Get returns data for h, checking the shared cache, the not-yet-
// flushed block, then every pack's ChkIndex.
func (s *ChkNodeStore) Get(h hash.Hash) ([]byte, error) {
	if s.caches != nil {
		if data, ok := s.caches.ChkNodes.Get(h); ok {
			return data, nil
		}
	}
	if data, ok := s.local[h]; ok {
		return data, nil
	}
	data, err := s.lookupPacked(h)
	if err != nil {
		return nil, err
	}
	if s.caches != nil {
		s.caches.ChkNodes.Put(h, data)
	}
	return data, nil
}

// lookupPacked walks every pack's ChkIndex in pack-names order, the
// first hit wins, matching btreeindex.Combined's first-index-wins
// shadowing rule.
func (s *ChkNodeStore) lookupPacked(h hash.Hash) ([]byte, error) {
	packs, err := s.repo.ListPacks()
	if err != nil {
		return nil, err
	}
	k := key.Key{h.String()}
	for _, pi := range packs {
		if !s.repo.HasIndex(pi.Hash, ChkIndex) {
			continue
		}
		idx, err := s.repo.OpenIndex(pi.Hash, ChkIndex)
		if err != nil {
			return nil, err
		}
		value, _, ok, err := idx.Get(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		start, end, decErr := decodeChkValue(value)
		if decErr != nil {
			return nil, errkind.CorruptIndex.New(decErr.Error())
		}
		blk, err := s.repo.OpenPack(pi.Hash)
		if err != nil {
			return nil, err
		}
		if s.caches != nil {
			blk.UseCache(s.caches.Blocks)
		}
		data, _, err := blk.Extract(start, end)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, errkind.NotPresent.New(h.String())
}

// Flush seals every node staged since the last Flush into a new pack,
// with a ChkIndex mapping each node's own hash to its byte range. It
// is a no-op, returning the zero hash, when nothing is pending.
func (s *ChkNodeStore) Flush() (hash.Hash, error) {
	if len(s.pending) == 0 {
		return hash.Hash{}, nil
	}
	blk, err := s.writer.Flush()
	if err != nil {
		return hash.Hash{}, err
	}
	builder := btreeindex.NewBuilder(0, s.cfg.PageSize)
	for h, sp := range s.pending {
		entry := btreeindex.Entry{Key: key.Key{h.String()}, Value: fmt.Sprintf("%d|%d", sp.start, sp.end)}
		if err := builder.Add(entry); err != nil {
			return hash.Hash{}, err
		}
	}
	data, err := builder.Build()
	if err != nil {
		return hash.Hash{}, err
	}
	packHash, err := s.repo.WritePack(blk, map[IndexKind][]byte{ChkIndex: data})
	if err != nil {
		return hash.Hash{}, err
	}
	s.writer = groupcompress.NewWriter(s.cfg.MaxBytesToIndex)
	s.pending = map[hash.Hash]nodeSpan{}
	s.local = map[hash.Hash][]byte{}
	return packHash, nil
}

func decodeChkValue(v string) (start, end int, err error) {
	fields := strings.Split(v, "|")
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("pack: malformed chk index value %q", v)
	}
	start, err1 := strconv.Atoi(fields[0])
	end, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("pack: bad byte range in chk index value %q", v)
	}
	return start, end, nil
}
