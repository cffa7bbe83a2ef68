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
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/vcscore/corestore/btreeindex"
	"github.com/vcscore/corestore/config"
	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/groupcompress"
	"github.com/vcscore/corestore/hash"
	"github.com/vcscore/corestore/key"
	"github.com/vcscore/corestore/logctx"
	"github.com/vcscore/corestore/pack"
)

// pendingRecord is an added-but-not-yet-flushed record: the caller's
// text is kept verbatim so queries against it don't need to touch the
// still-open group-compress writer.
type pendingRecord struct {
	parents key.Tuple
	text    []byte
	sha1    hash.Hash
	start   int
	end     int
	kind    groupcompress.Kind
}

// recordMeta is the result of a key lookup, whichever layer (pending
// or a flushed index) it was found in.
type recordMeta struct {
	parents   key.Tuple
	blockHash hash.Hash
	start     int
	end       int
	kind      groupcompress.Kind
	sha1      hash.Hash
	pending   bool
	text      []byte // only set when pending
}

// Store front-ends one group-compress writer and a stack of flushed
// B-tree indexes (newest first) to implement the named-stream record
// store. Not safe for concurrent commits: the scheduling model is
// single-writer with readers, matching the rest of this project.
type Store struct {
	cfg config.Store
	log *zap.SugaredLogger

	writer       *groupcompress.Writer
	pending      map[string]pendingRecord
	pendingOrder []key.Key

	blocksByHash map[hash.Hash]*groupcompress.Block
	indexes      []*btreeindex.Index // newest first: first-index-wins on shadowing

	repo *pack.Repository // nil: Store is purely in-memory (tests, short-lived builds)
}

// New returns an empty Store. A nil logger defaults to logctx.Noop.
func New(cfg config.Store, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = logctx.Noop()
	}
	return &Store{
		cfg:          cfg,
		log:          log,
		pending:      map[string]pendingRecord{},
		blocksByHash: map[hash.Hash]*groupcompress.Block{},
	}
}

// UseRepository binds Store to an on-disk pack.Repository: every
// future Flush writes its sealed block and index under packs/ and
// indices/tix (spec.md §6) in addition to the fast in-process path,
// and every pack already listed in r's pack-names is loaded so a
// fresh Store reopened against an existing repository sees prior
// commits immediately.
func (s *Store) UseRepository(r *pack.Repository) error {
	s.repo = r
	packs, err := r.ListPacks()
	if err != nil {
		return err
	}
	for _, pi := range packs {
		if !r.HasIndex(pi.Hash, pack.TextIndex) {
			continue
		}
		idx, err := r.OpenIndex(pi.Hash, pack.TextIndex)
		if err != nil {
			return err
		}
		s.indexes = append(s.indexes, idx)
		blk, err := r.OpenPack(pi.Hash)
		if err != nil {
			return err
		}
		s.blocksByHash[pi.Hash] = blk
	}
	return nil
}

func (s *Store) ensureWriter() {
	if s.writer == nil {
		s.writer = groupcompress.NewWriter(s.cfg.MaxBytesToIndex)
	}
}

// lookupMeta finds k in the pending batch first, then each flushed
// index newest first, matching Combined's first-index-wins contract
// extended one layer further (pending shadows every flushed index).
func (s *Store) lookupMeta(k key.Key) (recordMeta, bool, error) {
	if pr, ok := s.pending[k.String()]; ok {
		return recordMeta{parents: pr.parents, start: pr.start, end: pr.end, kind: pr.kind, sha1: pr.sha1, pending: true, text: pr.text}, true, nil
	}
	for _, idx := range s.indexes {
		value, refLists, ok, err := idx.Get(k)
		if err != nil {
			return recordMeta{}, false, err
		}
		if !ok {
			continue
		}
		bh, start, end, kind, sum, err := decodeValue(value)
		if err != nil {
			return recordMeta{}, false, err
		}
		var parents key.Tuple
		if len(refLists) > 0 {
			parents = refLists[0]
		}
		return recordMeta{parents: parents, blockHash: bh, start: start, end: end, kind: kind, sha1: sum}, true, nil
	}
	return recordMeta{}, false, nil
}

func (s *Store) fulltext(m recordMeta) ([]byte, error) {
	if m.pending {
		return m.text, nil
	}
	blk, ok := s.blocksByHash[m.blockHash]
	if !ok && s.repo != nil {
		var err error
		blk, err = s.repo.OpenPack(m.blockHash)
		if err != nil {
			return nil, err
		}
		s.blocksByHash[m.blockHash] = blk
		ok = true
	}
	if !ok {
		return nil, errkind.CorruptBlock.New("referenced block " + m.blockHash.String() + " not present")
	}
	ft, _, err := blk.Extract(m.start, m.end)
	return ft, err
}

// AddLines adds one record. Re-adding the same key with identical
// content is a no-op; re-adding it with different content is an
// InconsistentAdd, fatal or a logged warning per
// config.Store.InconsistentAddIsFatal.
func (s *Store) AddLines(k key.Key, parents key.Tuple, text []byte) (hash.Hash, error) {
	sum := hash.Of(text)

	if existing, ok, err := s.lookupMeta(k); err != nil {
		return hash.Hash{}, err
	} else if ok {
		if existing.sha1 == sum {
			return sum, nil
		}
		if s.cfg.InconsistentAddIsFatal {
			return hash.Hash{}, errkind.InconsistentAdd.New(k.String(), fmt.Sprintf("existing sha1 %s != new sha1 %s", existing.sha1, sum))
		}
		s.log.Warnw("inconsistent add ignored", "key", k.String(), "existing_sha1", existing.sha1.String(), "new_sha1", sum.String())
		return existing.sha1, nil
	}

	s.ensureWriter()
	_, start, end, kind := s.writer.Compress(text)

	ks := k.String()
	s.pending[ks] = pendingRecord{
		parents: parents,
		text:    append([]byte{}, text...),
		sha1:    sum,
		start:   start,
		end:     end,
		kind:    kind,
	}
	s.pendingOrder = append(s.pendingOrder, k)
	return sum, nil
}

// Flush seals the current group-compress block (if any records are
// pending) and appends a new, immutable B-tree index covering exactly
// this batch. Index entries become visible only once Flush returns.
func (s *Store) Flush() error {
	if s.writer == nil || s.writer.RecordCount() == 0 {
		return nil
	}
	blk, err := s.writer.Flush()
	if err != nil {
		return err
	}
	blockHash := hash.Of(blk.Bytes())
	s.blocksByHash[blockHash] = blk

	b := btreeindex.NewBuilder(1, s.cfg.PageSize)
	for _, k := range s.pendingOrder {
		pr := s.pending[k.String()]
		if err := b.Add(btreeindex.Entry{
			Key:      k,
			Value:    encodeValue(blockHash, pr.start, pr.end, pr.kind, pr.sha1),
			RefLists: []key.Tuple{pr.parents},
		}); err != nil {
			return err
		}
	}
	data, err := b.Build()
	if err != nil {
		return err
	}
	idx, err := btreeindex.Open(data)
	if err != nil {
		return err
	}
	s.indexes = append([]*btreeindex.Index{idx}, s.indexes...)

	if s.repo != nil {
		if _, err := s.repo.WritePack(blk, map[pack.IndexKind][]byte{pack.TextIndex: data}); err != nil {
			return err
		}
	}

	s.writer = nil
	s.pending = map[string]pendingRecord{}
	s.pendingOrder = nil
	return nil
}

// GetRecordStream calls fn once per key in keys, in the order
// ordering dictates. An absent key always yields a StorageKind =
// KindAbsent record; get_record_stream never raises on a missing key,
// for any ordering (settled open question, see DESIGN.md).
// includeDeltaClosure = true reports every yielded record as
// KindFulltext; false reports whatever storage kind the record
// actually has on disk. Bytes are the resolved fulltext either way,
// since groupcompress.Block.Extract never returns an unresolved delta.
func (s *Store) GetRecordStream(keys []key.Key, ordering Ordering, includeDeltaClosure bool, fn func(Record) bool) error {
	ordered, err := s.order(keys, ordering)
	if err != nil {
		return err
	}
	for _, k := range ordered {
		rec, err := s.recordFor(k, includeDeltaClosure)
		if err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

func (s *Store) recordFor(k key.Key, includeDeltaClosure bool) (Record, error) {
	m, ok, err := s.lookupMeta(k)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{Key: k, StorageKind: KindAbsent}, nil
	}
	ft, err := s.fulltext(m)
	if err != nil {
		return Record{}, err
	}
	kind := KindFulltext
	if !includeDeltaClosure && !m.pending && m.kind == groupcompress.KindDelta {
		kind = KindDelta
	}
	return Record{Key: k, Parents: m.parents, StorageKind: kind, Bytes: ft, Sha1: m.sha1}, nil
}

func (s *Store) order(keys []key.Key, ordering Ordering) ([]key.Key, error) {
	switch ordering {
	case Unordered, AsRequested:
		return keys, nil
	case Topological:
		return s.topological(keys)
	case GroupCompressOrder:
		return s.groupCompressOrder(keys)
	default:
		return nil, fmt.Errorf("versionedfile: unknown ordering %d", ordering)
	}
}

// topological DFS-orders keys so each one follows every parent that is
// also in the request; parents outside the request are not pulled in
// (the output stream is exactly the requested key set, reordered).
func (s *Store) topological(keys []key.Key) ([]key.Key, error) {
	requested := make(map[string]bool, len(keys))
	for _, k := range keys {
		requested[k.String()] = true
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	out := make([]key.Key, 0, len(keys))

	var visit func(k key.Key) error
	visit = func(k key.Key) error {
		ks := k.String()
		switch state[ks] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("versionedfile: cycle detected at %s", ks)
		}
		state[ks] = visiting
		if m, ok, err := s.lookupMeta(k); err != nil {
			return err
		} else if ok {
			for _, p := range m.parents {
				if requested[p.String()] {
					if err := visit(p); err != nil {
						return err
					}
				}
			}
		}
		state[ks] = done
		out = append(out, k)
		return nil
	}

	for _, k := range keys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// groupCompressOrder clusters keys sharing a group-compress block
// together (ordered by first appearance among the requested keys, then
// by byte offset within the block), maximising in-block reuse when the
// resulting stream is copied into another store. Absent keys are not
// part of any block and are appended at the end, in their original
// relative order.
func (s *Store) groupCompressOrder(keys []key.Key) ([]key.Key, error) {
	type item struct {
		key   key.Key
		group hash.Hash
		start int
	}
	var present []item
	var absent []key.Key
	for _, k := range keys {
		m, ok, err := s.lookupMeta(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			absent = append(absent, k)
			continue
		}
		present = append(present, item{key: k, group: m.blockHash, start: m.start})
	}

	groupOrder := map[hash.Hash]int{}
	for _, it := range present {
		if _, seen := groupOrder[it.group]; !seen {
			groupOrder[it.group] = len(groupOrder)
		}
	}
	sort.SliceStable(present, func(i, j int) bool {
		gi, gj := groupOrder[present[i].group], groupOrder[present[j].group]
		if gi != gj {
			return gi < gj
		}
		return present[i].start < present[j].start
	})

	out := make([]key.Key, 0, len(keys))
	for _, it := range present {
		out = append(out, it.key)
	}
	return append(out, absent...), nil
}

// GetParentMap is a read-only graph lookup: keys absent from the store
// are simply omitted from the result rather than erroring.
func (s *Store) GetParentMap(keys []key.Key) (map[string]key.Tuple, error) {
	out := map[string]key.Tuple{}
	for _, k := range keys {
		m, ok, err := s.lookupMeta(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k.String()] = m.parents
		}
	}
	return out, nil
}

// InsertRecordStream consumes a pull-based record stream, decomposing
// and re-compressing each record into this store's own current writer.
// Records disagreeing with an already-present key are handled by
// AddLines's InconsistentAdd policy.
func (s *Store) InsertRecordStream(next NextFunc) error {
	for {
		rec, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if rec.StorageKind == KindAbsent {
			continue
		}
		if _, err := s.AddLines(rec.Key, rec.Parents, rec.Bytes); err != nil {
			return err
		}
	}
}

// InsertWholeBlock splices a whole block verbatim into this store when
// it is well-utilised (requestedBytes covers at least
// config.Store.WellUtilisedFraction of its uncompressed size),
// preserving its bytes bit-identically and only appending index
// entries. Otherwise it falls back to per-record decompose-and-reinsert.
func (s *Store) InsertWholeBlock(manifest []groupcompress.ManifestEntry, blk *groupcompress.Block, requestedBytes int) error {
	if !groupcompress.WellUtilised(blk, requestedBytes, s.cfg.WellUtilisedFraction) {
		return s.decomposeAndReinsert(manifest, blk)
	}

	blockHash := hash.Of(blk.Bytes())
	s.blocksByHash[blockHash] = blk

	b := btreeindex.NewBuilder(1, s.cfg.PageSize)
	for _, e := range manifest {
		ft, kind, err := blk.Extract(e.Start, e.End)
		if err != nil {
			return err
		}
		sum := hash.Of(ft)
		if existing, ok, err := s.lookupMeta(e.Key); err != nil {
			return err
		} else if ok {
			if existing.sha1 == sum {
				continue
			}
			if s.cfg.InconsistentAddIsFatal {
				return errkind.InconsistentAdd.New(e.Key.String(), "whole-block splice disagrees with an already-present record")
			}
			s.log.Warnw("whole-block splice skipped inconsistent key", "key", e.Key.String())
			continue
		}
		if err := b.Add(btreeindex.Entry{
			Key:      e.Key,
			Value:    encodeValue(blockHash, e.Start, e.End, kind, sum),
			RefLists: []key.Tuple{e.Parents},
		}); err != nil {
			return err
		}
	}
	data, err := b.Build()
	if err != nil {
		return err
	}
	idx, err := btreeindex.Open(data)
	if err != nil {
		return err
	}
	s.indexes = append([]*btreeindex.Index{idx}, s.indexes...)

	if s.repo != nil {
		if _, err := s.repo.WritePack(blk, map[pack.IndexKind][]byte{pack.TextIndex: data}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) decomposeAndReinsert(manifest []groupcompress.ManifestEntry, blk *groupcompress.Block) error {
	for _, e := range manifest {
		ft, _, err := blk.Extract(e.Start, e.End)
		if err != nil {
			return err
		}
		if _, err := s.AddLines(e.Key, e.Parents, ft); err != nil {
			return err
		}
	}
	return nil
}

// MissingParents aggregates every flushed index's ghost set: keys
// referenced as a parent somewhere in the store but never themselves
// added.
func (s *Store) MissingParents() ([]key.Key, error) {
	return btreeindex.Combined(s.indexes).GetMissingParents()
}

// Check verifies every stored record reconstructs to its declared
// sha1 and that all non-ghost parents are reachable, accumulating
// every problem found into a CheckResult rather than raising on the
// first one (bzrlib's VersionedFileCheck.check() reconciliation-report
// style).
func (s *Store) Check() (CheckResult, error) {
	var res CheckResult
	combined := btreeindex.Combined(s.indexes)
	ghostSeen := map[string]bool{}

	iterErr := combined.IterAllEntries(func(e btreeindex.Entry) bool {
		res.Checked++
		bh, start, end, _, wantSum, err := decodeValue(e.Value)
		if err != nil {
			res.CorruptKeys = append(res.CorruptKeys, e.Key)
			return true
		}
		blk, ok := s.blocksByHash[bh]
		if !ok {
			res.CorruptKeys = append(res.CorruptKeys, e.Key)
			return true
		}
		ft, _, err := blk.Extract(start, end)
		if err != nil || hash.Of(ft) != wantSum {
			res.CorruptKeys = append(res.CorruptKeys, e.Key)
		}
		if len(e.RefLists) > 0 {
			for _, p := range e.RefLists[0] {
				if _, ok, err := combined.Get(p); err == nil && !ok {
					ps := p.String()
					if !ghostSeen[ps] {
						ghostSeen[ps] = true
						res.GhostParents = append(res.GhostParents, p)
					}
				}
			}
		}
		return true
	})
	if iterErr != nil {
		return res, iterErr
	}

	for ks, pr := range s.pending {
		res.Checked++
		if hash.Of(pr.text) != pr.sha1 {
			res.CorruptKeys = append(res.CorruptKeys, key.Key(strings.Split(ks, "\x00")))
		}
	}
	return res, nil
}
