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

// Package btreeindex implements a compact, read-optimised, immutable
// on-disk index: a sorted key to (value, reference-lists) map split
// into fixed-size, individually zlib-compressed pages, with internal
// nodes holding only keys and child pointers. Grounded on the
// prefix/suffix-split table index nbs uses for chunk lookup
// (_teacher_store/nbs/table_index_test.go shows the reader-side
// contract this mirrors: chunkCount/lookup/indexEntry over a parsed,
// immutable structure), generalised from fixed hash keys to arbitrary
// key.Key tuples and multi-level internal nodes.
package btreeindex

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/btree"
	"github.com/vcscore/corestore/cache"
	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/hash"
	"github.com/vcscore/corestore/key"
)

// Magic is the index file's text header tag.
const Magic = "B+Tree Graph Index 2\n"

// DefaultPageSize is the target compressed page size in bytes.
const DefaultPageSize = 4096

// Entry is one leaf record: a key mapped to an opaque value and some
// number of reference lists (parent-like lists of other keys, ghosts
// allowed).
type Entry struct {
	Key      key.Key
	Value    string
	RefLists []key.Tuple
}

// Builder accumulates entries in any order and emits a finished index
// image on Build.
type Builder struct {
	refListCount int
	pageSize     int
	entries      *btree.BTreeG[Entry]
	count        int

	missing *MissingParents
}

// NewBuilder returns a Builder expecting refListCount reference lists
// per entry, targeting pageSize bytes per compressed page. Entries are
// held in a google/btree ordered tree as they arrive so Build does not
// need a separate sort pass over the accumulated slice.
func NewBuilder(refListCount, pageSize int) *Builder {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	less := func(a, b Entry) bool { return a.Key.Less(b.Key) }
	return &Builder{refListCount: refListCount, pageSize: pageSize, entries: btree.NewG(32, less)}
}

// TrackMissingParents attaches a MissingParents tracker that observes
// every Add call, per the "optional add_callback" builder protocol.
func (b *Builder) TrackMissingParents(mp *MissingParents) {
	b.missing = mp
}

// Add appends one entry. Entries may arrive in any order; Build sorts
// them.
func (b *Builder) Add(e Entry) error {
	if len(e.RefLists) != b.refListCount {
		return fmt.Errorf("btreeindex: entry for %v has %d reference lists, want %d", e.Key, len(e.RefLists), b.refListCount)
	}
	if _, replaced := b.entries.ReplaceOrInsert(e); !replaced {
		b.count++
	}
	if b.missing != nil {
		b.missing.observe(e)
	}
	return nil
}

// Build serialises the accumulated entries, already held in key order
// by the underlying tree, bottom-up into the finished index image.
func (b *Builder) Build() ([]byte, error) {
	sorted := make([]Entry, 0, b.count)
	b.entries.Ascend(func(e Entry) bool {
		sorted = append(sorted, e)
		return true
	})

	leafPages := packLeafPages(sorted, b.pageSize, b.refListCount)

	levels := [][]levelPage{leafPages}
	for len(levels[0]) > 1 {
		parent := packInternalPages(levels[0], b.pageSize)
		levels = append([][]levelPage{parent}, levels...)
	}

	var rowLengths []string
	for _, lvl := range levels {
		rowLengths = append(rowLengths, strconv.Itoa(len(lvl)))
	}

	var out bytes.Buffer
	out.WriteString(Magic)
	fmt.Fprintf(&out, "node_ref_lists=%d\n", b.refListCount)
	fmt.Fprintf(&out, "key_elements=%d\n", keyElementCount(sorted))
	fmt.Fprintf(&out, "len=%d\n", len(sorted))
	fmt.Fprintf(&out, "row_lengths=%s\n", strings.Join(rowLengths, ","))

	// childOffsetForLevel returns the global page index of the first
	// page in the level below `level` (pages are numbered root-first,
	// level by level, left to right within a level).
	childOffsetForLevel := func(level int) int {
		total := 0
		for i := 0; i <= level; i++ {
			total += len(levels[i])
		}
		return total
	}

	for level, lvl := range levels {
		nextLevelBase := 0
		if level+1 < len(levels) {
			nextLevelBase = childOffsetForLevel(level)
		}
		for _, pg := range lvl {
			raw := pg.serialize(nextLevelBase)
			var zbuf bytes.Buffer
			zw := zlib.NewWriter(&zbuf)
			if _, err := zw.Write(raw); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			fmt.Fprintf(&out, "%d\n", zbuf.Len())
			out.Write(zbuf.Bytes())
		}
	}

	return out.Bytes(), nil
}

func keyElementCount(entries []Entry) int {
	if len(entries) == 0 {
		return 0
	}
	return len(entries[0].Key)
}

// levelPage is one not-yet-serialised page, either a leaf (entries set)
// or an internal node (children set, firstKey per child).
type levelPage struct {
	leafEntries  []Entry
	childKeys    []key.Key // first key covered by each child
	isLeaf       bool
}

func (p levelPage) firstKey() key.Key {
	if p.isLeaf {
		return p.leafEntries[0].Key
	}
	return p.childKeys[0]
}

// refListKeySep joins elements of a key nested inside a reference
// list. The line's own key/value/reflist-blob fields are themselves
// NUL-separated, so keys embedded one level deeper inside a
// comma-separated reference list use a different separator to avoid
// ambiguity when a leaf line is split on NUL.
const refListKeySep = "/"

func (p levelPage) serialize(childGlobalBase int) []byte {
	var buf bytes.Buffer
	if p.isLeaf {
		for _, e := range p.leafEntries {
			buf.WriteString(e.Key.String())
			buf.WriteByte(0)
			buf.WriteString(e.Value)
			buf.WriteByte(0)
			reflistStrs := make([]string, len(e.RefLists))
			for i, rl := range e.RefLists {
				parts := make([]string, len(rl))
				for j, k := range rl {
					parts[j] = strings.Join(k, refListKeySep)
				}
				reflistStrs[i] = strings.Join(parts, ",")
			}
			buf.WriteString(strings.Join(reflistStrs, "\t"))
			buf.WriteByte('\n')
		}
	} else {
		for i, k := range p.childKeys {
			buf.WriteString(k.String())
			buf.WriteByte(0)
			fmt.Fprintf(&buf, "%d", childGlobalBase+i)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// packLeafPages groups sorted entries into pages, each kept under
// pageSize bytes once zlib-compressed. The builder re-compresses the
// running page on every append to check the budget: simple, and
// correct, at the cost of doing more compression work than an
// incremental estimator would (an acceptable trade given index builds
// are a background, not hot-path, operation).
func packLeafPages(sorted []Entry, pageSize, refListCount int) []levelPage {
	if len(sorted) == 0 {
		return []levelPage{{isLeaf: true, leafEntries: nil}}
	}
	var pages []levelPage
	var cur []Entry
	for _, e := range sorted {
		trial := append(append([]Entry{}, cur...), e)
		if len(cur) > 0 && compressedSize(levelPage{isLeaf: true, leafEntries: trial}, 0) > pageSize {
			pages = append(pages, levelPage{isLeaf: true, leafEntries: cur})
			cur = []Entry{e}
			continue
		}
		cur = trial
	}
	if len(cur) > 0 {
		pages = append(pages, levelPage{isLeaf: true, leafEntries: cur})
	}
	return pages
}

func packInternalPages(children []levelPage, pageSize int) []levelPage {
	var pages []levelPage
	var cur []key.Key
	for i := range children {
		k := children[i].firstKey()
		trial := append(append([]key.Key{}, cur...), k)
		if len(cur) > 0 && compressedSize(levelPage{isLeaf: false, childKeys: trial}, 0) > pageSize {
			pages = append(pages, levelPage{isLeaf: false, childKeys: cur})
			cur = []key.Key{k}
			continue
		}
		cur = trial
	}
	if len(cur) > 0 {
		pages = append(pages, levelPage{isLeaf: false, childKeys: cur})
	}
	return pages
}

func compressedSize(p levelPage, childBase int) int {
	raw := p.serialize(childBase)
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	return buf.Len()
}

// Index is a parsed, queryable B-tree index. Pages are inflated lazily
// on first access and cached in memory for the Index's lifetime.
type Index struct {
	refListCount int
	keyElements  int
	totalEntries int
	rowLengths   []int

	pageOffsets []int64
	pageLens    []int64
	data        []byte

	pageCache map[int][]byte

	extCache  *cache.Pages
	indexHash hash.Hash
}

// UseCache attaches a shared page cache keyed by (index hash, page
// offset), per spec.md §5's "page cache for B-tree pages". h should be
// the content hash the index was opened under (the same hash used to
// name the on-disk .tix/.cix/.rix/.iix file), so multiple Index values
// opened from the same bytes in different Repository sessions share
// cache entries instead of each keeping its own private copy.
func (idx *Index) UseCache(h hash.Hash, c *cache.Pages) {
	idx.indexHash = h
	idx.extCache = c
}

// Open parses an index image's header and page table without
// inflating any page. data may be a plain byte slice or a memory-mapped
// region (see OpenMmap).
func Open(data []byte) (*Index, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, errkind.CorruptIndex.New("missing B+Tree Graph Index magic")
	}
	rest := data[len(Magic):]

	refListCount, rest, err := readKV(rest, "node_ref_lists")
	if err != nil {
		return nil, err
	}
	keyElements, rest, err := readKV(rest, "key_elements")
	if err != nil {
		return nil, err
	}
	total, rest, err := readKV(rest, "len")
	if err != nil {
		return nil, err
	}
	rowLine, rest, err := readLine(rest)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(rowLine, "row_lengths=") {
		return nil, errkind.CorruptIndex.New("missing row_lengths header")
	}
	var rowLengths []int
	for _, s := range strings.Split(strings.TrimPrefix(rowLine, "row_lengths="), ",") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errkind.CorruptIndex.New("malformed row_lengths: " + err.Error())
		}
		rowLengths = append(rowLengths, n)
	}

	idx := &Index{
		refListCount: refListCount,
		keyElements:  keyElements,
		totalEntries: total,
		rowLengths:   rowLengths,
		data:         data,
		pageCache:    map[int][]byte{},
	}

	totalPages := 0
	for _, n := range rowLengths {
		totalPages += n
	}

	cursor := int64(len(data) - len(rest))
	for p := 0; p < totalPages; p++ {
		line, lineLen, err := readLineAt(data, cursor)
		if err != nil {
			return nil, errkind.CorruptIndex.New("page length line: " + err.Error())
		}
		n, convErr := strconv.Atoi(line)
		if convErr != nil {
			return nil, errkind.CorruptIndex.New("malformed page length: " + convErr.Error())
		}
		pageStart := cursor + int64(lineLen)
		pageEnd := pageStart + int64(n)
		if pageEnd > int64(len(data)) {
			return nil, errkind.CorruptIndex.New("page extends past end of index")
		}
		idx.pageOffsets = append(idx.pageOffsets, pageStart)
		idx.pageLens = append(idx.pageLens, int64(n))
		cursor = pageEnd
	}

	return idx, nil
}

// readLineAt reads one '\n'-terminated line starting at off, returning
// its content (without the newline) and the number of bytes consumed
// including the newline.
func readLineAt(data []byte, off int64) (string, int, error) {
	if off >= int64(len(data)) {
		return "", 0, io.ErrUnexpectedEOF
	}
	rest := data[off:]
	i := bytes.IndexByte(rest, '\n')
	if i < 0 {
		return "", 0, io.ErrUnexpectedEOF
	}
	return string(rest[:i]), i + 1, nil
}

func readKV(b []byte, wantKey string) (int, []byte, error) {
	line, rest, err := readLine(b)
	if err != nil {
		return 0, nil, err
	}
	prefix := wantKey + "="
	if !strings.HasPrefix(line, prefix) {
		return 0, nil, errkind.CorruptIndex.New(fmt.Sprintf("expected %q, got %q", prefix, line))
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, prefix))
	if err != nil {
		return 0, nil, errkind.CorruptIndex.New("malformed " + wantKey + ": " + err.Error())
	}
	return n, rest, nil
}

func readLine(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return "", nil, errkind.CorruptIndex.New("missing newline in header")
	}
	return string(b[:i]), b[i+1:], nil
}

// KeyCount returns the total number of leaf entries.
func (idx *Index) KeyCount() int {
	return idx.totalEntries
}

func (idx *Index) leafLevel() int {
	return len(idx.rowLengths) - 1
}

func (idx *Index) globalPageIndex(level, localIndex int) int {
	base := 0
	for i := 0; i < level; i++ {
		base += idx.rowLengths[i]
	}
	return base + localIndex
}

func (idx *Index) page(globalIndex int) ([]byte, error) {
	if raw, ok := idx.pageCache[globalIndex]; ok {
		return raw, nil
	}
	if globalIndex < 0 || globalIndex >= len(idx.pageOffsets) {
		return nil, errkind.CorruptIndex.New("page index out of range")
	}
	start := idx.pageOffsets[globalIndex]
	if idx.extCache != nil {
		if raw, ok := idx.extCache.Get(idx.indexHash, start); ok {
			idx.pageCache[globalIndex] = raw
			return raw, nil
		}
	}
	end := start + idx.pageLens[globalIndex]
	if end > int64(len(idx.data)) {
		return nil, errkind.CorruptIndex.New("page extends past end of index")
	}
	zr, err := zlib.NewReader(bytes.NewReader(idx.data[start:end]))
	if err != nil {
		return nil, errkind.CorruptIndex.New("page zlib: " + err.Error())
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errkind.CorruptIndex.New("page inflate: " + err.Error())
	}
	idx.pageCache[globalIndex] = raw
	if idx.extCache != nil {
		idx.extCache.Put(idx.indexHash, start, raw)
	}
	return raw, nil
}

type leafEntry struct {
	key      key.Key
	value    string
	refLists []key.Tuple
}

// parseLeafPage decodes a page's entries. keyElements must match the
// index header's key_elements field: a NUL-split line is ambiguous
// between key elements and the value/reflist fields without knowing
// how many leading fields belong to the key. refListCount must match
// node_ref_lists.
func parseLeafPage(raw []byte, keyElements, refListCount int) ([]leafEntry, error) {
	var out []leafEntry
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x00")
		if len(fields) != keyElements+2 {
			return nil, errkind.CorruptIndex.New("malformed leaf entry: " + line)
		}
		k := key.Key(append([]string{}, fields[:keyElements]...))
		value := fields[keyElements]
		reflistsBlob := fields[keyElements+1]

		var refLists []key.Tuple
		if refListCount > 0 {
			for _, f := range strings.Split(reflistsBlob, "\t") {
				var rl key.Tuple
				if f != "" {
					for _, ks := range strings.Split(f, ",") {
						if ks == "" {
							continue
						}
						rl = append(rl, key.Key(strings.Split(ks, refListKeySep)))
					}
				}
				refLists = append(refLists, rl)
			}
		}
		out = append(out, leafEntry{key: k, value: value, refLists: refLists})
	}
	return out, nil
}

type internalEntry struct {
	key   key.Key
	child int
}

func parseInternalPage(raw []byte) ([]internalEntry, error) {
	var out []internalEntry
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x00")
		if len(fields) != 2 {
			return nil, errkind.CorruptIndex.New("malformed internal entry: " + line)
		}
		child, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errkind.CorruptIndex.New("malformed child index: " + err.Error())
		}
		out = append(out, internalEntry{key: key.Key(strings.Split(fields[0], "\x00")), child: child})
	}
	return out, nil
}

// descend walks from the root to the leaf page that would contain k,
// returning its global page index.
func (idx *Index) descend(k key.Key) (int, error) {
	page := 0
	for level := 0; level < idx.leafLevel(); level++ {
		raw, err := idx.page(page)
		if err != nil {
			return 0, err
		}
		entries, err := parseInternalPage(raw)
		if err != nil {
			return 0, err
		}
		child := entries[0].child
		for _, e := range entries {
			if e.key.Less(k) || e.key.Equal(k) {
				child = e.child
			} else {
				break
			}
		}
		page = child
	}
	return page, nil
}

// Get looks up k, returning its value and reference lists.
func (idx *Index) Get(k key.Key) (value string, refLists []key.Tuple, ok bool, err error) {
	if idx.totalEntries == 0 {
		return "", nil, false, nil
	}
	leafPage, err := idx.descend(k)
	if err != nil {
		return "", nil, false, err
	}
	raw, err := idx.page(leafPage)
	if err != nil {
		return "", nil, false, err
	}
	entries, err := parseLeafPage(raw, idx.keyElements, idx.refListCount)
	if err != nil {
		return "", nil, false, err
	}
	i := sort.Search(len(entries), func(i int) bool { return !entries[i].key.Less(k) })
	if i < len(entries) && entries[i].key.Equal(k) {
		return entries[i].value, entries[i].refLists, true, nil
	}
	return "", nil, false, nil
}

// IterAllEntries calls fn for every entry in ascending key order,
// stopping early if fn returns false.
func (idx *Index) IterAllEntries(fn func(Entry) bool) error {
	if idx.totalEntries == 0 {
		return nil
	}
	leafBase := idx.globalPageIndex(idx.leafLevel(), 0)
	for p := leafBase; p < leafBase+idx.rowLengths[idx.leafLevel()]; p++ {
		raw, err := idx.page(p)
		if err != nil {
			return err
		}
		entries, err := parseLeafPage(raw, idx.keyElements, idx.refListCount)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !fn(Entry{Key: e.key, Value: e.value, RefLists: e.refLists}) {
				return nil
			}
		}
	}
	return nil
}

// IterEntries calls fn for each requested key that is present, in
// ascending key order.
func (idx *Index) IterEntries(keys []key.Key, fn func(Entry) bool) error {
	sorted := append([]key.Key{}, keys...)
	sort.Sort(key.Sortable(sorted))
	for _, k := range sorted {
		v, rl, ok, err := idx.Get(k)
		if err != nil {
			return err
		}
		if ok {
			if !fn(Entry{Key: k, Value: v, RefLists: rl}) {
				return nil
			}
		}
	}
	return nil
}

// IterEntriesPrefix calls fn for every entry whose key has one of
// prefixes as a leading subsequence.
func (idx *Index) IterEntriesPrefix(prefixes []key.Key, fn func(Entry) bool) error {
	return idx.IterAllEntries(func(e Entry) bool {
		for _, p := range prefixes {
			if hasPrefix(e.Key, p) {
				return fn(e)
			}
		}
		return true
	})
}

func hasPrefix(k, prefix key.Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
