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

// Package groupcompress implements a group-compress block codec: a
// zlib container packing many related texts, with random access to
// any subrecord once its (start,end) byte range within the
// uncompressed stream is known, and lazy partial decompression so a
// reader never inflates more than it needs.
package groupcompress

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/vcscore/corestore/cache"
	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/hash"
)

// Magic is the block header's format tag.
const Magic = "gcb1z\n"

// Kind tags a subrecord as a whole text or a delta against the block's
// accumulated source so far.
type Kind byte

const (
	KindFulltext Kind = 'f'
	KindDelta    Kind = 'd'
)

// span is one subrecord's location within the inflated body: the whole
// subrecord (type byte + length prefix + payload) spans [Start,End);
// the payload alone spans [PayloadStart,PayloadEnd).
type span struct {
	Start, End               int
	PayloadStart, PayloadEnd int
	Kind                     Kind
	TextLen                  int // bytes this record appended to the block's source window
}

// Writer accumulates records into one block. It is not safe for
// concurrent use: block construction is single-threaded cooperative by
// design.
type Writer struct {
	maxBytesToIndex uint64

	source []byte // concatenation of every fulltext compressed so far
	idx    deltaIndex
	buf    []byte // the encoded subrecord stream; becomes the block body
	spans  []span
	sha1s  []hash.Hash
}

// deltaIndex is the minimal surface Writer needs from delta.Index,
// kept as an interface so tests can substitute a fake that forces
// fulltext-vs-delta decisions deterministically.
type deltaIndex interface {
	Grow(source []byte)
	Truncate(newLen int)
	Encode(source, target []byte) []byte
}

// NewWriter returns an empty Writer. maxBytesToIndex bounds the delta
// match index the same way it bounds the codec's own index.
func NewWriter(maxBytesToIndex uint64) *Writer {
	return &Writer{maxBytesToIndex: maxBytesToIndex}
}

// Compress adds one record's fulltext to the block, choosing fulltext
// or delta storage by whichever encodes smaller, and returns its
// content hash and byte range within the block's (eventual) body.
func (w *Writer) Compress(text []byte) (sum hash.Hash, start, end int, kind Kind) {
	sum = hash.Of(text)

	var payload []byte
	if len(w.spans) == 0 {
		kind = KindFulltext
		payload = text
	} else {
		d := w.idx.Encode(w.source, text)
		if len(d) < len(text) {
			kind = KindDelta
			payload = d
		} else {
			kind = KindFulltext
			payload = text
		}
	}

	start = len(w.buf)
	w.buf = append(w.buf, byte(kind))
	w.buf = appendUvarint(w.buf, uint64(len(payload)))
	pStart := len(w.buf)
	w.buf = append(w.buf, payload...)
	end = len(w.buf)

	w.spans = append(w.spans, span{Start: start, End: end, PayloadStart: pStart, PayloadEnd: end, Kind: kind, TextLen: len(text)})
	w.sha1s = append(w.sha1s, sum)

	w.source = append(w.source, text...)
	if w.idx == nil {
		w.idx = newRealIndex(w.source, w.maxBytesToIndex)
	} else {
		w.idx.Grow(w.source)
	}

	return sum, start, end, kind
}

// PopLast undoes the most recent Compress call exactly.
func (w *Writer) PopLast() {
	n := len(w.spans)
	if n == 0 {
		return
	}
	last := w.spans[n-1]
	w.spans = w.spans[:n-1]
	w.sha1s = w.sha1s[:n-1]
	w.buf = w.buf[:last.Start]
	w.source = w.source[:len(w.source)-last.TextLen]

	if w.idx != nil {
		w.idx.Truncate(len(w.source))
	}
}

// RecordCount reports how many records have been compressed into this
// (not yet flushed) block.
func (w *Writer) RecordCount() int {
	return len(w.spans)
}

// Flush finalises the zlib stream and returns the immutable Block.
// Subsequent calls to Compress or Flush are forbidden.
func (w *Writer) Flush() (*Block, error) {
	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(w.buf); err != nil {
		return nil, errkind.CorruptBlock.New(err.Error())
	}
	if err := zw.Close(); err != nil {
		return nil, errkind.CorruptBlock.New(err.Error())
	}

	var raw bytes.Buffer
	raw.WriteString(Magic)
	raw.WriteString(strconv.Itoa(len(w.buf)))
	raw.WriteByte('\n')
	raw.WriteString(strconv.Itoa(zbuf.Len()))
	raw.WriteByte('\n')
	raw.Write(zbuf.Bytes())

	blk, err := Open(raw.Bytes())
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// Block is an immutable, content-addressed group-compress container.
// After construction it never changes; a rebuild for garbage
// collection produces a new Block with a new hash.
type Block struct {
	raw             []byte
	uncompressedLen int
	compressedLen   int

	zr        io.ReadCloser
	body      []byte
	scannedTo int
	spans     []span
	spanByOff map[int]int

	resolved [][]byte

	blockCache *cache.Blocks
	blockHash  hash.Hash
	cached     bool
}

// UseCache attaches a shared, content-addressed cache of recently
// inflated block bodies (spec.md §5's "block cache for recently
// inflated group-compress blocks"). A hit skips zlib entirely; a miss
// populates the cache once the body has been fully inflated, so a
// second reader opening the same pack bytes (by content hash) reuses
// the first reader's inflation work instead of redoing it.
func (b *Block) UseCache(c *cache.Blocks) {
	b.blockCache = c
	b.blockHash = hash.Of(b.raw)
	if cached, ok := c.Get(b.blockHash); ok {
		b.body = cached
		b.cached = true
	}
}

// Open parses a block's header without inflating its body.
func Open(raw []byte) (*Block, error) {
	if len(raw) < len(Magic) || string(raw[:len(Magic)]) != Magic {
		return nil, errkind.CorruptBlock.New("missing gcb1z magic")
	}
	rest := raw[len(Magic):]

	uLen, rest, err := readDecimalLine(rest)
	if err != nil {
		return nil, errkind.CorruptBlock.New("bad uncompressed-length header: " + err.Error())
	}
	cLen, rest, err := readDecimalLine(rest)
	if err != nil {
		return nil, errkind.CorruptBlock.New("bad compressed-length header: " + err.Error())
	}
	if len(rest) != cLen {
		return nil, errkind.CorruptBlock.New(fmt.Sprintf("declared compressed length %d, have %d bytes", cLen, len(rest)))
	}

	zr, err := zlib.NewReader(bufio.NewReader(bytes.NewReader(rest)))
	if err != nil {
		return nil, errkind.CorruptBlock.New("zlib: " + err.Error())
	}

	return &Block{
		raw:             raw,
		uncompressedLen: uLen,
		compressedLen:   cLen,
		zr:              zr,
		spanByOff:       map[int]int{},
	}, nil
}

// Bytes returns the block's on-disk representation.
func (b *Block) Bytes() []byte {
	return b.raw
}

// UncompressedLen is the size of the subrecord stream once inflated.
func (b *Block) UncompressedLen() int {
	return b.uncompressedLen
}

// Extract reconstructs the fulltext of the subrecord occupying
// [start,end) in the uncompressed stream, inflating only as much of
// the zlib stream as needed and recursively resolving any in-block
// delta chain.
func (b *Block) Extract(start, end int) ([]byte, Kind, error) {
	if err := b.ensureScannedTo(end); err != nil {
		return nil, 0, err
	}
	i, ok := b.spanByOff[start]
	if !ok || b.spans[i].End != end {
		return nil, 0, errkind.CorruptBlock.New(fmt.Sprintf("no subrecord at [%d,%d)", start, end))
	}
	ft, err := b.resolve(i)
	return ft, b.spans[i].Kind, err
}

func (b *Block) resolve(i int) ([]byte, error) {
	if b.resolved == nil {
		b.resolved = make([][]byte, len(b.spans))
	}
	if i < len(b.resolved) && b.resolved[i] != nil {
		return b.resolved[i], nil
	}

	sp := b.spans[i]
	payload := b.body[sp.PayloadStart:sp.PayloadEnd]

	if sp.Kind == KindFulltext {
		b.resolved[i] = payload
		return payload, nil
	}

	source, err := b.sourcePrefix(i)
	if err != nil {
		return nil, err
	}
	ft, err := applyDelta(source, payload)
	if err != nil {
		return nil, errkind.CorruptBlock.New("delta apply: " + err.Error())
	}
	b.resolved[i] = ft
	return ft, nil
}

// sourcePrefix returns the concatenation of the fulltexts of every
// span before i: the accumulated uncompressed bytes a delta at i is
// taken against.
func (b *Block) sourcePrefix(i int) ([]byte, error) {
	var out []byte
	for j := 0; j < i; j++ {
		ft, err := b.resolve(j)
		if err != nil {
			return nil, err
		}
		out = append(out, ft...)
	}
	return out, nil
}

// ensureScannedTo inflates and parses subrecord headers until the
// scan position reaches at least target, growing b.spans as it goes.
// This is the "lazy content manager": a block caches its decompressor
// and resumes from where it left off rather than re-inflating.
func (b *Block) ensureScannedTo(target int) error {
	for b.scannedTo < target || len(b.body) < target {
		if len(b.body) <= b.scannedTo {
			if err := b.inflateMore(); err != nil {
				return err
			}
		}
		if b.scannedTo >= len(b.body) {
			return errkind.CorruptBlock.New("subrecord stream ended before requested offset")
		}
		kind := Kind(b.body[b.scannedTo])
		lenStart := b.scannedTo + 1
		length, n, err := readUvarintAt(b, lenStart)
		if err != nil {
			return err
		}
		payloadStart := lenStart + n
		payloadEnd := payloadStart + int(length)
		for len(b.body) < payloadEnd {
			if err := b.inflateMore(); err != nil {
				return err
			}
		}
		sp := span{Start: b.scannedTo, End: payloadEnd, PayloadStart: payloadStart, PayloadEnd: payloadEnd, Kind: kind}
		b.spanByOff[sp.Start] = len(b.spans)
		b.spans = append(b.spans, sp)
		b.scannedTo = payloadEnd
	}
	if b.blockCache != nil && !b.cached && len(b.body) >= b.uncompressedLen {
		b.blockCache.Put(b.blockHash, b.body)
		b.cached = true
	}
	return nil
}

func (b *Block) inflateMore() error {
	chunk := make([]byte, 4096)
	n, err := b.zr.Read(chunk)
	if n > 0 {
		b.body = append(b.body, chunk[:n]...)
	}
	if err != nil && err != io.EOF {
		return errkind.CorruptBlock.New("zlib: " + err.Error())
	}
	if n == 0 && err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func readUvarintAt(b *Block, offset int) (uint64, int, error) {
	for {
		v, n := binary.Uvarint(b.body[offset:])
		if n > 0 {
			return v, n, nil
		}
		if n == 0 {
			if err := b.inflateMore(); err != nil {
				return 0, 0, err
			}
			continue
		}
		return 0, 0, errkind.CorruptBlock.New("malformed varint length prefix")
	}
}

func readDecimalLine(b []byte) (int, []byte, error) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return 0, nil, fmt.Errorf("missing newline")
	}
	v, err := strconv.Atoi(string(b[:i]))
	if err != nil {
		return 0, nil, err
	}
	return v, b[i+1:], nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
