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
// Copyright (C) 2008, 2009, 2010 Canonical Ltd
// Licensed under the GNU GPL version 2 or later (bzrlib's
// _groupcompress_py.py, reimplemented here from its observable wire
// format, not translated line-for-line).

// Package delta implements a byte-copy instruction stream: encode a
// target byte sequence as a series of literal inserts and copies from
// a source sequence, and apply that stream back against the same
// source to reconstruct the target.
//
// The wire format is bzrlib's groupcompress delta format: a varint
// header giving source and target lengths, then instructions each
// starting with either a literal-length byte (0x01..0x7F) or a copy
// byte with its high bit set whose low 7 bits are a presence bitmap
// for up to three little-endian offset bytes and three length bytes.
package delta

import (
	"encoding/binary"
	"fmt"
)

// Errors returned by Decode/Apply.
var (
	ErrStreamTruncated     = fmt.Errorf("delta: stream truncated")
	ErrCopyOutOfRange      = fmt.Errorf("delta: copy instruction out of range")
	ErrTargetLengthMismatch = fmt.Errorf("delta: target length mismatch")
)

// maxCopyLength is the implicit meaning of a zero length field: a
// length field of zero means 0x10000.
const maxCopyLength = 0x10000

// maxInlineLen is the largest literal run a single insert instruction
// byte can carry (0x7F inclusive, since the top bit must stay clear to
// distinguish it from a copy instruction).
const maxInlineLen = 0x7F

// Encode returns a delta stream such that Apply(source, Encode(source,
// target)) == target for any source, target of at most 2^31 bytes.
func Encode(source, target []byte) []byte {
	return EncodeWithIndex(NewIndex(source, 1<<24), target)
}

// EncodeWithIndex encodes target against the source an already-built
// Index was constructed from, letting callers reuse one Index across
// many targets compressed into the same group-compress block, each
// delta taken against the accumulated uncompressed bytes so far.
func EncodeWithIndex(idx *Index, target []byte) []byte {
	out := make([]byte, 0, len(target)/2+16)
	out = appendUvarint(out, uint64(len(idx.source)))
	out = appendUvarint(out, uint64(len(target)))

	pos := 0
	var pendingLiteral []byte
	flushLiteral := func() {
		for len(pendingLiteral) > 0 {
			n := len(pendingLiteral)
			if n > maxInlineLen {
				n = maxInlineLen
			}
			out = append(out, byte(n))
			out = append(out, pendingLiteral[:n]...)
			pendingLiteral = pendingLiteral[n:]
		}
	}

	for pos < len(target) {
		srcOff, matchLen := idx.longestMatch(target, pos)
		if matchLen < minMatchLength {
			pendingLiteral = append(pendingLiteral, target[pos])
			pos++
			continue
		}
		flushLiteral()
		out = appendCopyInstruction(out, srcOff, matchLen)
		pos += matchLen
	}
	flushLiteral()
	return out
}

// Apply reconstructs a target byte sequence from source and a delta
// stream produced by Encode/EncodeWithIndex.
func Apply(source, stream []byte) ([]byte, error) {
	srcLen, n, err := readUvarint(stream)
	if err != nil {
		return nil, err
	}
	stream = stream[n:]

	targetLen, n, err := readUvarint(stream)
	if err != nil {
		return nil, err
	}
	stream = stream[n:]

	if srcLen != uint64(len(source)) {
		return nil, fmt.Errorf("%w: stream expects source of %d bytes, got %d", ErrTargetLengthMismatch, srcLen, len(source))
	}

	out := make([]byte, 0, targetLen)
	for len(stream) > 0 {
		op := stream[0]
		stream = stream[1:]

		if op == 0 {
			return nil, fmt.Errorf("%w: zero opcode", ErrStreamTruncated)
		}

		if op&0x80 == 0 {
			// Literal insert: op is the inline length.
			n := int(op)
			if len(stream) < n {
				return nil, ErrStreamTruncated
			}
			out = append(out, stream[:n]...)
			stream = stream[n:]
			continue
		}

		// Copy instruction.
		offset, length, rest, err := decodeCopyInstruction(op, stream)
		if err != nil {
			return nil, err
		}
		stream = rest

		if offset < 0 || length < 0 || int64(offset)+int64(length) > int64(len(source)) {
			return nil, ErrCopyOutOfRange
		}
		out = append(out, source[offset:offset+length]...)
	}

	if uint64(len(out)) != targetLen {
		return nil, fmt.Errorf("%w: declared %d, produced %d", ErrTargetLengthMismatch, targetLen, len(out))
	}
	return out, nil
}

// appendCopyInstruction encodes a copy of `length` bytes starting at
// `offset` in the source, splitting runs longer than maxCopyLength
// into consecutive copy instructions (the encoder never needs more
// than ceil(length/maxCopyLength) instructions for one match).
func appendCopyInstruction(out []byte, offset, length int) []byte {
	for length > 0 {
		chunk := length
		if chunk > maxCopyLength {
			chunk = maxCopyLength
		}
		out = appendOneCopy(out, offset, chunk)
		offset += chunk
		length -= chunk
	}
	return out
}

func appendOneCopy(out []byte, offset, length int) []byte {
	var offBytes, lenBytes [3]byte
	offBits, nOff := minimalLEBytes(uint32(offset), offBytes[:])
	wireLength := length
	if wireLength == maxCopyLength {
		wireLength = 0
	}
	lenBits, nLen := minimalLEBytes(uint32(wireLength), lenBytes[:])

	control := byte(0x80)
	for i := 0; i < nOff; i++ {
		control |= 1 << uint(i)
	}
	for i := 0; i < nLen; i++ {
		control |= 1 << uint(i+4)
	}

	out = append(out, control)
	out = append(out, offBits[:nOff]...)
	out = append(out, lenBits[:nLen]...)
	return out
}

// minimalLEBytes writes v into buf little-endian, dropping trailing
// (high-order) zero bytes, and returns how many bytes were written.
// v == 0 writes zero bytes: the presence bit for that field is simply
// left unset, matching the format's "present bytes follow" rule.
func minimalLEBytes(v uint32, buf []byte) ([3]byte, int) {
	var out [3]byte
	n := 0
	for v > 0 && n < 3 {
		out[n] = byte(v & 0xFF)
		v >>= 8
		n++
	}
	return out, n
}

func decodeCopyInstruction(control byte, stream []byte) (offset, length int, rest []byte, err error) {
	var offBytes, lenBytes [3]byte
	nOff, nLen := 0, 0
	for i := 0; i < 3; i++ {
		if control&(1<<uint(i)) != 0 {
			nOff++
		}
	}
	for i := 0; i < 3; i++ {
		if control&(1<<uint(i+4)) != 0 {
			nLen++
		}
	}
	if len(stream) < nOff+nLen {
		return 0, 0, nil, ErrStreamTruncated
	}
	copy(offBytes[:], stream[:nOff])
	copy(lenBytes[:], stream[nOff:nOff+nLen])
	rest = stream[nOff+nLen:]

	offset = int(offBytes[0]) | int(offBytes[1])<<8 | int(offBytes[2])<<16
	length = int(lenBytes[0]) | int(lenBytes[1])<<8 | int(lenBytes[2])<<16
	if length == 0 {
		length = maxCopyLength
	}
	return offset, length, rest, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, ErrStreamTruncated
	}
	return v, n, nil
}
