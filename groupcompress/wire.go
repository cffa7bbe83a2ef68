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

package groupcompress

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/key"
)

// ManifestEntry is one subrecord's provenance within a block: the
// (key, parents, start, end) tuple the streaming wire format lists so
// a receiver can populate its index without re-scanning the payload.
type ManifestEntry struct {
	Key        key.Key
	Parents    key.Tuple
	Start, End int
}

// WellUtilised reports whether a block is "well-utilised": requested
// bytes cover at least fraction of the block's uncompressed size.
// requestedBytes is the sum of subrecord lengths a caller actually
// asked for (e.g. still-live keys during a repack).
func WellUtilised(b *Block, requestedBytes int, fraction float64) bool {
	if b.UncompressedLen() == 0 {
		return true
	}
	return float64(requestedBytes) >= fraction*float64(b.UncompressedLen())
}

const streamingMagic = "groupcompress-block\n"

// WriteStreamingWire serialises a manifest and block together in the
// streaming wire format, so a fetch can hand a receiver everything it
// needs to populate its index without re-scanning the block's
// payload.
func WriteStreamingWire(w io.Writer, manifest []ManifestEntry, b *Block) error {
	headerPlain := encodeManifest(manifest)

	var zHeader bytes.Buffer
	zw := zlib.NewWriter(&zHeader)
	if _, err := zw.Write(headerPlain); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	blockBytes := b.Bytes()

	if _, err := io.WriteString(w, streamingMagic); err != nil {
		return err
	}
	for _, n := range []int{zHeader.Len(), len(headerPlain), len(blockBytes)} {
		if _, err := io.WriteString(w, strconv.Itoa(n)+"\n"); err != nil {
			return err
		}
	}
	if _, err := w.Write(zHeader.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(blockBytes)
	return err
}

// ReadStreamingWire parses the streaming wire format back into a
// manifest and a Block.
func ReadStreamingWire(r io.Reader) ([]ManifestEntry, *Block, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(streamingMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, errkind.CorruptBlock.New("short streaming header")
	}
	if string(magic) != streamingMagic {
		return nil, nil, errkind.CorruptBlock.New("missing groupcompress-block magic")
	}

	zHeaderLen, err := readLineInt(br)
	if err != nil {
		return nil, nil, err
	}
	headerLen, err := readLineInt(br)
	if err != nil {
		return nil, nil, err
	}
	blockLen, err := readLineInt(br)
	if err != nil {
		return nil, nil, err
	}

	zHeader := make([]byte, zHeaderLen)
	if _, err := io.ReadFull(br, zHeader); err != nil {
		return nil, nil, errkind.CorruptBlock.New("short compressed header")
	}

	zr, err := zlib.NewReader(bytes.NewReader(zHeader))
	if err != nil {
		return nil, nil, errkind.CorruptBlock.New("header zlib: " + err.Error())
	}
	headerPlain := make([]byte, headerLen)
	if _, err := io.ReadFull(zr, headerPlain); err != nil {
		return nil, nil, errkind.CorruptBlock.New("short inflated header")
	}

	blockBytes := make([]byte, blockLen)
	if _, err := io.ReadFull(br, blockBytes); err != nil {
		return nil, nil, errkind.CorruptBlock.New("short block body")
	}

	manifest, err := decodeManifest(headerPlain)
	if err != nil {
		return nil, nil, err
	}
	blk, err := Open(blockBytes)
	if err != nil {
		return nil, nil, err
	}
	return manifest, blk, nil
}

func readLineInt(br *bufio.Reader) (int, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, errkind.CorruptBlock.New("short streaming header line")
	}
	return strconv.Atoi(strings.TrimSuffix(line, "\n"))
}

// encodeManifest/decodeManifest use a simple line-oriented format:
// key \t comma-separated-parents \t start \t end
// Key elements and parent keys are NUL-joined (key.Key.String()).
func encodeManifest(entries []ManifestEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		parentStrs := make([]string, len(e.Parents))
		for i, p := range e.Parents {
			parentStrs[i] = p.String()
		}
		fmt.Fprintf(&buf, "%s\t%s\t%d\t%d\n", e.Key.String(), strings.Join(parentStrs, ","), e.Start, e.End)
	}
	return buf.Bytes()
}

func decodeManifest(data []byte) ([]ManifestEntry, error) {
	var out []ManifestEntry
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, errkind.CorruptBlock.New("malformed manifest line: " + line)
		}
		start, err1 := strconv.Atoi(fields[2])
		end, err2 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil {
			return nil, errkind.CorruptBlock.New("malformed manifest offsets: " + line)
		}
		var parents key.Tuple
		if fields[1] != "" {
			for _, p := range strings.Split(fields[1], ",") {
				parents = append(parents, parseKeyString(p))
			}
		}
		out = append(out, ManifestEntry{
			Key:     parseKeyString(fields[0]),
			Parents: parents,
			Start:   start,
			End:     end,
		})
	}
	return out, nil
}

func parseKeyString(s string) key.Key {
	return key.Key(strings.Split(s, "\x00"))
}
