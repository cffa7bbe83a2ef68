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

package chk

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/hash"
)

const (
	leafMagic     = "chkleaf:\n"
	internalMagic = "chknode:\n"
)

// encodeNode serialises n per spec.md §6's chkleaf/chknode text
// formats. One deliberate addition over the literal format: each leaf
// item line also carries the original key's own serialisation, not
// just its search-key suffix (see DESIGN.md "CHK wire format" entry —
// needed because a hash-based SearchKeyFunc cannot be inverted back to
// the key tuple it was derived from).
func encodeNode(n *node) []byte {
	if n.kind == leafNode {
		return encodeLeaf(n)
	}
	return encodeInternal(n)
}

func encodeLeaf(n *node) []byte {
	var buf bytes.Buffer
	buf.WriteString(leafMagic)
	fmt.Fprintf(&buf, "%d\n", n.maximumSize)
	fmt.Fprintf(&buf, "%d\n", n.keyWidth)
	fmt.Fprintf(&buf, "%d\n", len(n.items))
	buf.WriteString(n.commonPrefix)
	buf.WriteByte('\n')
	for _, it := range n.items {
		buf.WriteString(it.suffix)
		buf.WriteByte(0)
		buf.WriteString(it.key.String())
		buf.WriteByte(0)
		lineCount := strings.Count(string(it.value), "\n") + 1
		fmt.Fprintf(&buf, "%d\n", lineCount)
		buf.Write(it.value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func encodeInternal(n *node) []byte {
	var buf bytes.Buffer
	buf.WriteString(internalMagic)
	fmt.Fprintf(&buf, "%d\n", n.maximumSize)
	fmt.Fprintf(&buf, "%d\n", n.keyWidth)
	fmt.Fprintf(&buf, "%d\n", len(n.entries))
	buf.WriteString(n.commonPrefix)
	buf.WriteByte('\n')
	for _, e := range n.entries {
		buf.WriteString(e.prefix)
		buf.WriteByte(0)
		buf.WriteString(e.child.h.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// decodeNode parses either wire format, dispatching on the magic line.
func decodeNode(data []byte, maximumSize, keyWidth int) (*node, error) {
	switch {
	case bytes.HasPrefix(data, []byte(leafMagic)):
		return decodeLeaf(data, maximumSize, keyWidth)
	case bytes.HasPrefix(data, []byte(internalMagic)):
		return decodeInternal(data, maximumSize, keyWidth)
	default:
		return nil, errkind.CorruptIndex.New("chk: unrecognised node magic")
	}
}

func decodeLeaf(data []byte, maximumSize, keyWidth int) (*node, error) {
	r := bufio.NewReader(bytes.NewReader(data[len(leafMagic):]))
	if _, err := readIntLine(r); err != nil { // maximum_size, already known from config
		return nil, err
	}
	if _, err := readIntLine(r); err != nil { // key_width
		return nil, err
	}
	itemCount, err := readIntLine(r)
	if err != nil {
		return nil, err
	}
	commonPrefix, err := readRawLine(r)
	if err != nil {
		return nil, err
	}

	n := newLeaf(maximumSize, keyWidth)
	n.commonPrefix = commonPrefix
	for i := 0; i < itemCount; i++ {
		header, err := readRawLine(r)
		if err != nil {
			return nil, errkind.CorruptIndex.New("chk: truncated leaf item header: " + err.Error())
		}
		fields := strings.SplitN(header, "\x00", 3)
		if len(fields) != 3 {
			return nil, errkind.CorruptIndex.New("chk: malformed leaf item header: " + header)
		}
		suffix, keyStr, lineCountStr := fields[0], fields[1], fields[2]
		lineCount, err := strconv.Atoi(lineCountStr)
		if err != nil {
			return nil, errkind.CorruptIndex.New("chk: malformed value line count: " + err.Error())
		}
		value, err := readNLines(r, lineCount)
		if err != nil {
			return nil, err
		}
		n.items = append(n.items, leafItem{
			suffix: suffix,
			key:    Key(strings.Split(keyStr, "\x00")),
			value:  value,
		})
	}
	return n, nil
}

func decodeInternal(data []byte, maximumSize, keyWidth int) (*node, error) {
	r := bufio.NewReader(bytes.NewReader(data[len(internalMagic):]))
	if _, err := readIntLine(r); err != nil {
		return nil, err
	}
	if _, err := readIntLine(r); err != nil {
		return nil, err
	}
	entryCount, err := readIntLine(r)
	if err != nil {
		return nil, err
	}
	commonPrefix, err := readRawLine(r)
	if err != nil {
		return nil, err
	}

	n := newInternal(maximumSize, keyWidth, commonPrefix)
	for i := 0; i < entryCount; i++ {
		line, err := readRawLine(r)
		if err != nil {
			return nil, errkind.CorruptIndex.New("chk: truncated internal entry: " + err.Error())
		}
		fields := strings.SplitN(line, "\x00", 2)
		if len(fields) != 2 {
			return nil, errkind.CorruptIndex.New("chk: malformed internal entry: " + line)
		}
		h, ok := hash.MaybeParse(fields[1])
		if !ok {
			return nil, errkind.CorruptIndex.New("chk: malformed child hash: " + fields[1])
		}
		n.entries = append(n.entries, internalEntry{prefix: fields[0], child: ref{idx: -1, h: h}})
	}
	return n, nil
}

func readIntLine(r *bufio.Reader) (int, error) {
	line, err := readRawLine(r)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(line)
}

func readRawLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// readNLines reads exactly n '\n'-terminated lines and joins them with
// '\n', giving back the original value the encoder wrote (a value's
// own embedded newlines are why a byte length, not a line count, alone
// wouldn't be enough context — this mirrors the encoder's choice to
// record line counts, per spec.md §6's literal field name).
func readNLines(r *bufio.Reader, n int) ([]byte, error) {
	var lines []string
	for i := 0; i < n; i++ {
		line, err := readRawLine(r)
		if err != nil {
			return nil, errkind.CorruptIndex.New("chk: truncated value: " + err.Error())
		}
		lines = append(lines, line)
	}
	return []byte(strings.Join(lines, "\n")), nil
}
