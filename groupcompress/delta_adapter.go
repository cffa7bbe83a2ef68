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

import "github.com/vcscore/corestore/delta"

// realIndex adapts *delta.Index to the deltaIndex interface Writer
// depends on, keeping groupcompress's own tests free to substitute a
// fake index.
type realIndex struct {
	idx *delta.Index
}

func newRealIndex(source []byte, maxBytesToIndex uint64) *realIndex {
	return &realIndex{idx: delta.NewIndex(source, maxBytesToIndex)}
}

func (r *realIndex) Grow(source []byte)   { r.idx.Grow(source) }
func (r *realIndex) Truncate(newLen int)  { r.idx.Truncate(newLen) }
func (r *realIndex) Encode(source, target []byte) []byte {
	return delta.EncodeWithIndex(r.idx, target)
}

func applyDelta(source, stream []byte) ([]byte, error) {
	return delta.Apply(source, stream)
}
