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
	"github.com/vcscore/corestore/errkind"
	"github.com/vcscore/corestore/hash"
)

// MemStore is a trivial in-memory NodeStore, used by tests and by
// callers materialising a short-lived Map (e.g. one build of an
// inventory before it is handed to the repository's pack writer).
type MemStore struct {
	nodes map[hash.Hash][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{nodes: map[hash.Hash][]byte{}}
}

func (s *MemStore) Get(h hash.Hash) ([]byte, error) {
	data, ok := s.nodes[h]
	if !ok {
		return nil, errkind.NotPresent.New(h.String())
	}
	return data, nil
}

func (s *MemStore) Put(h hash.Hash, data []byte) error {
	s.nodes[h] = append([]byte{}, data...)
	return nil
}

// Len reports how many distinct node hashes are stored.
func (s *MemStore) Len() int { return len(s.nodes) }
