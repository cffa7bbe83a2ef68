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

package btreeindex

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapIndex is an Index backed by a read-only memory-mapped file
// rather than a loaded byte slice, for index files too large to want
// resident in the heap all at once. Close unmaps the region; the
// returned *Index must not be used afterward.
type MmapIndex struct {
	*Index
	region mmap.MMap
	file   *os.File
}

// OpenMmap memory-maps path read-only and parses it as a B-tree index.
// Page inflation still happens lazily and is cached the same way as a
// plain Open, so the mapped region is only ever touched page-by-page.
func OpenMmap(path string) (*MmapIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	idx, err := Open(region)
	if err != nil {
		region.Unmap()
		f.Close()
		return nil, err
	}
	return &MmapIndex{Index: idx, region: region, file: f}, nil
}

// Close unmaps the backing region and closes the underlying file.
func (m *MmapIndex) Close() error {
	if err := m.region.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}
