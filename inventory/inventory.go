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

package inventory

import (
	"github.com/vcscore/corestore/chk"
	"github.com/vcscore/corestore/hash"
)

// maximumNodeSize and keyWidth mirror the defaults the chk package's
// own tests exercise at scale; a production caller picks these from
// config.Store instead, but the glue here only needs a sane default.
const (
	defaultMaximumNodeSize = 250
	idMapKeyWidth          = 1
	nameMapKeyWidth        = 2
)

// Snapshot is one tree snapshot: every live entry, addressable by its
// own file id and by (parent id, name). It is the in-memory
// counterpart of the two CHK maps a revision's inventory is actually
// stored as.
type Snapshot struct {
	RootID string

	byID   map[string]Entry
	byName map[[2]string]string // (parent id, name) -> file id
}

// New returns an empty Snapshot rooted at rootID.
func New(rootID string) *Snapshot {
	return &Snapshot{
		RootID: rootID,
		byID:   map[string]Entry{},
		byName: map[[2]string]string{},
	}
}

// Put inserts or replaces an entry.
func (s *Snapshot) Put(e Entry) {
	if old, ok := s.byID[e.FileID]; ok {
		delete(s.byName, [2]string{old.ParentID, old.Name})
	}
	s.byID[e.FileID] = e
	s.byName[[2]string{e.ParentID, e.Name}] = e.FileID
}

// Remove deletes the entry for fileID, if present.
func (s *Snapshot) Remove(fileID string) {
	if e, ok := s.byID[fileID]; ok {
		delete(s.byName, [2]string{e.ParentID, e.Name})
		delete(s.byID, fileID)
	}
}

// Get looks up an entry by its own file id.
func (s *Snapshot) Get(fileID string) (Entry, bool) {
	e, ok := s.byID[fileID]
	return e, ok
}

// Lookup finds the file id of the child named name within parentID.
func (s *Snapshot) Lookup(parentID, name string) (string, bool) {
	id, ok := s.byName[[2]string{parentID, name}]
	return id, ok
}

// Len reports how many entries the snapshot holds.
func (s *Snapshot) Len() int { return len(s.byID) }

// Roots is the pair of CHK root hashes a revision record stores for
// its inventory: one map keyed by file id, one keyed by (parent id,
// name) for directory listing without materialising the whole tree.
// Grounded on spec.md §2's "tree snapshot is written as a set of CHK
// leaves whose root hash is stored in the revision record" — extended
// to a pair of roots because a single id-keyed map cannot answer "list
// this directory's children" without a full scan.
type Roots struct {
	ByID   hash.Hash
	ByName hash.Hash
}

// Write serialises s into store as two CHK maps and returns their
// roots. store backs both maps; a caller typically points it at the
// same node store for every revision in a repository so that unchanged
// subtrees across commits share pages on disk.
func Write(store chk.NodeStore, s *Snapshot) (Roots, error) {
	byID := chk.NewMap(store, chk.Hash16SearchKey, defaultMaximumNodeSize, idMapKeyWidth)
	byName := chk.NewMap(store, chk.Hash16SearchKey, defaultMaximumNodeSize, nameMapKeyWidth)

	for fileID, e := range s.byID {
		if err := byID.Map(chk.Key{fileID}, []byte(encode(e))); err != nil {
			return Roots{}, err
		}
		if err := byName.Map(chk.Key{e.ParentID, e.Name}, []byte(fileID)); err != nil {
			return Roots{}, err
		}
	}

	idRoot, err := byID.Save()
	if err != nil {
		return Roots{}, err
	}
	nameRoot, err := byName.Save()
	if err != nil {
		return Roots{}, err
	}
	return Roots{ByID: idRoot, ByName: nameRoot}, nil
}

// Read materialises a full Snapshot from its stored roots. Callers
// that only need one entry or one directory listing should use
// OpenByID/OpenByName instead and avoid paying for a full walk.
func Read(store chk.NodeStore, rootID string, roots Roots) (*Snapshot, error) {
	byID, err := chk.Load(store, roots.ByID, chk.Hash16SearchKey, defaultMaximumNodeSize, idMapKeyWidth)
	if err != nil {
		return nil, err
	}

	out := New(rootID)
	var walkErr error
	err = byID.All(func(k chk.Key, value []byte) bool {
		e, decodeErr := decode(k[0], string(value))
		if decodeErr != nil {
			walkErr = decodeErr
			return false
		}
		out.Put(e)
		return true
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

// OpenByID returns the single entry for fileID directly from the
// on-disk byID map, without materialising the rest of the tree.
func OpenByID(store chk.NodeStore, roots Roots, fileID string) (Entry, bool, error) {
	byID, err := chk.Load(store, roots.ByID, chk.Hash16SearchKey, defaultMaximumNodeSize, idMapKeyWidth)
	if err != nil {
		return Entry{}, false, err
	}
	raw, ok, err := byID.Get(chk.Key{fileID})
	if err != nil || !ok {
		return Entry{}, false, err
	}
	e, err := decode(fileID, string(raw))
	return e, err == nil, err
}

// OpenByName resolves a single (parentID, name) lookup to a file id
// and then to its entry, without materialising the rest of the tree —
// what a "stat one path" request needs.
func OpenByName(store chk.NodeStore, roots Roots, parentID, name string) (Entry, bool, error) {
	byName, err := chk.Load(store, roots.ByName, chk.Hash16SearchKey, defaultMaximumNodeSize, nameMapKeyWidth)
	if err != nil {
		return Entry{}, false, err
	}
	raw, ok, err := byName.Get(chk.Key{parentID, name})
	if err != nil || !ok {
		return Entry{}, false, err
	}
	fileID := string(raw)
	return OpenByID(store, roots, fileID)
}

// EntryChange is one (key, old, new) difference IterChanges reports:
// Old is nil for an added entry, New is nil for a removed one.
type EntryChange struct {
	FileID   string
	Old, New *Entry
}

// IterChanges enumerates every entry that differs between the
// inventory at fromRoots and the one at toRoots, by delegating to the
// underlying byID map's set-difference diff — the "CHK set-difference
// that enumerates exactly the subset... new to the target" spec.md §2
// describes for fetch, applied here at the inventory layer rather than
// the raw node layer.
func IterChanges(store chk.NodeStore, fromRoots, toRoots Roots, fn func(EntryChange) bool) error {
	from, err := chk.Load(store, fromRoots.ByID, chk.Hash16SearchKey, defaultMaximumNodeSize, idMapKeyWidth)
	if err != nil {
		return err
	}
	to, err := chk.Load(store, toRoots.ByID, chk.Hash16SearchKey, defaultMaximumNodeSize, idMapKeyWidth)
	if err != nil {
		return err
	}

	var decodeErr error
	err = from.IterChanges(to, func(k chk.Key, a, b []byte) bool {
		fileID := k[0]
		change := EntryChange{FileID: fileID}
		if a != nil {
			e, derr := decode(fileID, string(a))
			if derr != nil {
				decodeErr = derr
				return false
			}
			change.Old = &e
		}
		if b != nil {
			e, derr := decode(fileID, string(b))
			if derr != nil {
				decodeErr = derr
				return false
			}
			change.New = &e
		}
		return fn(change)
	})
	if err != nil {
		return err
	}
	return decodeErr
}
