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

// Package config holds the per-store configuration knobs in one place
// instead of scattering them across a global config object and ad-hoc
// constructor arguments. Every knob lives on one Store value, loaded
// from TOML, and is passed explicitly to the component it governs —
// there is no package-level default consulted implicitly.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
)

// Store is the full configuration surface for one opened repository.
type Store struct {
	// MaxBytesToIndex bounds how many source bytes the delta codec's
	// rolling-hash match index will record for a single source text.
	// Beyond this the encoder still produces correct output, only
	// worse compression.
	MaxBytesToIndex uint64 `toml:"max_bytes_to_index" default:"16777216"`

	// PageSize is the fixed B-tree index page size in bytes.
	PageSize int `toml:"page_size" default:"4096"`

	// WellUtilisedFraction is the minimum fraction of a
	// group-compress block's uncompressed size that must be requested
	// before the block is considered reusable whole rather than
	// rebuilt.
	WellUtilisedFraction float64 `toml:"well_utilised_fraction" default:"0.75"`

	// Caches sizes the three bounded, content-addressed caches.
	Caches CacheSizes `toml:"caches"`

	// Lock governs write-lock acquisition.
	Lock LockPolicy `toml:"lock"`

	// InconsistentAddIsFatal selects the treatment of an add whose
	// sha1/parents disagree with what is already stored: true raises
	// errkind.InconsistentAdd, false logs a warning and keeps the
	// existing record.
	InconsistentAddIsFatal bool `toml:"inconsistent_add_is_fatal" default:"true"`
}

// CacheSizes bounds the three bounded, content-addressed caches.
type CacheSizes struct {
	PageCacheBytes  int `toml:"page_cache_bytes" default:"4194304"`
	BlockCacheCount int `toml:"block_cache_count" default:"1"`
	ChkNodeCacheCount int `toml:"chk_node_cache_count" default:"4096"`
}

// LockPolicy controls the caller-supplied policy governing lock
// acquisition: it either blocks until the lock is held or fails fast,
// based on this timeout and retry budget.
type LockPolicy struct {
	// TimeoutMillis is the overall deadline for acquiring the write
	// lock before raising errkind.LockContention. Zero means fail
	// fast with no retry.
	TimeoutMillis int `toml:"timeout_millis" default:"30000"`

	// MaxRetries bounds the backoff retry loop independently of the
	// deadline, so a misconfigured huge timeout cannot spin forever on
	// a tiny interval.
	MaxRetries int `toml:"max_retries" default:"10"`
}

// Default returns the configuration a freshly initialised repository
// uses when no TOML file is present.
func Default() Store {
	var s Store
	_ = defaults.Set(&s)
	return s
}

// Load reads a Store from a TOML file at path, filling in any field
// the file omits with Default's values.
func Load(path string) (Store, error) {
	s := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Store{}, err
	}
	return s, nil
}

// Save writes s to path as TOML, creating or truncating the file.
func Save(path string, s Store) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}
