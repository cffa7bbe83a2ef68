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

// Package cache provides three bounded, content-addressed caches: a
// B-tree page cache, a group-compress block cache, and a CHK node
// cache. All three are owned by whoever opens the repository, an
// explicit object threaded through the store, rather than a
// package-level singleton the way the source's page cache worked.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vcscore/corestore/config"
	"github.com/vcscore/corestore/hash"
)

// Pages caches decoded B-tree index pages, keyed by (index hash, page
// offset). Content-addressing means a cache hit is always valid: stale
// content is impossible because the key includes the hash.
type Pages struct {
	entries *lru.Cache[pageKey, []byte]
}

type pageKey struct {
	index  hash.Hash
	offset int64
}

// NewPages returns a page cache sized approximately to budgetBytes,
// estimating entry count at one typical 4KiB page.
func NewPages(budgetBytes int) *Pages {
	n := budgetBytes / 4096
	if n < 1 {
		n = 1
	}
	c, _ := lru.New[pageKey, []byte](n)
	return &Pages{entries: c}
}

// Get returns the cached page bytes for (index, offset), if present.
func (p *Pages) Get(index hash.Hash, offset int64) ([]byte, bool) {
	return p.entries.Get(pageKey{index, offset})
}

// Put inserts or replaces the cached page bytes for (index, offset).
func (p *Pages) Put(index hash.Hash, offset int64, data []byte) {
	p.entries.Add(pageKey{index, offset}, data)
}

// Blocks caches recently inflated group-compress blocks, keyed by the
// block's content hash. Blocks are large, so a small capacity (often
// just 1) keeping only the block being actively read resident is
// typical.
type Blocks struct {
	entries *lru.Cache[hash.Hash, []byte]
}

// NewBlocks returns a block cache holding up to n recently used
// blocks.
func NewBlocks(n int) *Blocks {
	if n < 1 {
		n = 1
	}
	c, _ := lru.New[hash.Hash, []byte](n)
	return &Blocks{entries: c}
}

// Get returns the cached inflated bytes for a block hash.
func (b *Blocks) Get(h hash.Hash) ([]byte, bool) {
	return b.entries.Get(h)
}

// Put inserts or replaces the cached inflated bytes for a block hash.
func (b *Blocks) Put(h hash.Hash, data []byte) {
	b.entries.Add(h, data)
}

// ChkNodes caches decoded CHK leaf/internal nodes, keyed by node hash.
type ChkNodes struct {
	entries *lru.Cache[hash.Hash, []byte]
}

// NewChkNodes returns a CHK node cache holding up to n nodes.
func NewChkNodes(n int) *ChkNodes {
	if n < 1 {
		n = 1
	}
	c, _ := lru.New[hash.Hash, []byte](n)
	return &ChkNodes{entries: c}
}

// Get returns the cached serialised bytes for a node hash.
func (c *ChkNodes) Get(h hash.Hash) ([]byte, bool) {
	return c.entries.Get(h)
}

// Put inserts or replaces the cached serialised bytes for a node hash.
func (c *ChkNodes) Put(h hash.Hash, data []byte) {
	c.entries.Add(h, data)
}

// Set bundles all three caches for a single opened repository,
// constructed once from config.CacheSizes and passed to every
// component that needs caching.
type Set struct {
	Pages    *Pages
	Blocks   *Blocks
	ChkNodes *ChkNodes
}

// NewSet builds a Set sized per sizes.
func NewSet(sizes config.CacheSizes) *Set {
	return &Set{
		Pages:    NewPages(sizes.PageCacheBytes),
		Blocks:   NewBlocks(sizes.BlockCacheCount),
		ChkNodes: NewChkNodes(sizes.ChkNodeCacheCount),
	}
}
