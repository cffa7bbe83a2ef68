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

// Package lock implements a repository's shared-resource policy: a
// store holds an exclusive lock for the duration of a commit, readers
// take a shared lock, and acquisition blocks or fails fast per a
// caller-supplied timeout policy. Full lock-directory management is an
// external collaborator; this package only implements the
// acquire/release contract the core depends on, backed by a single
// advisory file lock.
package lock

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/vcscore/corestore/config"
	"github.com/vcscore/corestore/errkind"
)

// WriteLock is an exclusive, process-wide advisory lock over one
// repository's write path.
type WriteLock struct {
	fl   *flock.Flock
	path string
}

// New returns a WriteLock backed by the lock file at path. The file is
// created on first Acquire if it does not exist.
func New(path string) *WriteLock {
	return &WriteLock{fl: flock.New(path), path: path}
}

// Acquire blocks (retrying with exponential backoff) until the lock is
// held or policy's deadline/retry budget is exhausted, whichever comes
// first. It returns errkind.LockContention on failure.
func (w *WriteLock) Acquire(ctx context.Context, policy config.LockPolicy) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second

	var bo backoff.BackOff = backoff.WithMaxRetries(b, uint64(policy.MaxRetries))
	if policy.TimeoutMillis > 0 {
		cctx, cancel := context.WithTimeout(ctx, time.Duration(policy.TimeoutMillis)*time.Millisecond)
		defer cancel()
		bo = backoff.WithContext(bo, cctx)
	}

	op := func() error {
		ok, err := w.fl.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errkind.LockContention.New(w.path, "lock held by another writer")
		}
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		if errkind.Is(err, errkind.LockContention) {
			return err
		}
		return errkind.LockContention.New(w.path, err.Error())
	}
	return nil
}

// Release gives up the lock. It is a no-op if the lock is not held.
func (w *WriteLock) Release() error {
	return w.fl.Unlock()
}

// Held reports whether this process currently holds the lock.
func (w *WriteLock) Held() bool {
	return w.fl.Locked()
}

// ReadLock is a shared lock guaranteeing the holder sees a consistent
// snapshot of the index it opened with.
type ReadLock struct {
	fl *flock.Flock
}

// NewRead returns a ReadLock backed by the same lock file as writers
// use; multiple readers may hold it concurrently with each other, but
// not with a held WriteLock.
func NewRead(path string) *ReadLock {
	return &ReadLock{fl: flock.New(path)}
}

// Acquire blocks until a shared lock is obtained or ctx is done.
func (r *ReadLock) Acquire(ctx context.Context) error {
	ok, err := r.fl.TryRLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return err
	}
	if !ok {
		return errkind.LockContention.New("read-lock", "context done before shared lock acquired")
	}
	return nil
}

// Release gives up the shared lock.
func (r *ReadLock) Release() error {
	return r.fl.Unlock()
}
