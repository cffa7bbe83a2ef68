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

// Package logctx hands every component a *zap.SugaredLogger instead of
// reaching for a package-level logger, applying the same no-global-state
// discipline to logging as the cache and config packages apply
// elsewhere.
package logctx

import "go.uber.org/zap"

// New returns a development-mode logger suitable for a library: human
// readable, no sampling, safe defaults for a caller who hasn't wired
// their own zap.Logger in yet.
func New() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// Noop returns a logger that discards everything, for tests and
// callers that don't want log output.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
