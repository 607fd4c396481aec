// Copyright 2026 The XA Coordinator Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xalog wraps go.uber.org/zap with a thin set of package-level
// helpers plus an injectable logger, so components take a *zap.Logger
// via a functional option and fall back to a shared default instead of
// rolling their own logging.
package xalog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var defaultLogger atomic.Pointer[zap.Logger]

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	defaultLogger.Store(l)
}

// SetDefault replaces the package-wide default logger, e.g. with
// zap.NewNop() in tests or a differently configured logger at server
// startup.
func SetDefault(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger.Store(l)
}

// Default returns the package-wide default logger.
func Default() *zap.Logger {
	return defaultLogger.Load()
}

// Named returns a child of Default() scoped to component name.
func Named(name string) *zap.Logger {
	return Default().Named(name)
}
