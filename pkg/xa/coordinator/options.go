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

package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/xadb/xa-coordinator/pkg/xa/state"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// StateObserver is notified of every transition that changes a branch's
// XidState, so that e.g. the performance-schema transaction state table
// can be kept current without XaCommands importing it directly.
type StateObserver interface {
	OnTransition(sessionID uint64, x *xid.XID, from, to state.State)
}

type noopObserver struct{}

func (noopObserver) OnTransition(uint64, *xid.XID, state.State, state.State) {}

// Option configures a XaCommands at construction time.
type Option func(*XaCommands)

// WithLogger overrides the default (xalog.Named("coordinator")) logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *XaCommands) { c.log = l }
}

// WithStateObserver registers a performance-schema-style transition
// observer. Defaults to a no-op.
func WithStateObserver(o StateObserver) Option {
	return func(c *XaCommands) { c.observer = o }
}

// WithLockWaitTimeout sets the MDL commit-lock wait bound used by the
// foreign-XID finalize sequence. Defaults to 50s, matching MySQL's own
// lock_wait_timeout default.
func WithLockWaitTimeout(d time.Duration) Option {
	return func(c *XaCommands) { c.lockWaitTimeout = d }
}
