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
	"github.com/xadb/xa-coordinator/pkg/xa/state"
)

// Session is the coordinator's view of one client connection. The real
// session object (owned by the server that embeds this coordinator)
// implements it; XaCommands never reaches past this interface into
// connection-specific state.
type Session interface {
	// SessionID uniquely identifies the connection for logging, metrics,
	// and the performance-schema transaction state observer.
	SessionID() uint64
	// XidState returns the session's own XA state machine, shared by
	// reference with any cache entry this session inserts.
	XidState() *state.XidState
	// InNonXATransaction reports whether a regular (non-XA) transaction
	// is already open on this session, which XA START must reject with
	// XAER_OUTSIDE.
	InNonXATransaction() bool
	// IsReplicationApplier reports whether this session is a replication
	// applier thread, which PREPARE holds to a stricter rule (no
	// empty branches).
	IsReplicationApplier() bool
	// HasEngineVisibleWork reports whether the session's current branch
	// modified any engine-visible state, used by PREPARE's
	// ER_XA_REPLICATION_FILTERS check.
	HasEngineVisibleWork() bool
	// ClearTransactionFlags resets the "in transaction" server-status
	// bits, OPTION_BEGIN, the unsafe-rollback flags, and the
	// performance-schema transaction handle. Called when the session's
	// own branch is committed or rolled back back to NOTR; a foreign
	// finalize (CommitForeign/RollbackForeign) does not call it.
	ClearTransactionFlags()
}

// SessionFlags is an embeddable implementation of the flag bits
// ClearTransactionFlags must reset. A server's session type can embed
// this and call Clear() from its own ClearTransactionFlags, instead of
// re-deriving the bit layout.
type SessionFlags struct {
	InTransaction      bool
	OptionBegin        bool
	UnsafeRollback     bool
	PerfSchemaTxnOwner bool
}

// Clear resets every tracked flag to its terminal-state value.
func (f *SessionFlags) Clear() {
	f.InTransaction = false
	f.OptionBegin = false
	f.UnsafeRollback = false
	f.PerfSchemaTxnOwner = false
}
