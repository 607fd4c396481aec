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

// Package engine defines the capability interfaces the coordinator uses
// to talk to its external collaborators (storage engine plugins, the MDL
// manager, the binlog, the GTID tracker) plus a concrete Engine adapter
// over github.com/go-sql-driver/mysql.
package engine

import (
	"context"

	"github.com/xadb/xa-coordinator/pkg/xa/cache"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// Session is the minimal view of a SQL session the engine layer needs.
// The coordinator's session type satisfies this; engine never imports
// the coordinator package.
type Session interface {
	SessionID() uint64
}

// RecoveredBranch is one entry returned by Engine.Recover: a branch the
// engine still has prepared on disk, plus the tables it touched (for MDL
// reacquisition) and whether the engine reports it as
// "one-phase-prepared" (the cloned-instance heuristic: true only on the
// first startup of a storage snapshot cloned from a donor with an
// in-flight one-phase commit).
type RecoveredBranch struct {
	XID              xid.XID
	OnePhasePrepared bool
	ModifiedTables   []cache.TableRef
}

// Engine is the capability record a storage engine plugin presents to
// the coordinator: prepare, commit/rollback by XID, recover, and the
// applier-only native-transaction swap.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string
	// Prepare runs phase one of 2PC for sess's current transaction.
	Prepare(ctx context.Context, sess Session) error
	// CommitByXID finalizes a previously prepared branch by XID alone,
	// with no live session. onePhase must be true only for a branch that
	// was never actually put through XA PREPARE (XA COMMIT ... ONE
	// PHASE from IDLE); a two-phase finalize always passes false.
	// Returns an XAER_NOTA-coded error (not a hard failure) if the
	// engine has no record of xid — the branch legitimately may not
	// exist in every engine.
	CommitByXID(ctx context.Context, x xid.XID, onePhase bool) error
	// RollbackByXID is CommitByXID's rollback counterpart.
	RollbackByXID(ctx context.Context, x xid.XID) error
	// Recover lists branches the engine still holds prepared, e.g.
	// after a restart.
	Recover(ctx context.Context) ([]RecoveredBranch, error)
	// ReplaceNativeTransaction swaps sess's live engine transaction
	// handle for newHandle (or nil to detach entirely), returning
	// whatever backup is needed to swap it back. XaCommands.Prepare
	// detaches a PREPARED branch into the cache without calling this
	// method; nothing in this module calls it. Engines that don't
	// support detach/reattach may return (nil, nil).
	ReplaceNativeTransaction(ctx context.Context, sess Session, newHandle any) (backup any, err error)
}
