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

package engine

import (
	"context"

	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// BinlogSets bundles the five sets the RecoveryResolver consults at
// startup: which internal branches committed, and which external
// branches were observed prepared / one-phase-committed / committed /
// aborted in the binlog.
type BinlogSets struct {
	CommitList          map[uint64]struct{}
	XAPrepared          map[string]struct{}
	XAOnePhaseCommitted map[string]struct{}
	XACommitted         map[string]struct{}
	XAAborted           map[string]struct{}
}

func (s BinlogSets) hasXID(set map[string]struct{}, x xid.XID) bool {
	_, ok := set[x.Key()]
	return ok
}

// IsPrepared reports whether x was observed as XA PREPARE in the binlog.
func (s BinlogSets) IsPrepared(x xid.XID) bool { return s.hasXID(s.XAPrepared, x) }

// IsOnePhaseCommitted reports whether x was finalized by
// XA COMMIT ... ONE PHASE.
func (s BinlogSets) IsOnePhaseCommitted(x xid.XID) bool { return s.hasXID(s.XAOnePhaseCommitted, x) }

// IsCommitted reports whether x was observed as XA COMMIT in the binlog.
func (s BinlogSets) IsCommitted(x xid.XID) bool { return s.hasXID(s.XACommitted, x) }

// IsAborted reports whether x was observed as XA ROLLBACK in the binlog.
func (s BinlogSets) IsAborted(x xid.XID) bool { return s.hasXID(s.XAAborted, x) }

// IsInternallyCommitted reports whether my (an internal branch id, from
// XID.MyXID) is recorded as committed.
func (s BinlogSets) IsInternallyCommitted(my uint64) bool {
	_, ok := s.CommitList[my]
	return ok
}

// BinlogFacade is the coordinator's narrow view of the binlog: the
// startup snapshot sets and the group-commit entry point. Rotation's own
// call into PreparedRegistry.Serialize is invoked directly by the binlog
// writer, not through this interface.
type BinlogFacade interface {
	Snapshot(ctx context.Context) (BinlogSets, error)
	Commit(ctx context.Context, sess Session, all bool) error
}

// StaticBinlogFacade returns a fixed BinlogSets snapshot and treats
// Commit as a no-op. Useful for tests and for servers running with
// log_bin disabled.
type StaticBinlogFacade struct {
	Sets BinlogSets
}

func (f StaticBinlogFacade) Snapshot(ctx context.Context) (BinlogSets, error) { return f.Sets, nil }
func (f StaticBinlogFacade) Commit(ctx context.Context, sess Session, all bool) error { return nil }
